package nn

import "github.com/born-ml/convcore/internal/tensor"

// Convolution is a grouped 2-D convolution layer.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels/group, kernel_h, kernel_w]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
// Where, with explicit padding:
//
//	out_h = (height + 2*pad_h - (dilation_h*(kernel_h-1) + 1)) / stride_h + 1
//	out_w = (width + 2*pad_w - (dilation_w*(kernel_w-1) + 1)) / stride_w + 1
//
// Each (batch item, group) slice is lowered to one GEMM against the
// im2row (host) or im2col (accelerator) matrix of its input channels.
//
// Example:
//
//	cfg := nn.DefaultConfig(nn.Square(3))
//	cfg.Pad = nn.Square(1)
//	conv, _ := nn.NewConvolution(cfg, cpu.New(), nil)
//	_ = conv.Bind(weight, bias)                         // weight [2, 3, 3, 3]
//	outs, _ := conv.Allocate([]tensor.Shape{{1, 3, 5, 5}}) // [1, 2, 5, 5]
//	outs, _ = conv.Forward([]*tensor.RawTensor{input})
type Convolution struct {
	*pipeline
}

// NewConvolution creates a convolution layer with the given geometry.
// accel may be nil when no accelerator is available; the backend is chosen
// once, here, according to cfg.Backend.
func NewConvolution(cfg Config, host, accel tensor.Backend) (*Convolution, error) {
	p, err := newPipeline(forwardConv, cfg, host, accel)
	if err != nil {
		return nil, err
	}
	return &Convolution{pipeline: p}, nil
}
