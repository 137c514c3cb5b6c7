package nn

import (
	"fmt"

	"github.com/born-ml/convcore/internal/tensor"
)

// Deconvolution is a grouped 2-D transposed convolution layer.
//
// Input shape:  [batch, in_channels, height, width]
// Weight shape: [out_channels, in_channels/group, kernel_h, kernel_w]
// Bias shape:   [out_channels]
// Output shape: [batch, out_channels, out_h, out_w]
//
//	out_h = stride_h*(height-1) + dilation_h*(kernel_h-1) + 1 - 2*pad_h + adjust_h
//
// Each (batch item, group) slice is one GEMM with the transposed packed
// weight producing a column matrix, scattered into the output by col2im.
type Deconvolution struct {
	*pipeline
}

// NewDeconvolution creates a deconvolution layer with the given geometry.
// Pad modes are not supported; AdjustPad must be smaller than Stride.
func NewDeconvolution(cfg Config, host, accel tensor.Backend) (*Deconvolution, error) {
	p, err := newPipeline(transposedConv, cfg, host, accel)
	if err != nil {
		return nil, err
	}
	return &Deconvolution{pipeline: p}, nil
}

// packTransposed rearranges W[outC][inC/group][kH*kW] into the host matrix
// M[inC][OutGroupCn*kH*kW] with
//
//	M[g*InpGroupCn + ic][oc*kH*kW + k] = W[g*OutGroupCn + oc][ic][k]
//
// so that rows g*InpGroupCn .. (g+1)*InpGroupCn hold group g.
func packTransposed(weight *tensor.RawTensor, l LayerState) (*tensor.RawTensor, error) {
	packed, err := tensor.NewRaw(tensor.Shape{l.InpC, l.KSize}, weight.DType(), tensor.CPU)
	if err != nil {
		return nil, err
	}
	switch weight.DType() {
	case tensor.Float32:
		pack(weight.AsFloat32(), packed.AsFloat32(), l)
	case tensor.Float64:
		pack(weight.AsFloat64(), packed.AsFloat64(), l)
	default:
		return nil, fmt.Errorf("unsupported dtype %s", weight.DType())
	}
	return packed, nil
}

func pack[T tensor.Float](w, m []T, l LayerState) {
	area := l.KSize / l.OutGroupCn
	for o := 0; o < l.OutC; o++ {
		g, oc := o/l.OutGroupCn, o%l.OutGroupCn
		for ic := 0; ic < l.InpGroupCn; ic++ {
			src := w[(o*l.InpGroupCn+ic)*area : (o*l.InpGroupCn+ic+1)*area]
			row := g*l.InpGroupCn + ic
			copy(m[row*l.KSize+oc*area:row*l.KSize+(oc+1)*area], src)
		}
	}
}
