package nn

import (
	"fmt"

	"github.com/born-ml/convcore/internal/tensor"
)

// State is the lifecycle stage of a layer.
type State int

const (
	// Unconfigured layers have geometry but no weights.
	Unconfigured State = iota
	// Configured layers have weights (and optionally bias) bound.
	Configured
	// ShapeKnown layers have a LayerState for the observed input shape.
	ShapeKnown
	// Ready layers have every buffer allocated; Forward may run.
	Ready
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case ShapeKnown:
		return "shape-known"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// LayerState holds the scalars derived from the configuration, the weight
// shape and one input shape.
type LayerState struct {
	InpC, InpH, InpW int
	OutC, OutH, OutW int

	Group      int
	InpGroupCn int // input channels per group
	OutGroupCn int // output channels per group

	// KSize is the flattened kernel size: InpGroupCn*kH*kW for convolution,
	// OutGroupCn*kH*kW for deconvolution.
	KSize int

	// PadH and PadW are the leading pads applied by the window kernels.
	PadH, PadW int

	// Is1x1 holds iff kernel, stride and dilation are all (1, 1).
	Is1x1 bool
	// FastPath holds when Is1x1 and no padding (or adjust pad) is applied, so
	// the input is reinterpreted as the column matrix without copying.
	FastPath bool
}

// OutputShape returns the output shape for a batch of n items.
func (s LayerState) OutputShape(n int) tensor.Shape {
	return tensor.Shape{n, s.OutC, s.OutH, s.OutW}
}

// InferConvolution derives the LayerState of a convolution with the given
// configuration, weight shape (outC, inC/group, kH, kW) and input shape
// (N, C, H, W).
func InferConvolution(cfg Config, weight, input tensor.Shape) (LayerState, error) {
	return infer(forwardConv, cfg, weight, input)
}

// InferDeconvolution derives the LayerState of a deconvolution with the given
// configuration, weight shape (outC, inC/group, kH, kW) and input shape
// (N, C, H, W).
func InferDeconvolution(cfg Config, weight, input tensor.Shape) (LayerState, error) {
	return infer(transposedConv, cfg, weight, input)
}

func infer(d direction, cfg Config, weight, input tensor.Shape) (LayerState, error) {
	op := d.String() + ".infer"
	if err := cfg.validateFor(d); err != nil {
		return LayerState{}, err
	}
	if err := checkWeightShape(op, cfg, weight); err != nil {
		return LayerState{}, err
	}
	if len(input) != 4 || input.Validate() != nil {
		return LayerState{}, newError(op, ErrShapeMismatch, "input must be a positive 4-D (N, C, H, W) shape, got %v", input)
	}

	s := LayerState{
		InpC: input[1],
		InpH: input[2],
		InpW: input[3],
		OutC: weight[0],
	}

	if cfg.Group > 0 && s.InpC%cfg.Group != 0 {
		return LayerState{}, newError(op, ErrInvalidConfiguration,
			"input channels %d not divisible by group %d", s.InpC, cfg.Group)
	}
	perGroup := weight[1]
	if s.InpC%perGroup != 0 {
		return LayerState{}, newError(op, ErrInvalidConfiguration,
			"input channels %d not divisible by weight channels per group %d", s.InpC, perGroup)
	}
	s.Group = s.InpC / perGroup
	if cfg.Group > 0 && cfg.Group != s.Group {
		return LayerState{}, newError(op, ErrInvalidConfiguration,
			"group %d disagrees with input channels %d and weight channels per group %d", cfg.Group, s.InpC, perGroup)
	}
	if s.OutC%s.Group != 0 {
		return LayerState{}, newError(op, ErrInvalidConfiguration,
			"output channels %d not divisible by group %d", s.OutC, s.Group)
	}
	s.InpGroupCn = perGroup
	s.OutGroupCn = s.OutC / s.Group

	k := cfg.Kernel
	switch d {
	case forwardConv:
		s.OutH, s.PadH = ConvOutputSize(s.InpH, k.H, cfg.Stride.H, cfg.Dilation.H, cfg.Pad.H, cfg.PadMode)
		s.OutW, s.PadW = ConvOutputSize(s.InpW, k.W, cfg.Stride.W, cfg.Dilation.W, cfg.Pad.W, cfg.PadMode)
		s.KSize = s.InpGroupCn * k.H * k.W
	case transposedConv:
		s.OutH = DeconvOutputSize(s.InpH, k.H, cfg.Stride.H, cfg.Dilation.H, cfg.Pad.H, cfg.AdjustPad.H)
		s.OutW = DeconvOutputSize(s.InpW, k.W, cfg.Stride.W, cfg.Dilation.W, cfg.Pad.W, cfg.AdjustPad.W)
		s.PadH, s.PadW = cfg.Pad.H, cfg.Pad.W
		s.KSize = s.OutGroupCn * k.H * k.W
	}
	if s.OutH <= 0 || s.OutW <= 0 {
		return LayerState{}, newError(op, ErrInvalidConfiguration,
			"input %dx%d yields empty output %dx%d", s.InpH, s.InpW, s.OutH, s.OutW)
	}

	s.Is1x1 = k == Square(1) && cfg.Stride == Square(1) && cfg.Dilation == Square(1)
	s.FastPath = s.Is1x1 && s.PadH == 0 && s.PadW == 0 && cfg.AdjustPad == (Size2{})
	return s, nil
}

func checkWeightShape(op string, cfg Config, weight tensor.Shape) error {
	if len(weight) != 4 || weight.Validate() != nil {
		return newError(op, ErrInvalidConfiguration, "weight must be a positive 4-D shape, got %v", weight)
	}
	if weight[2] != cfg.Kernel.H || weight[3] != cfg.Kernel.W {
		return newError(op, ErrInvalidConfiguration,
			"weight kernel %dx%d does not match configured kernel %s", weight[2], weight[3], cfg.Kernel)
	}
	if cfg.Group > 0 && weight[0]%cfg.Group != 0 {
		return newError(op, ErrInvalidConfiguration,
			"output channels %d not divisible by group %d", weight[0], cfg.Group)
	}
	return nil
}

// window returns the sliding-window geometry of one (batch item, group)
// slice. For convolution the image is the input slice; for deconvolution it
// is the output slice and the window grid runs over the input.
func (s LayerState) window(d direction, cfg Config) tensor.Window {
	w := tensor.Window{
		KernelH:   cfg.Kernel.H,
		KernelW:   cfg.Kernel.W,
		PadH:      s.PadH,
		PadW:      s.PadW,
		StrideH:   cfg.Stride.H,
		StrideW:   cfg.Stride.W,
		DilationH: cfg.Dilation.H,
		DilationW: cfg.Dilation.W,
	}
	if d == forwardConv {
		w.Channels, w.Height, w.Width = s.InpGroupCn, s.InpH, s.InpW
		w.GridH, w.GridW = s.OutH, s.OutW
	} else {
		w.Channels, w.Height, w.Width = s.OutGroupCn, s.OutH, s.OutW
		w.GridH, w.GridW = s.InpH, s.InpW
	}
	return w
}
