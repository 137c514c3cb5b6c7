package nn

import (
	"fmt"
	"log/slog"
)

// Size2 is a (height, width) pair.
type Size2 struct {
	H, W int
}

// Square returns Size2{n, n}.
func Square(n int) Size2 {
	return Size2{H: n, W: n}
}

func (s Size2) String() string {
	return fmt.Sprintf("%dx%d", s.H, s.W)
}

// PadMode selects how padding is derived.
type PadMode int

const (
	// PadExplicit uses Config.Pad as given.
	PadExplicit PadMode = iota
	// PadSame pads so that the output covers the input: out = ceil(in/stride).
	PadSame
	// PadValid uses no padding and keeps only full windows.
	PadValid
)

func (m PadMode) String() string {
	switch m {
	case PadExplicit:
		return "explicit"
	case PadSame:
		return "same"
	case PadValid:
		return "valid"
	default:
		return fmt.Sprintf("PadMode(%d)", int(m))
	}
}

// BackendPreference selects which backend a layer runs on.
type BackendPreference int

const (
	// BackendAuto uses the accelerator when one is supplied and the geometry
	// allows it, the host otherwise. Bind moves the layer to the host when
	// the accelerator cannot allocate the weight's element type.
	BackendAuto BackendPreference = iota
	// BackendHost always uses the host backend.
	BackendHost
	// BackendAccelerator requires the accelerator and fails otherwise.
	BackendAccelerator
)

func (p BackendPreference) String() string {
	switch p {
	case BackendAuto:
		return "auto"
	case BackendHost:
		return "host"
	case BackendAccelerator:
		return "accelerator"
	default:
		return fmt.Sprintf("BackendPreference(%d)", int(p))
	}
}

// Config holds the immutable geometry of a convolution or deconvolution
// layer.
type Config struct {
	Kernel   Size2
	Stride   Size2
	Pad      Size2 // Symmetric explicit padding; ignored unless PadMode is PadExplicit.
	Dilation Size2
	PadMode  PadMode

	// AdjustPad adds rows/columns to a deconvolution's output; each component
	// must be smaller than the stride. Unused by convolution.
	AdjustPad Size2

	// Group is the number of channel groups; 0 derives it from the input
	// channel count and the weight tensor.
	Group int

	Backend BackendPreference
	Logger  *slog.Logger
}

// DefaultConfig returns a configuration for the given kernel with unit
// stride and dilation, no padding and automatic backend selection.
func DefaultConfig(kernel Size2) Config {
	return Config{
		Kernel:   kernel,
		Stride:   Square(1),
		Dilation: Square(1),
	}
}

// Validate checks the geometry shared by both layer kinds.
func (c Config) Validate() error {
	const op = "config"
	switch {
	case c.Kernel.H <= 0 || c.Kernel.W <= 0:
		return newError(op, ErrInvalidConfiguration, "kernel %s must be positive", c.Kernel)
	case c.Stride.H <= 0 || c.Stride.W <= 0:
		return newError(op, ErrInvalidConfiguration, "stride %s must be positive", c.Stride)
	case c.Dilation.H <= 0 || c.Dilation.W <= 0:
		return newError(op, ErrInvalidConfiguration, "dilation %s must be positive", c.Dilation)
	case c.Pad.H < 0 || c.Pad.W < 0:
		return newError(op, ErrInvalidConfiguration, "pad %s must be non-negative", c.Pad)
	case c.AdjustPad.H < 0 || c.AdjustPad.W < 0:
		return newError(op, ErrInvalidConfiguration, "adjust pad %s must be non-negative", c.AdjustPad)
	case c.Group < 0:
		return newError(op, ErrInvalidConfiguration, "group %d must be non-negative", c.Group)
	case c.PadMode < PadExplicit || c.PadMode > PadValid:
		return newError(op, ErrInvalidConfiguration, "unknown pad mode %d", int(c.PadMode))
	case c.Backend < BackendAuto || c.Backend > BackendAccelerator:
		return newError(op, ErrInvalidConfiguration, "unknown backend preference %d", int(c.Backend))
	}
	return nil
}

func (c Config) validateFor(d direction) error {
	if err := c.Validate(); err != nil {
		return err
	}
	op := d.String()
	switch d {
	case forwardConv:
		if c.AdjustPad != (Size2{}) {
			return newError(op, ErrInvalidConfiguration, "adjust pad %s applies to deconvolution only", c.AdjustPad)
		}
	case transposedConv:
		if c.PadMode != PadExplicit {
			return newError(op, ErrInvalidConfiguration, "pad mode %s is not supported by deconvolution", c.PadMode)
		}
		if c.AdjustPad.H >= c.Stride.H || c.AdjustPad.W >= c.Stride.W {
			return newError(op, ErrInvalidConfiguration, "adjust pad %s must be smaller than stride %s", c.AdjustPad, c.Stride)
		}
	}
	return nil
}

func (c Config) unitDilation() bool {
	return c.Dilation == Square(1)
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
