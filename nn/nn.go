// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package nn

import (
	"github.com/born-ml/convcore/internal/nn"
	"github.com/born-ml/convcore/tensor"
)

// Layers

// Convolution is a grouped 2-D convolution layer.
type Convolution = nn.Convolution

// NewConvolution creates a convolution layer. accel may be nil.
//
// Example:
//
//	cfg := nn.DefaultConfig(nn.Square(3))
//	cfg.Pad = nn.Square(1)
//	conv, err := nn.NewConvolution(cfg, cpu.New(), nil)
func NewConvolution(cfg Config, host, accel tensor.Backend) (*Convolution, error) {
	return nn.NewConvolution(cfg, host, accel)
}

// Deconvolution is a grouped 2-D transposed convolution layer.
type Deconvolution = nn.Deconvolution

// NewDeconvolution creates a deconvolution layer. accel may be nil.
//
// Example:
//
//	cfg := nn.DefaultConfig(nn.Square(4))
//	cfg.Stride = nn.Square(2)
//	cfg.Pad = nn.Square(1)
//	up, err := nn.NewDeconvolution(cfg, cpu.New(), nil) // 2x upsampling
func NewDeconvolution(cfg Config, host, accel tensor.Backend) (*Deconvolution, error) {
	return nn.NewDeconvolution(cfg, host, accel)
}

// Scratch is a caller-owned column buffer for ForwardWith.
type Scratch = nn.Scratch

// Configuration

// Config holds the geometry of a layer.
type Config = nn.Config

// Size2 is a (height, width) pair.
type Size2 = nn.Size2

// PadMode selects how padding is derived.
type PadMode = nn.PadMode

// Pad modes.
const (
	PadExplicit = nn.PadExplicit
	PadSame     = nn.PadSame
	PadValid    = nn.PadValid
)

// BackendPreference selects which backend a layer runs on.
type BackendPreference = nn.BackendPreference

// Backend preferences.
const (
	BackendAuto        = nn.BackendAuto
	BackendHost        = nn.BackendHost
	BackendAccelerator = nn.BackendAccelerator
)

// DefaultConfig returns a configuration with unit stride and dilation and no
// padding.
func DefaultConfig(kernel Size2) Config {
	return nn.DefaultConfig(kernel)
}

// Square returns Size2{n, n}.
func Square(n int) Size2 {
	return nn.Square(n)
}

// Shape inference

// State is the lifecycle stage of a layer.
type State = nn.State

// Lifecycle stages.
const (
	Unconfigured = nn.Unconfigured
	Configured   = nn.Configured
	ShapeKnown   = nn.ShapeKnown
	Ready        = nn.Ready
)

// LayerState holds the scalars derived from configuration, weight and input
// shapes.
type LayerState = nn.LayerState

// InferConvolution derives the LayerState of a convolution.
func InferConvolution(cfg Config, weight, input tensor.Shape) (LayerState, error) {
	return nn.InferConvolution(cfg, weight, input)
}

// InferDeconvolution derives the LayerState of a deconvolution.
func InferDeconvolution(cfg Config, weight, input tensor.Shape) (LayerState, error) {
	return nn.InferDeconvolution(cfg, weight, input)
}

// ConvOutputSize returns the output extent and leading pad of one spatial
// axis of a convolution.
func ConvOutputSize(in, kernel, stride, dilation, pad int, mode PadMode) (out, lead int) {
	return nn.ConvOutputSize(in, kernel, stride, dilation, pad, mode)
}

// DeconvOutputSize returns the output extent of one spatial axis of a
// deconvolution.
func DeconvOutputSize(in, kernel, stride, dilation, pad, adjust int) int {
	return nn.DeconvOutputSize(in, kernel, stride, dilation, pad, adjust)
}

// Errors

// LayerError provides detailed information about a layer failure.
type LayerError = nn.LayerError

// Error kinds, matched with errors.Is.
var (
	ErrInvalidConfiguration = nn.ErrInvalidConfiguration
	ErrShapeMismatch        = nn.ErrShapeMismatch
	ErrUnsupportedBackend   = nn.ErrUnsupportedBackend
	ErrBackend              = nn.ErrBackend
)
