//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package webgpu provides the WebGPU backend for GPU-accelerated convolution.
//
// The backend supports Float32 GEMM, im2col and col2im. Im2row and Float64
// return tensor.ErrNotImplemented.
//
// Example:
//
//	import (
//	    "github.com/born-ml/convcore/backend/cpu"
//	    "github.com/born-ml/convcore/backend/webgpu"
//	    "github.com/born-ml/convcore/nn"
//	)
//
//	func main() {
//	    gpu, err := webgpu.New()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer gpu.Release()
//
//	    conv, _ := nn.NewConvolution(nn.DefaultConfig(nn.Square(3)), cpu.New(), gpu)
//	}
package webgpu

import (
	internalwebgpu "github.com/born-ml/convcore/internal/backend/webgpu"
	"github.com/born-ml/convcore/tensor"
)

// Backend represents the WebGPU backend implementation.
type Backend = internalwebgpu.Backend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// ErrReleased is returned by operations on a released backend.
var ErrReleased = internalwebgpu.ErrReleased

// New creates a new WebGPU backend.
//
// This function initializes the WebGPU device and returns a backend
// ready for use. Call Release() when done to free GPU resources.
//
// Returns an error if WebGPU initialization fails (e.g., no compatible GPU).
func New() (*Backend, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on the current system.
//
// Example:
//
//	var accel tensor.Backend
//	if webgpu.IsAvailable() {
//	    gpu, _ := webgpu.New()
//	    accel = gpu
//	}
//	conv, _ := nn.NewConvolution(cfg, cpu.New(), accel)
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
