// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/convcore/internal/backend/cpu"
	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/tensor"
)

// Backend represents the CPU backend implementation.
//
// CPU backend runs GEMM through gonum BLAS and the window kernels in pure
// Go, spreading work across goroutines.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend using all available cores.
//
// Example:
//
//	import (
//	    "github.com/born-ml/convcore/backend/cpu"
//	    "github.com/born-ml/convcore/nn"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    conv, _ := nn.NewConvolution(nn.DefaultConfig(nn.Square(3)), backend, nil)
//	}
func New() *Backend {
	return internalcpu.New()
}

// NewSequential creates a CPU backend that runs the window kernels on the
// calling goroutine only. Useful when many layers already run concurrently
// through ForwardWith.
func NewSequential() *Backend {
	return internalcpu.NewWithConfig(parallel.Sequential())
}
