// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for the convolution layers.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - GEMM via gonum BLAS with transpose flags
//   - Im2col, im2row and col2im window kernels
//   - Float32 and Float64 support
//
// # Basic Usage
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
//
// # Performance
//
// Convolution on the CPU uses im2row followed by GEMM with a transposed
// right operand, which keeps each window's taps contiguous. Window kernels
// split channels (or output rows) across goroutines once the work is large
// enough.
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. It holds no mutable state.
package cpu
