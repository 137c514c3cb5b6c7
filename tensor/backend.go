// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import "github.com/born-ml/convcore/internal/tensor"

// Backend defines the compute contract a convolution layer runs on.
// Backends own GEMM and the sliding-window kernels; layers only tile work
// across groups and batch items.
//
// Implementations:
//   - backend/cpu: host buffers, GEMM via gonum BLAS
//   - backend/webgpu: GPU compute via WGSL shaders (Windows)
//
// Example:
//
//	import (
//	    "github.com/born-ml/convcore/backend/cpu"
//	    "github.com/born-ml/convcore/tensor"
//	)
//
//	var backend tensor.Backend = cpu.New()
//	col, _ := backend.Alloc(w.ColShape(), tensor.Float32)
//	_ = backend.Im2Col(image, w, col)
type Backend = tensor.Backend

// Window describes sliding-window geometry for Im2Col, Im2Row and Col2Im.
type Window = tensor.Window

// ErrNotImplemented is returned by a backend for an operation it has no
// realization of.
var ErrNotImplemented = tensor.ErrNotImplemented
