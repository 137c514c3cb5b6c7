// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the buffers and backend contract used by the
// convolution layers.
//
// # Overview
//
// This package provides:
//   - RawTensor: a dense, row-major buffer tagged with a dtype and a device
//   - Shape, DataType, Device descriptors
//   - Window: sliding-window geometry for im2col, im2row and col2im
//   - Backend: the compute contract implemented by backend/cpu and
//     backend/webgpu
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/convcore/backend/cpu"
//	    "github.com/born-ml/convcore/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//
//	    x, _ := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, tensor.CPU)
//	    w, _ := tensor.FromSlice([]float32{1, 0, 0, 1, 1, 1}, tensor.Shape{3, 2}, tensor.CPU)
//	    y, _ := backend.Alloc(tensor.Shape{2, 2}, tensor.Float32)
//	    _ = backend.Gemm(false, false, 1, x, w, 0, y)
//	}
//
// # Supported Data Types
//
// Float32 and Float64. Accelerator backends may support Float32 only and
// report ErrNotImplemented for the rest.
//
// # Devices
//
//   - CPU: host memory
//   - WebGPU: buffers managed by the WebGPU backend (Windows)
//
// # Views
//
// Reshape and RowRange return views sharing storage with their parent.
// Writes through a view are visible through the parent and every other
// view of the same buffer.
package tensor
