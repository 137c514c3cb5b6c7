// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides grouped 2-D convolution and transposed convolution
// layers for inference.
//
// # Overview
//
// This package contains:
//   - Layers: Convolution, Deconvolution
//   - Geometry: Config, Size2, PadMode (explicit, same, valid)
//   - Shape inference: InferConvolution, InferDeconvolution, LayerState
//   - Errors: ErrInvalidConfiguration, ErrShapeMismatch, ErrUnsupportedBackend
//
// Both layers lower each (batch item, group) slice to GEMM: convolution
// gathers windows with im2row/im2col and multiplies; deconvolution
// multiplies by the transposed weight and scatters with col2im.
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/convcore/backend/cpu"
//	    "github.com/born-ml/convcore/nn"
//	    "github.com/born-ml/convcore/tensor"
//	)
//
//	func main() {
//	    cfg := nn.DefaultConfig(nn.Square(3))
//	    cfg.Pad = nn.Square(1)
//
//	    conv, _ := nn.NewConvolution(cfg, cpu.New(), nil)
//	    _ = conv.Bind(weight, bias)                             // [2, 3, 3, 3], [2]
//	    outs, _ := conv.Allocate([]tensor.Shape{{1, 3, 5, 5}}) // [1, 2, 5, 5]
//	    outs, _ = conv.Forward([]*tensor.RawTensor{input})
//	}
//
// # Lifecycle
//
// A layer moves Unconfigured -> Configured (Bind) -> Ready (Allocate).
// Allocate may be called again with new input shapes; buffers are rebuilt
// only when the geometry changes.
//
// # Thread Safety
//
// Forward calls on one layer are serialized. ForwardWith takes a
// caller-owned Scratch and outputs and may run concurrently with other
// ForwardWith calls.
//
// # Backends
//
// With BackendAuto a layer runs on the accelerator when one is supplied and
// its geometry is supported there, on the host otherwise. Bind settles the
// choice once the element type is known: a float64 layer moves to the host
// because the WebGPU backend computes in float32 only. From then on the
// backend is fixed. Accelerator failures are reported, never hidden by a
// silent fallback.
package nn
