//go:build windows

package webgpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/born-ml/convcore/internal/tensor"
)

// Gemm computes c = alpha*op(a)*op(b) + beta*c on the GPU.
func (b *Backend) Gemm(transA, transB bool, alpha float64, a, bm *tensor.RawTensor, beta float64, c *tensor.RawTensor) error {
	if err := b.checkOperands("gemm", a, bm, c); err != nil {
		return err
	}
	dims, err := tensor.GemmDims(transA, transB, a, bm, c)
	if err != nil {
		return fmt.Errorf("webgpu: %w", err)
	}
	if c.Overlaps(a) || c.Overlaps(bm) {
		return fmt.Errorf("webgpu: gemm: destination overlaps an operand")
	}

	params := make([]byte, 32)
	//nolint:gosec // G115: Safe conversions, matrix dimensions are non-negative
	binary.LittleEndian.PutUint32(params[0:4], uint32(dims.M))
	//nolint:gosec // G115: Safe conversions, matrix dimensions are non-negative
	binary.LittleEndian.PutUint32(params[4:8], uint32(dims.N))
	//nolint:gosec // G115: Safe conversions, matrix dimensions are non-negative
	binary.LittleEndian.PutUint32(params[8:12], uint32(dims.K))
	binary.LittleEndian.PutUint32(params[12:16], flag(transA))
	binary.LittleEndian.PutUint32(params[16:20], flag(transB))
	binary.LittleEndian.PutUint32(params[20:24], math.Float32bits(float32(alpha)))
	binary.LittleEndian.PutUint32(params[24:28], math.Float32bits(float32(beta)))

	//nolint:gosec // G115: workgroup counts are non-negative
	groups := [3]uint32{
		uint32((dims.N + gemmTile - 1) / gemmTile),
		uint32((dims.M + gemmTile - 1) / gemmTile),
		1,
	}

	return b.run(kernel{
		name:    "gemm",
		code:    gemmShader,
		inputs:  [][]byte{a.Data(), bm.Data()},
		out:     c.Data(),
		preload: beta != 0,
		params:  params,
		groups:  groups,
	})
}

// Im2Col gathers the receptive fields of src [C, H, W] into the columns of
// dst [C*kH*kW, GridH*GridW].
func (b *Backend) Im2Col(src *tensor.RawTensor, w tensor.Window, dst *tensor.RawTensor) error {
	if err := b.checkWindow("im2col", src, dst, w); err != nil {
		return err
	}
	total := w.Taps() * w.Positions()
	groups, pitch := linearGroups(total)
	return b.run(kernel{
		name:   "im2col",
		code:   im2colShader,
		inputs: [][]byte{src.Data()},
		out:    dst.Data(),
		params: windowUniform(w, total, pitch),
		groups: groups,
	})
}

// Im2Row has no shader on this backend; layers use Im2Col + GEMM instead.
func (b *Backend) Im2Row(_ *tensor.RawTensor, _ tensor.Window, _ *tensor.RawTensor) error {
	return fmt.Errorf("webgpu: im2row: %w", tensor.ErrNotImplemented)
}

// Col2Im overwrites dst [C, H, W] with the scatter-add of the columns of src.
func (b *Backend) Col2Im(src *tensor.RawTensor, w tensor.Window, dst *tensor.RawTensor) error {
	if err := b.checkWindow("col2im", dst, src, w); err != nil {
		return err
	}
	total := w.ImageSize()
	groups, pitch := linearGroups(total)
	return b.run(kernel{
		name:   "col2im",
		code:   col2imShader,
		inputs: [][]byte{src.Data()},
		out:    dst.Data(),
		params: windowUniform(w, total, pitch),
		groups: groups,
	})
}

func (b *Backend) checkWindow(op string, image, matrix *tensor.RawTensor, w tensor.Window) error {
	if err := b.checkOperands(op, image, matrix); err != nil {
		return err
	}
	if err := tensor.CheckWindowOperands(op, image, matrix, w, w.ColShape()); err != nil {
		return fmt.Errorf("webgpu: %w", err)
	}
	return nil
}

func windowUniform(w tensor.Window, total int, pitch uint32) []byte {
	fields := []int{
		w.Channels, w.Height, w.Width,
		w.KernelH, w.KernelW,
		w.PadH, w.PadW,
		w.StrideH, w.StrideW,
		w.DilationH, w.DilationW,
		w.GridH, w.GridW,
		total,
	}
	params := make([]byte, 64)
	for i, v := range fields {
		//nolint:gosec // G115: window extents are validated positive
		binary.LittleEndian.PutUint32(params[i*4:], uint32(v))
	}
	binary.LittleEndian.PutUint32(params[56:60], pitch)
	return params
}

func flag(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
