package tensor

import "fmt"

// GemmShape holds the logical dimensions of c[M,N] = op(a)[M,K] * op(b)[K,N].
type GemmShape struct {
	M, N, K int
}

// GemmDims validates operand ranks, dtypes and dimensions for a GEMM with the
// given transpose flags and returns its logical dimensions.
func GemmDims(transA, transB bool, a, b, c *RawTensor) (GemmShape, error) {
	if a.Rank() != 2 || b.Rank() != 2 || c.Rank() != 2 {
		return GemmShape{}, fmt.Errorf("gemm: operands must be 2D, got %dD, %dD, %dD", a.Rank(), b.Rank(), c.Rank())
	}
	if a.DType() != c.DType() || b.DType() != c.DType() {
		return GemmShape{}, fmt.Errorf("gemm: dtype mismatch %s, %s, %s", a.DType(), b.DType(), c.DType())
	}

	m, k := a.Dim(0), a.Dim(1)
	if transA {
		m, k = k, m
	}
	kb, n := b.Dim(0), b.Dim(1)
	if transB {
		kb, n = n, kb
	}

	if k != kb {
		return GemmShape{}, fmt.Errorf("gemm: inner dimension mismatch op(a)=[%d,%d] op(b)=[%d,%d]", m, k, kb, n)
	}
	if c.Dim(0) != m || c.Dim(1) != n {
		return GemmShape{}, fmt.Errorf("gemm: destination is %v, want [%d %d]", c.Shape(), m, n)
	}
	return GemmShape{M: m, N: n, K: k}, nil
}

// CheckWindowOperands validates an image tensor and a matrix tensor against
// a window geometry. The image may have any shape holding C*H*W elements;
// the matrix must be 2-D with exactly matShape.
func CheckWindowOperands(op string, image, matrix *RawTensor, w Window, matShape Shape) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if image.DType() != matrix.DType() {
		return fmt.Errorf("%s: dtype mismatch %s vs %s", op, image.DType(), matrix.DType())
	}
	if image.NumElements() != w.ImageSize() {
		return fmt.Errorf("%s: image has %d elements, window expects [%d %d %d]",
			op, image.NumElements(), w.Channels, w.Height, w.Width)
	}
	if !matrix.Shape().Equal(matShape) {
		return fmt.Errorf("%s: matrix is %v, want %v", op, matrix.Shape(), matShape)
	}
	if image.Overlaps(matrix) {
		return fmt.Errorf("%s: image and matrix overlap", op)
	}
	return nil
}
