package cpu

import (
	"fmt"

	"github.com/born-ml/convcore/internal/tensor"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
)

// Gemm computes c = alpha*op(a)*op(b) + beta*c with gonum BLAS.
//
// Operands are row-major 2-D tensors or row-range views; c must not overlap
// a or b. The float32 path goes through blas32 (Sgemm), float64 through
// blas64 (Dgemm). gonum's native implementation parallelizes large
// multiplications internally.
func (cpu *CPUBackend) Gemm(transA, transB bool, alpha float64, a, b *tensor.RawTensor, beta float64, c *tensor.RawTensor) error {
	if err := cpu.checkDevice("gemm", a, b, c); err != nil {
		return err
	}
	if _, err := tensor.GemmDims(transA, transB, a, b, c); err != nil {
		return err
	}
	if c.Overlaps(a) || c.Overlaps(b) {
		return fmt.Errorf("gemm: destination overlaps an operand")
	}

	tA, tB := transpose(transA), transpose(transB)
	switch c.DType() {
	case tensor.Float32:
		blas32.Gemm(tA, tB, float32(alpha), general32(a), general32(b), float32(beta), general32(c))
	case tensor.Float64:
		blas64.Gemm(tA, tB, alpha, general64(a), general64(b), beta, general64(c))
	default:
		return fmt.Errorf("gemm: unsupported dtype %s", c.DType())
	}
	return nil
}

func transpose(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

func general32(t *tensor.RawTensor) blas32.General {
	return blas32.General{
		Rows:   t.Dim(0),
		Cols:   t.Dim(1),
		Stride: t.Dim(1),
		Data:   t.AsFloat32(),
	}
}

func general64(t *tensor.RawTensor) blas64.General {
	return blas64.General{
		Rows:   t.Dim(0),
		Cols:   t.Dim(1),
		Stride: t.Dim(1),
		Data:   t.AsFloat64(),
	}
}
