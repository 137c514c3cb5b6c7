package tensor

import "errors"

// ErrNotImplemented is returned by a backend for an operation it has no
// realization of. Callers must not fall back silently to another backend.
var ErrNotImplemented = errors.New("operation not implemented by backend")

// Backend defines the compute capability a convolution layer runs on.
// Backends own the dense matrix multiply and the sliding-window kernels;
// the layer only tiles work across groups and batch items.
//
// Implementations:
//   - cpu: host buffers, GEMM via gonum BLAS
//   - webgpu: accelerator buffers, WGSL compute shaders
//
// Matrix operands are 2-D tensors (or row-range views of one). Every call is
// blocking from the caller's point of view: results are visible in the
// destination once Synchronize returns.
type Backend interface {
	// Name returns a human-readable backend name.
	Name() string

	// Device returns the device whose buffers this backend operates on.
	Device() Device

	// Alloc creates a zeroed tensor on the backend's device.
	Alloc(shape Shape, dtype DataType) (*RawTensor, error)

	// Upload returns t if it already lives on the backend's device, or a copy
	// of it that does.
	Upload(t *RawTensor) (*RawTensor, error)

	// Fill sets every element of t to v.
	Fill(t *RawTensor, v float64) error

	// Gemm computes c = alpha*op(a)*op(b) + beta*c, where op transposes its
	// operand when the matching flag is set.
	Gemm(transA, transB bool, alpha float64, a, b *RawTensor, beta float64, c *RawTensor) error

	// Im2Col gathers the receptive fields of src [C, H, W] into the columns of
	// dst [C*kH*kW, GridH*GridW].
	Im2Col(src *RawTensor, w Window, dst *RawTensor) error

	// Im2Row gathers the receptive fields of src [C, H, W] into the rows of
	// dst [GridH*GridW, C*kH*kW].
	Im2Row(src *RawTensor, w Window, dst *RawTensor) error

	// Col2Im overwrites dst [C, H, W] with the scatter-add of the columns of
	// src [C*kH*kW, GridH*GridW]; overlapping windows are summed.
	Col2Im(src *RawTensor, w Window, dst *RawTensor) error

	// Synchronize blocks until all submitted work is visible in host-readable
	// destination buffers.
	Synchronize() error
}
