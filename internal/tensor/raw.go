package tensor

import (
	"fmt"
	"unsafe"
)

// Device represents the compute device a tensor's storage belongs to.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// tensorBuffer is the storage shared by a tensor and all views derived from it.
type tensorBuffer struct {
	data []byte
}

// RawTensor is the low-level tensor representation.
//
// Reshape and RowRange return views that share storage with their parent;
// writes through a view are visible through every other view of the buffer.
type RawTensor struct {
	buffer *tensorBuffer // Shared buffer
	shape  Shape         // Tensor dimensions
	stride []int         // Memory strides (row-major)
	dtype  DataType      // Runtime type information
	device Device        // Compute device
	offset int           // Byte offset of the first element
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zeroed.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid data type %d", dtype)
	}

	byteSize := shape.NumElements() * dtype.Size()

	return &RawTensor{
		buffer: &tensorBuffer{data: make([]byte, byteSize)},
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice[T Float](data []T, shape Shape, device Device) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}

	raw, err := NewRaw(shape, DataTypeOf[T](), device)
	if err != nil {
		return nil, err
	}
	copy(Values[T](raw), data)
	return raw, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// Rank returns the number of dimensions.
func (r *RawTensor) Rank() int {
	return len(r.shape)
}

// Dim returns the size of dimension i.
func (r *RawTensor) Dim(i int) int {
	return r.shape[i]
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the memory size of the viewed elements in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw bytes of the viewed elements.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.buffer.data[r.offset : r.offset+r.ByteSize()]
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	data := r.buffer.data[r.offset:]
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	data := r.buffer.data[r.offset:]
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), r.NumElements())
}

// Values returns the tensor's elements typed as T.
// Panics if T does not match the tensor's dtype.
func Values[T Float](r *RawTensor) []T {
	var dummy T
	switch any(dummy).(type) {
	case float32:
		return any(r.AsFloat32()).([]T)
	default:
		return any(r.AsFloat64()).([]T)
	}
}

// Reshape returns a view of the tensor with a different shape.
// The view shares storage with r.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("reshape: incompatible shapes: %v -> %v (different number of elements)",
			r.shape, shape)
	}
	return &RawTensor{
		buffer: r.buffer,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset,
	}, nil
}

// RowRange returns a view of n consecutive rows of a 2-D tensor, starting at
// row start. The view shares storage with r.
func (r *RawTensor) RowRange(start, n int) (*RawTensor, error) {
	if len(r.shape) != 2 {
		return nil, fmt.Errorf("row range: tensor must be 2D, got %dD", len(r.shape))
	}
	rows, cols := r.shape[0], r.shape[1]
	if start < 0 || n <= 0 || start+n > rows {
		return nil, fmt.Errorf("row range: [%d, %d) out of bounds for %d rows", start, start+n, rows)
	}
	return &RawTensor{
		buffer: r.buffer,
		shape:  Shape{n, cols},
		stride: []int{cols, 1},
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset + start*cols*r.dtype.Size(),
	}, nil
}

// SharesStorage reports whether r and other are views of the same buffer.
func (r *RawTensor) SharesStorage(other *RawTensor) bool {
	return other != nil && r.buffer == other.buffer
}

// Overlaps reports whether the byte ranges viewed by r and other intersect.
func (r *RawTensor) Overlaps(other *RawTensor) bool {
	if !r.SharesStorage(other) {
		return false
	}
	return r.offset < other.offset+other.ByteSize() && other.offset < r.offset+r.ByteSize()
}

// CopyFrom copies the elements of src into r.
func (r *RawTensor) CopyFrom(src *RawTensor) error {
	if src.dtype != r.dtype {
		return fmt.Errorf("copy: dtype mismatch %s vs %s", src.dtype, r.dtype)
	}
	if src.NumElements() != r.NumElements() {
		return fmt.Errorf("copy: element count mismatch %d vs %d", src.NumElements(), r.NumElements())
	}
	copy(r.Data(), src.Data())
	return nil
}
