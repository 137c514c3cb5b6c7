// Package cpu implements the host backend: dense GEMM through gonum BLAS and
// the im2col / im2row / col2im sliding-window kernels over host buffers.
package cpu

import (
	"fmt"

	"github.com/born-ml/convcore/internal/parallel"
	"github.com/born-ml/convcore/internal/tensor"
)

// CPUBackend implements tensor.Backend on host memory.
//
// The backend holds no mutable state, so one instance may serve any number of
// layers concurrently. Kernels split work across channels according to its
// parallel configuration.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend with the default parallel configuration.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Alloc creates a zeroed host tensor.
func (cpu *CPUBackend) Alloc(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	return tensor.NewRaw(shape, dtype, cpu.device)
}

// Upload returns t unchanged when it already lives in host memory, otherwise
// a host copy of it.
func (cpu *CPUBackend) Upload(t *tensor.RawTensor) (*tensor.RawTensor, error) {
	if t.Device() == cpu.device {
		return t, nil
	}
	host, err := tensor.NewRaw(t.Shape(), t.DType(), cpu.device)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if err := host.CopyFrom(t); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return host, nil
}

// Fill sets every element of t to v.
func (cpu *CPUBackend) Fill(t *tensor.RawTensor, v float64) error {
	if err := cpu.checkDevice("fill", t); err != nil {
		return err
	}
	switch t.DType() {
	case tensor.Float32:
		fill(t.AsFloat32(), float32(v))
	case tensor.Float64:
		fill(t.AsFloat64(), v)
	default:
		return fmt.Errorf("fill: unsupported dtype %s", t.DType())
	}
	return nil
}

// Synchronize is a no-op: host kernels complete before returning.
func (cpu *CPUBackend) Synchronize() error {
	return nil
}

func (cpu *CPUBackend) checkDevice(op string, ts ...*tensor.RawTensor) error {
	for _, t := range ts {
		if t.Device() != cpu.device {
			return fmt.Errorf("%s: tensor on %s, backend is %s", op, t.Device(), cpu.device)
		}
	}
	return nil
}

func fill[T tensor.Float](data []T, v T) {
	for i := range data {
		data[i] = v
	}
}
