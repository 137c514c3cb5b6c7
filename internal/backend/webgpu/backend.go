//go:build windows

// Package webgpu implements the accelerator backend on WebGPU compute shaders.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
//
// Tensors tagged tensor.WebGPU keep a host-visible mirror of their contents.
// Every kernel uploads its operands, dispatches one compute pass and reads the
// destination back before returning, so results are host-readable as soon as
// the call completes.
package webgpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/convcore/internal/tensor"
	"github.com/go-webgpu/webgpu/wgpu"
)

// ErrReleased is returned by every operation after Release.
var ErrReleased = errors.New("webgpu: backend released")

// Backend implements tensor.Backend on a WebGPU device. Only float32 tensors
// are supported.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	// Scratch buffers for kernel destinations
	bufferPool *BufferPool

	// submitMu serializes encode/submit/readback so several layers can share
	// one backend.
	submitMu sync.Mutex
	released bool
}

// New creates a new WebGPU backend.
// Returns an error if WebGPU is not available or initialization fails.
func New() (backend *Backend, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: create instance: %w", err)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Backend{
		instance:   instance,
		adapter:    adapter,
		device:     device,
		queue:      queue,
		shaders:    make(map[string]*wgpu.ShaderModule),
		pipelines:  make(map[string]*wgpu.ComputePipeline),
		bufferPool: NewBufferPool(device),
	}, nil
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// Release releases all WebGPU resources.
// Must be called when the backend is no longer needed.
func (b *Backend) Release() {
	b.submitMu.Lock()
	defer b.submitMu.Unlock()
	if b.released {
		return
	}
	b.released = true

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bufferPool != nil {
		b.bufferPool.Clear()
		b.bufferPool = nil
	}
	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil
	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil

	if b.queue != nil {
		b.queue.Release()
		b.queue = nil
	}
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "WebGPU"
}

// Device returns the compute device.
func (b *Backend) Device() tensor.Device {
	return tensor.WebGPU
}

// Alloc creates a zeroed float32 tensor on the WebGPU device.
func (b *Backend) Alloc(shape tensor.Shape, dtype tensor.DataType) (*tensor.RawTensor, error) {
	if err := checkDType("alloc", dtype); err != nil {
		return nil, err
	}
	return tensor.NewRaw(shape, dtype, tensor.WebGPU)
}

// Upload returns t unchanged when it already lives on the WebGPU device,
// otherwise a device copy of it.
func (b *Backend) Upload(t *tensor.RawTensor) (*tensor.RawTensor, error) {
	if err := checkDType("upload", t.DType()); err != nil {
		return nil, err
	}
	if t.Device() == tensor.WebGPU {
		return t, nil
	}
	dev, err := tensor.NewRaw(t.Shape(), t.DType(), tensor.WebGPU)
	if err != nil {
		return nil, fmt.Errorf("webgpu: upload: %w", err)
	}
	if err := dev.CopyFrom(t); err != nil {
		return nil, fmt.Errorf("webgpu: upload: %w", err)
	}
	return dev, nil
}

// Fill sets every element of t to v.
func (b *Backend) Fill(t *tensor.RawTensor, v float64) error {
	if err := b.checkOperands("fill", t); err != nil {
		return err
	}
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32(v)
	}
	return nil
}

// Synchronize waits for submitted work. Kernels read their destination back
// before returning, so this only reports a released backend.
func (b *Backend) Synchronize() error {
	b.submitMu.Lock()
	defer b.submitMu.Unlock()
	if b.released {
		return ErrReleased
	}
	return nil
}

func checkDType(op string, dtype tensor.DataType) error {
	if dtype != tensor.Float32 {
		return fmt.Errorf("webgpu: %s: %s: %w", op, dtype, tensor.ErrNotImplemented)
	}
	return nil
}

func (b *Backend) checkOperands(op string, ts ...*tensor.RawTensor) error {
	for _, t := range ts {
		if err := checkDType(op, t.DType()); err != nil {
			return err
		}
		if t.Device() != tensor.WebGPU {
			return fmt.Errorf("webgpu: %s: tensor on %s, backend is %s", op, t.Device(), tensor.WebGPU)
		}
	}
	return nil
}
