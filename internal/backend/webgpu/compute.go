//go:build windows

package webgpu

import (
	"fmt"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// maxWorkgroupsPerDim is the WebGPU default limit for one dispatch dimension.
const maxWorkgroupsPerDim = 65535

// kernel describes one compute dispatch: read-only inputs at bindings
// 0..len(inputs)-1, the destination at the next binding and the uniform
// parameters after it.
type kernel struct {
	name   string
	code   string
	inputs [][]byte
	// out receives the destination contents. When preload is set, its current
	// contents are uploaded first (GEMM with beta != 0).
	out     []byte
	preload bool
	params  []byte
	groups  [3]uint32
}

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Backend's shaders map.
func (b *Backend) compileShader(name, code string) *wgpu.ShaderModule {
	b.mu.RLock()
	if shader, exists := b.shaders[name]; exists {
		b.mu.RUnlock()
		return shader
	}
	b.mu.RUnlock()

	shader := b.device.CreateShaderModuleWGSL(code)

	b.mu.Lock()
	b.shaders[name] = shader
	b.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (b *Backend) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	b.mu.RLock()
	if pipeline, exists := b.pipelines[name]; exists {
		b.mu.RUnlock()
		return pipeline
	}
	b.mu.RUnlock()

	// Auto layout (nil layout)
	pipeline := b.device.CreateComputePipelineSimple(nil, shader, "main")

	b.mu.Lock()
	b.pipelines[name] = pipeline
	b.mu.Unlock()

	return pipeline
}

// createBuffer creates a GPU buffer holding a copy of data.
func (b *Backend) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createUniformBuffer creates a uniform buffer rounded up to 16 bytes.
func (b *Backend) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	alignedSize := (size + 15) &^ 15

	buffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// readBuffer copies size bytes of srcBuffer into dst through a staging buffer,
// since storage buffers can't be mapped directly.
func (b *Backend) readBuffer(srcBuffer *wgpu.Buffer, dst []byte) error {
	size := uint64(len(dst))
	stagingBuffer := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	if err := stagingBuffer.MapAsync(b.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	copy(dst, unsafe.Slice((*byte)(mappedPtr), size))
	stagingBuffer.Unmap()

	return nil
}

// run uploads the kernel's operands, dispatches it and reads the destination
// back into k.out.
func (b *Backend) run(k kernel) error {
	b.submitMu.Lock()
	defer b.submitMu.Unlock()
	if b.released {
		return ErrReleased
	}

	shader := b.compileShader(k.name, k.code)
	pipeline := b.getOrCreatePipeline(k.name, shader)

	entries := make([]wgpu.BindGroupEntry, 0, len(k.inputs)+2)
	for i, data := range k.inputs {
		buf := b.createBuffer(data, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
		defer buf.Release()
		//nolint:gosec // G115: binding indices and sizes are small and non-negative
		entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, uint64(len(data))))
	}

	outSize := uint64(len(k.out))
	var outBuf *wgpu.Buffer
	if k.preload {
		outBuf = b.createBuffer(k.out, destinationUsage)
		defer outBuf.Release()
	} else {
		outBuf = b.bufferPool.Acquire(outSize)
		defer b.bufferPool.Release(outBuf, outSize)
	}
	//nolint:gosec // G115: binding index is small and non-negative
	outBinding := uint32(len(k.inputs))
	entries = append(entries, wgpu.BufferBindingEntry(outBinding, outBuf, 0, outSize))

	paramBuf := b.createUniformBuffer(k.params)
	defer paramBuf.Release()
	entries = append(entries, wgpu.BufferBindingEntry(outBinding+1, paramBuf, 0, uint64((len(k.params)+15)&^15)))

	bindGroup := b.device.CreateBindGroupSimple(pipeline.GetBindGroupLayout(0), entries)
	defer bindGroup.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)
	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.DispatchWorkgroups(k.groups[0], k.groups[1], k.groups[2])
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	b.queue.Submit(cmdBuffer)

	if err := b.readBuffer(outBuf, k.out); err != nil {
		return fmt.Errorf("webgpu: %s: %w", k.name, err)
	}
	return nil
}

// linearGroups splits n invocations of a 1-D kernel over a 2-D grid of
// workgroups so large launches stay within the per-dimension limit. It
// returns the grid and its x extent in threads.
func linearGroups(n int) (groups [3]uint32, pitch uint32) {
	total := max((n+workgroupSize-1)/workgroupSize, 1)
	x := min(total, maxWorkgroupsPerDim)
	y := (total + x - 1) / x
	//nolint:gosec // G115: workgroup counts are bounded by maxWorkgroupsPerDim
	return [3]uint32{uint32(x), uint32(y), 1}, uint32(x * workgroupSize)
}
