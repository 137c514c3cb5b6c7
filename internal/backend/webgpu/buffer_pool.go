//go:build windows

package webgpu

import (
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// maxPooledPerSize bounds the free list of one buffer size.
const maxPooledPerSize = 8

// destinationUsage is the usage of every pooled kernel destination buffer.
const destinationUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// BufferPool recycles kernel destination buffers between dispatches.
//
// A layer issues the same sequence of kernels with the same sizes on every
// forward pass, so buffers are keyed by exact byte size.
type BufferPool struct {
	device *wgpu.Device

	free map[uint64][]*wgpu.Buffer
	mu   sync.Mutex

	// Statistics
	hits   uint64
	misses uint64
}

// NewBufferPool creates a new buffer pool for the given device.
func NewBufferPool(device *wgpu.Device) *BufferPool {
	return &BufferPool{
		device: device,
		free:   make(map[uint64][]*wgpu.Buffer),
	}
}

// Acquire returns a destination buffer of exactly size bytes.
func (p *BufferPool) Acquire(size uint64) *wgpu.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if list := p.free[size]; len(list) > 0 {
		buf := list[len(list)-1]
		p.free[size] = list[:len(list)-1]
		p.hits++
		return buf
	}

	p.misses++
	return p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: destinationUsage,
		Size:  size,
	})
}

// Release returns a buffer to the pool, or frees it when the free list for
// its size is full.
func (p *BufferPool) Release(buf *wgpu.Buffer, size uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free[size]) >= maxPooledPerSize {
		buf.Release()
		return
	}
	p.free[size] = append(p.free[size], buf)
}

// Clear releases all pooled buffers.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for size, list := range p.free {
		for _, buf := range list {
			buf.Release()
		}
		delete(p.free, size)
	}
}

// Stats returns pool hit and miss counts and the number of idle buffers.
func (p *BufferPool) Stats() (hits, misses uint64, pooled int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, list := range p.free {
		pooled += len(list)
	}
	return p.hits, p.misses, pooled
}
