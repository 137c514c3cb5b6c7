//go:build windows

package webgpu

import (
	"testing"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPoolAcquireRelease(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}

	backend, err := New()
	require.NoError(t, err)
	defer backend.Release()

	pool := NewBufferPool(backend.device)
	defer pool.Clear()

	const size = uint64(1024)
	first := pool.Acquire(size)
	require.NotNil(t, first)

	hits, misses, pooled := pool.Stats()
	assert.Equal(t, uint64(0), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, 0, pooled)

	pool.Release(first, size)
	_, _, pooled = pool.Stats()
	assert.Equal(t, 1, pooled)

	// Same size hits the pool; a different size misses.
	second := pool.Acquire(size)
	assert.Same(t, first, second)
	other := pool.Acquire(2 * size)

	hits, misses, pooled = pool.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(2), misses)
	assert.Equal(t, 0, pooled)

	pool.Release(second, size)
	pool.Release(other, 2*size)
}

func TestBufferPoolBounded(t *testing.T) {
	if !IsAvailable() {
		t.Skip("WebGPU not available")
	}

	backend, err := New()
	require.NoError(t, err)
	defer backend.Release()

	pool := NewBufferPool(backend.device)
	defer pool.Clear()

	const size = uint64(256)
	var bufs []*wgpu.Buffer
	for i := 0; i < maxPooledPerSize+3; i++ {
		bufs = append(bufs, pool.Acquire(size))
	}
	for _, buf := range bufs {
		pool.Release(buf, size)
	}
	_, _, pooled := pool.Stats()
	assert.Equal(t, maxPooledPerSize, pooled)

	pool.Clear()
	_, _, pooled = pool.Stats()
	assert.Equal(t, 0, pooled)
}
