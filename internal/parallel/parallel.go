// Package parallel provides the chunked parallel loops used by the host
// sliding-window kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinWork    int  // Minimum total work (items*cost) worth splitting.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinWork:    1 << 14,
	}
}

// Sequential returns a configuration that never spawns goroutines.
func Sequential() Config {
	return Config{NumWorkers: 1}
}

// Range splits [0, n) into contiguous chunks and calls f(lo, hi) for each.
// cost is the approximate work per item; small loops run on the caller's
// goroutine. Range returns once every chunk has completed.
func Range(n, cost int, f func(lo, hi int), cfg Config) {
	if n <= 0 {
		return
	}
	workers := min(cfg.NumWorkers, n)
	if !cfg.Enabled || workers <= 1 || n*max(cost, 1) < cfg.MinWork {
		f(0, n)
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + workers - 1) / workers

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}

// For executes f(i) for i in [0, n), chunked like Range.
func For(n, cost int, f func(i int), cfg Config) {
	Range(n, cost, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			f(i)
		}
	}, cfg)
}
