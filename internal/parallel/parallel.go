// Package parallel fans independent pieces of numeric work out over goroutines.
//
// Callers must only hand it work items that touch disjoint outputs, e.g. the
// blocks of a block-diagonal transform or the examples of a read-only
// evaluation pass.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinItems   int  // Below this many items work runs on the calling goroutine.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinItems:   4,
	}
}

// Sequential returns a Config that never spawns goroutines.
func Sequential() Config {
	return Config{NumWorkers: 1}
}

// WithWorkers returns a copy of cfg using n workers; n <= 1 disables
// parallelism.
func (cfg Config) WithWorkers(n int) Config {
	cfg.NumWorkers = n
	cfg.Enabled = n > 1
	return cfg
}

// For executes f(i) for i in [0, n), splitting the range into one contiguous
// chunk per worker. Falls back to sequential execution if parallelism is
// disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < max(cfg.MinItems, 2) {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := (n + cfg.NumWorkers - 1) / cfg.NumWorkers

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// Sum evaluates f(i) for i in [0, n) like For and returns the total.
// The partial results are added in index order, so the sum does not depend
// on scheduling.
func Sum(n int, f func(i int) float64, cfg Config) float64 {
	parts := make([]float64, n)
	For(n, func(i int) {
		parts[i] = f(i)
	}, cfg)

	total := 0.0
	for _, p := range parts {
		total += p
	}
	return total
}
