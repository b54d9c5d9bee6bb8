package mcphost

import (
	"slices"
	"sync"
)

// defaultWindowSize is the number of recent calls kept per tool.
const defaultWindowSize = 100

// rollingWindow keeps the latency and outcome of the last size calls of one
// tool in a ring buffer. All methods are safe for concurrent use.
type rollingWindow struct {
	mu      sync.Mutex
	samples []int64
	failed  []bool
	pos     int
	count   int
}

// newRollingWindow creates a window holding size samples. A size of 0 or
// less selects defaultWindowSize.
func newRollingWindow(size int) *rollingWindow {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &rollingWindow{samples: make([]int64, size), failed: make([]bool, size)}
}

// Record adds one call, overwriting the oldest once the window is full.
func (w *rollingWindow) Record(latencyMs int64, isError bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.pos] = latencyMs
	w.failed[w.pos] = isError
	w.pos = (w.pos + 1) % len(w.samples)
	w.count++
}

func (w *rollingWindow) n() int {
	return min(w.count, len(w.samples))
}

// Percentile returns the p-th percentile latency (0 < p ≤ 1) in ms, or 0
// before any call was recorded.
func (w *rollingWindow) Percentile(p float64) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.n()
	if n == 0 {
		return 0
	}
	sorted := slices.Clone(w.samples[:n])
	slices.Sort(sorted)
	return sorted[int(float64(n-1)*p)]
}

// ErrorRate returns the fraction of failed calls in the window.
func (w *rollingWindow) ErrorRate() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.n()
	if n == 0 {
		return 0
	}
	var errs int
	for _, f := range w.failed[:n] {
		if f {
			errs++
		}
	}
	return float64(errs) / float64(n)
}

// Count returns the total number of calls recorded, including evicted ones.
func (w *rollingWindow) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}
