package models

import "sync"

// LatencySamples is the number of round-trip samples kept per entity.
const LatencySamples = 10

// LatencyWindow is a bounded rolling window of round-trip times in
// milliseconds. The oldest sample is evicted first. Safe for concurrent use.
type LatencyWindow struct {
	mu      sync.Mutex
	samples []float64
}

func (w *LatencyWindow) Add(ms float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, ms)
	if over := len(w.samples) - LatencySamples; over > 0 {
		w.samples = append(w.samples[:0], w.samples[over:]...)
	}
}

// Average returns the mean of the window, or nil when no sample exists yet.
func (w *LatencyWindow) Average() *float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.samples) == 0 {
		return nil
	}
	var sum float64
	for _, s := range w.samples {
		sum += s
	}
	avg := sum / float64(len(w.samples))
	return &avg
}

// Samples returns a copy of the window, oldest first.
func (w *LatencyWindow) Samples() []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]float64, len(w.samples))
	copy(out, w.samples)
	return out
}
