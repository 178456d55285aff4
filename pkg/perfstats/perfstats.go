// Package perfstats measures how long repeated operations take
package perfstats

import (
	"sync"
	"time"
)

// TimeAccumulator collects durations, and is safe for concurrent use
type TimeAccumulator struct {
	mu      sync.Mutex
	samples int64
	total   time.Duration
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.mu.Lock()
	a.samples++
	a.total += v
	a.mu.Unlock()
}

// Time runs f and records how long it took, whether or not it fails
func (a *TimeAccumulator) Time(f func() error) error {
	start := time.Now()
	err := f()
	a.AddSample(time.Since(start))
	return err
}

func (a *TimeAccumulator) Samples() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.samples
}

func (a *TimeAccumulator) Total() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

func (a *TimeAccumulator) Average() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.samples == 0 {
		return 0
	}
	return time.Duration(a.total.Nanoseconds() / a.samples)
}
