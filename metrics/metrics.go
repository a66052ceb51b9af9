// Package metrics provides the engine's single mutually-exclusive metrics
// accumulator. The teacher's original design (see the lock-free, atomic
// counter-only Metrics type this replaces) spread total/success/failed
// across independent atomic fields with no way to track min/max latency
// consistently across separate atomic loads. Spec §4.2 requires one lock
// guarding every field — total, success/failure, sum, min ("0 means unset,
// first sample overrides"), max — and a Snapshot that is a consistent copy,
// so this package trades the lock-free design for a single sync.Mutex.
package metrics

import "sync"

// Snapshot is a consistent, point-in-time copy of the aggregator's state.
type Snapshot struct {
	TotalRequests       uint64
	SuccessfulRequests  uint64
	FailedRequests      uint64
	TotalResponseTimeUS uint64
	MinResponseTimeUS   uint64
	MaxResponseTimeUS   uint64
	RequestsPerSecond   float64
	AvgResponseTimeMS   float64
}

// Aggregator accumulates counters and latency extrema under one mutex.
//
// requests_per_second is computed at snapshot time as
// succeeded / (sum_us / 1e6 / workerCount) — the per-worker-second
// derivation specified in §3, not wall-clock RPS. spec.md documents this as
// a possible accounting quirk inherited from the original implementation;
// this package keeps it rather than silently "fixing" the contract (see
// SPEC_FULL.md Open Question (a)).
type Aggregator struct {
	mu sync.Mutex

	total   uint64
	success uint64
	failed  uint64
	sum     uint64
	min     uint64
	max     uint64

	workerCount int
}

// NewAggregator creates an Aggregator. workerCount feeds the
// requests_per_second derivation; pass the engine's configured worker count.
func NewAggregator(workerCount int) *Aggregator {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Aggregator{workerCount: workerCount}
}

// Record credits one completed operation. success is mutually exclusive with
// failure: exactly one of the successful/failed counters increments.
func (a *Aggregator) Record(responseTimeUS uint64, success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if success {
		a.success++
	} else {
		a.failed++
	}
	a.sum += responseTimeUS
	if a.min == 0 || responseTimeUS < a.min {
		a.min = responseTimeUS
	}
	if responseTimeUS > a.max {
		a.max = responseTimeUS
	}
}

// Snapshot returns a consistent copy of the aggregator's state with derived
// fields computed under the same lock as the raw counters.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		TotalRequests:       a.total,
		SuccessfulRequests:  a.success,
		FailedRequests:      a.failed,
		TotalResponseTimeUS: a.sum,
		MinResponseTimeUS:   a.min,
		MaxResponseTimeUS:   a.max,
	}
	if a.total > 0 {
		s.AvgResponseTimeMS = float64(a.sum) / float64(a.total) / 1000
	}
	if a.sum > 0 {
		workerSeconds := float64(a.sum) / 1_000_000 / float64(a.workerCount)
		if workerSeconds > 0 {
			s.RequestsPerSecond = float64(a.success) / workerSeconds
		}
	}
	return s
}

// Reset zeroes every field. Used between load-test runs that share one
// engine instance.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.total, a.success, a.failed, a.sum, a.min, a.max = 0, 0, 0, 0, 0, 0
}
