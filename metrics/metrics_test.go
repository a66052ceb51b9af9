package metrics_test

import (
	"sync"
	"testing"

	"github.com/firasghr/loadspiker-engine/metrics"
)

func TestRecord_TotalsAndExclusiveOutcome(t *testing.T) {
	a := metrics.NewAggregator(1)
	a.Record(100, true)
	a.Record(200, false)

	s := a.Snapshot()
	if s.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", s.TotalRequests)
	}
	if s.SuccessfulRequests != 1 || s.FailedRequests != 1 {
		t.Errorf("success=%d failed=%d, want 1/1", s.SuccessfulRequests, s.FailedRequests)
	}
	if s.TotalResponseTimeUS != 300 {
		t.Errorf("TotalResponseTimeUS = %d, want 300", s.TotalResponseTimeUS)
	}
}

func TestRecord_MinMax(t *testing.T) {
	a := metrics.NewAggregator(1)
	a.Record(500, true)
	a.Record(50, true)
	a.Record(900, true)

	s := a.Snapshot()
	if s.MinResponseTimeUS != 50 {
		t.Errorf("Min = %d, want 50", s.MinResponseTimeUS)
	}
	if s.MaxResponseTimeUS != 900 {
		t.Errorf("Max = %d, want 900", s.MaxResponseTimeUS)
	}
}

func TestRecord_ZeroSentinelOverriddenByFirstSample(t *testing.T) {
	a := metrics.NewAggregator(1)
	a.Record(0, true)
	s := a.Snapshot()
	if s.MinResponseTimeUS != 0 {
		t.Errorf("Min after a single 0us sample = %d, want 0", s.MinResponseTimeUS)
	}
	a.Record(42, true)
	s = a.Snapshot()
	if s.MinResponseTimeUS != 42 {
		t.Errorf("Min after 0,42 = %d, want 42 (0 is the unset sentinel)", s.MinResponseTimeUS)
	}
}

func TestSnapshot_AvgWithinEpsilonOfSumOverTotal(t *testing.T) {
	a := metrics.NewAggregator(4)
	samples := []uint64{120_000, 80_000, 300_000}
	for _, s := range samples {
		a.Record(s, true)
	}
	snap := a.Snapshot()
	want := float64(snap.TotalResponseTimeUS) / float64(snap.TotalRequests) / 1000
	if diff := snap.AvgResponseTimeMS - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AvgResponseTimeMS = %v, want %v", snap.AvgResponseTimeMS, want)
	}
	if snap.MinResponseTimeUS > uint64(snap.AvgResponseTimeMS*1000) || uint64(snap.AvgResponseTimeMS*1000) > snap.MaxResponseTimeUS {
		t.Errorf("invariant min <= avg*1000 <= max violated: min=%d avg_us=%v max=%d",
			snap.MinResponseTimeUS, snap.AvgResponseTimeMS*1000, snap.MaxResponseTimeUS)
	}
}

func TestConcurrentRecord(t *testing.T) {
	a := metrics.NewAggregator(8)
	const goroutines = 500
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(n int) {
			defer wg.Done()
			a.Record(uint64(n+1), n%5 != 0)
		}(i)
	}
	wg.Wait()

	s := a.Snapshot()
	if s.TotalRequests != goroutines {
		t.Errorf("TotalRequests = %d, want %d", s.TotalRequests, goroutines)
	}
	if s.SuccessfulRequests+s.FailedRequests != s.TotalRequests {
		t.Errorf("success+failed = %d, want %d", s.SuccessfulRequests+s.FailedRequests, s.TotalRequests)
	}
}

func TestReset(t *testing.T) {
	a := metrics.NewAggregator(1)
	a.Record(10, true)
	a.Reset()
	s := a.Snapshot()
	if s.TotalRequests != 0 || s.MinResponseTimeUS != 0 || s.MaxResponseTimeUS != 0 {
		t.Errorf("Snapshot after Reset = %+v, want all zero", s)
	}
}
