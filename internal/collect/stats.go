package collect

import "sync/atomic"

// Stats are the per-phase run counters. Created at the start of a collector
// run, incremented from many goroutines, discarded after the phase summary.
type Stats struct {
	Processed  atomic.Int64
	APICalls   atomic.Int64
	Retries    atomic.Int64
	Complete   atomic.Int64
	Incomplete atomic.Int64
	Rejected   atomic.Int64
}

// IncCalls implements provider.CallCounter.
func (s *Stats) IncCalls() {
	s.APICalls.Add(1)
}

// IncRetries implements provider.CallCounter.
func (s *Stats) IncRetries() {
	s.Retries.Add(1)
}

// Snapshot is a plain-value copy for logging, notifications and the API.
type Snapshot struct {
	Processed  int64 `json:"processed"`
	APICalls   int64 `json:"api_calls"`
	Retries    int64 `json:"retries"`
	Complete   int64 `json:"complete"`
	Incomplete int64 `json:"incomplete"`
	Rejected   int64 `json:"rejected"`
}

// Snapshot returns a point-in-time copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Processed:  s.Processed.Load(),
		APICalls:   s.APICalls.Load(),
		Retries:    s.Retries.Load(),
		Complete:   s.Complete.Load(),
		Incomplete: s.Incomplete.Load(),
		Rejected:   s.Rejected.Load(),
	}
}

// CompleteRate returns the fraction of processed symbols that produced a
// complete record, or 0 when nothing was processed.
func (s Snapshot) CompleteRate() float64 {
	if s.Processed == 0 {
		return 0
	}
	return float64(s.Complete) / float64(s.Processed)
}
