package workflow

import "sync"

// Run is the per-trading-day execution ledger. A phase is marked once it has
// been attempted, success or failure, so it can never fire twice for the same
// date. A halted run stays halted until the day rolls over.
type Run struct {
	Date string // YYYYMMDD

	mu       sync.Mutex
	executed map[string]bool
	halted   bool
}

// NewRun creates a fresh ledger for a trading date.
func NewRun(date string) *Run {
	return &Run{
		Date:     date,
		executed: make(map[string]bool),
	}
}

// Executed reports whether the phase has already been attempted.
func (r *Run) Executed(phaseID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.executed[phaseID]
}

// MarkExecuted records that the phase has been attempted.
func (r *Run) MarkExecuted(phaseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed[phaseID] = true
}

// Halt stops the run for the rest of the day.
func (r *Run) Halt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.halted = true
}

// Halted reports whether the run has been halted.
func (r *Run) Halted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted
}

// ExecutedPhases returns the set of attempted phase ids.
func (r *Run) ExecutedPhases() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool, len(r.executed))
	for id, v := range r.executed {
		out[id] = v
	}
	return out
}
