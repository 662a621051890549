package dataset

import (
	"sort"
)

// Status is the tri-state qualification outcome for a symbol at a phase.
type Status string

const (
	StatusQualified     Status = "qualified"
	StatusNotQualified  Status = "not_qualified"
	StatusIndeterminate Status = "indeterminate"
)

// Outcome is the recorded qualification decision for one phase.
type Outcome struct {
	Status Status
	Reason string
}

// Observation holds the price/volume seen for a symbol at a phase checkpoint.
type Observation struct {
	Price  float64
	Volume float64
}

// SymbolRecord is the canonical per-symbol row, mutated in place across the
// phases of one trading day. Previous-session fields are set once at the
// initial pull and never overwritten; phase maps are append-only.
type SymbolRecord struct {
	Symbol      string
	CompanyName string

	PreviousOpen   float64
	PreviousHigh   float64
	PreviousLow    float64
	PreviousClose  float64
	PreviousVolume float64

	// Percentage change open->close of the previous session.
	PreviousPctFromOpen float64

	SharesOutstanding float64
	MarketCap         float64 // provider-supplied, raw dollars
	MarketCapMillions float64 // calculated, see merge.go

	TopGainer bool

	Observations map[string]Observation
	Outcomes     map[string]Outcome
}

// NewSymbolRecord creates an empty record for a symbol.
func NewSymbolRecord(symbol string) *SymbolRecord {
	return &SymbolRecord{
		Symbol:       symbol,
		Observations: make(map[string]Observation),
		Outcomes:     make(map[string]Outcome),
	}
}

// Observe records the price/volume seen at a phase checkpoint. The first
// observation for a phase wins; later writes are ignored.
func (r *SymbolRecord) Observe(phase string, obs Observation) {
	if r.Observations == nil {
		r.Observations = make(map[string]Observation)
	}
	if _, ok := r.Observations[phase]; ok {
		return
	}
	r.Observations[phase] = obs
}

// Observation returns the observation for a phase, if present.
func (r *SymbolRecord) Observation(phase string) (Observation, bool) {
	obs, ok := r.Observations[phase]
	return obs, ok
}

// SetOutcome records the qualification outcome for a phase. Once set for a
// phase it is immutable; later writes are ignored.
func (r *SymbolRecord) SetOutcome(phase string, out Outcome) {
	if r.Outcomes == nil {
		r.Outcomes = make(map[string]Outcome)
	}
	if _, ok := r.Outcomes[phase]; ok {
		return
	}
	r.Outcomes[phase] = out
}

// Outcome returns the outcome for a phase, if present.
func (r *SymbolRecord) Outcome(phase string) (Outcome, bool) {
	out, ok := r.Outcomes[phase]
	return out, ok
}

// QualifiedAt reports whether the record was qualified at the given phase.
func (r *SymbolRecord) QualifiedAt(phase string) bool {
	out, ok := r.Outcomes[phase]
	return ok && out.Status == StatusQualified
}

// Dataset is the per-trading-day table, one record per symbol. The phase
// column set grows monotonically through the day and never shrinks.
type Dataset struct {
	Date    string // YYYYMMDD
	records map[string]*SymbolRecord
	order   []string // insertion order of symbols
	phases  []string // order in which phases contributed columns
}

// New creates an empty dataset for a trading date.
func New(date string) *Dataset {
	return &Dataset{
		Date:    date,
		records: make(map[string]*SymbolRecord),
	}
}

// Get returns the record for a symbol, if present.
func (d *Dataset) Get(symbol string) (*SymbolRecord, bool) {
	rec, ok := d.records[symbol]
	return rec, ok
}

// Put inserts or replaces a record.
func (d *Dataset) Put(rec *SymbolRecord) {
	if _, ok := d.records[rec.Symbol]; !ok {
		d.order = append(d.order, rec.Symbol)
	}
	d.records[rec.Symbol] = rec
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	return len(d.records)
}

// Symbols returns symbols in insertion order.
func (d *Dataset) Symbols() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Records returns all records in insertion order.
func (d *Dataset) Records() []*SymbolRecord {
	out := make([]*SymbolRecord, 0, len(d.order))
	for _, sym := range d.order {
		out = append(out, d.records[sym])
	}
	return out
}

// AddPhase registers a phase so its columns appear in the persisted table.
// Registering an already known phase is a no-op.
func (d *Dataset) AddPhase(phase string) {
	for _, p := range d.phases {
		if p == phase {
			return
		}
	}
	d.phases = append(d.phases, phase)
}

// Phases returns the phases that have contributed columns, in order.
func (d *Dataset) Phases() []string {
	out := make([]string, len(d.phases))
	copy(out, d.phases)
	return out
}

// QualifiedSymbols returns the symbols qualified at the given phase, sorted.
func (d *Dataset) QualifiedSymbols(phase string) []string {
	out := make([]string, 0)
	for sym, rec := range d.records {
		if rec.QualifiedAt(phase) {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// CountByStatus tallies outcomes for a phase.
func (d *Dataset) CountByStatus(phase string) (qualified, notQualified, indeterminate int) {
	for _, rec := range d.records {
		out, ok := rec.Outcomes[phase]
		if !ok {
			continue
		}
		switch out.Status {
		case StatusQualified:
			qualified++
		case StatusNotQualified:
			notQualified++
		case StatusIndeterminate:
			indeterminate++
		}
	}
	return
}
