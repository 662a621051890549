package qualify

import (
	"fmt"
	"time"

	"github.com/quantfold/screener/internal/dataset"
	"github.com/quantfold/screener/internal/phaseconfig"
)

// Reasons surfaced verbatim in the persisted dataset.
const (
	ReasonBeforeWindow = "before window"
	ReasonMissingData  = "missing data"
)

// Qualifier evaluates phase predicates against canonical symbol records. It
// is pure: the wall clock is an argument, never read internally, and records
// are not mutated.
type Qualifier struct {
	t phaseconfig.Thresholds
}

// New creates a qualifier with the given thresholds.
func New(t phaseconfig.Thresholds) *Qualifier {
	return &Qualifier{t: t}
}

// Prefilter decides the pre-filter phase: market cap and previous close above
// their floors. It has no clock window; it runs whenever the initial pull
// runs.
func (q *Qualifier) Prefilter(rec *dataset.SymbolRecord) dataset.Outcome {
	if rec.MarketCapMillions <= 0 || rec.PreviousClose <= 0 {
		return indeterminate(ReasonMissingData)
	}

	if rec.MarketCapMillions < q.t.MinMarketCapMillions {
		return notQualified(fmt.Sprintf("market cap %.1fM below %.1fM", rec.MarketCapMillions, q.t.MinMarketCapMillions))
	}
	if rec.PreviousClose < q.t.MinPreviousClose {
		return notQualified(fmt.Sprintf("previous close %.2f below %.2f", rec.PreviousClose, q.t.MinPreviousClose))
	}

	return qualified()
}

// Primary decides the primary qualification phase. Indeterminate before the
// phase's legal window or when any required input is missing or non-positive;
// the guards run before any arithmetic, so a zero previous close can never
// qualify and never divides.
//
// Bounds are inclusive: a gain exactly at MinGainPct or MaxGainPct passes.
func (q *Qualifier) Primary(rec *dataset.SymbolRecord, phaseID string, windowStart, now time.Time) dataset.Outcome {
	if now.Before(windowStart) {
		return indeterminate(ReasonBeforeWindow)
	}

	obs, ok := rec.Observation(phaseID)
	if !ok || obs.Price <= 0 {
		return indeterminate(ReasonMissingData)
	}
	if rec.PreviousClose <= 0 || rec.PreviousOpen <= 0 || rec.PreviousVolume <= 0 {
		return indeterminate(ReasonMissingData)
	}

	gainPct := dataset.PctChange(obs.Price, rec.PreviousClose)

	if rec.PreviousVolume < q.t.MinVolume {
		return notQualified(fmt.Sprintf("volume %.0f below %.0f", rec.PreviousVolume, q.t.MinVolume))
	}
	if gainPct < q.t.MinGainPct {
		return notQualified(fmt.Sprintf("gain %.2f%% below %.2f%%", gainPct, q.t.MinGainPct))
	}
	if gainPct > q.t.MaxGainPct {
		return notQualified(fmt.Sprintf("gain %.2f%% above %.2f%%", gainPct, q.t.MaxGainPct))
	}
	if obs.Price <= rec.PreviousOpen {
		return notQualified(fmt.Sprintf("price %.2f not above reference open %.2f", obs.Price, rec.PreviousOpen))
	}

	return qualified()
}

// Momentum decides a momentum phase: the price now must exceed the price
// observed at the prior phase. Callers only invoke it for symbols qualified
// at the prior phase; everything else simply carries no entry.
func (q *Qualifier) Momentum(rec *dataset.SymbolRecord, phaseID, priorID string, windowStart, now time.Time) dataset.Outcome {
	if now.Before(windowStart) {
		return indeterminate(ReasonBeforeWindow)
	}

	obs, ok := rec.Observation(phaseID)
	if !ok || obs.Price <= 0 {
		return indeterminate(ReasonMissingData)
	}
	prior, ok := rec.Observation(priorID)
	if !ok || prior.Price <= 0 {
		return indeterminate(ReasonMissingData)
	}

	if obs.Price > prior.Price {
		return qualified()
	}
	return notQualified(fmt.Sprintf("price %.2f not above prior %.2f", obs.Price, prior.Price))
}

func qualified() dataset.Outcome {
	return dataset.Outcome{Status: dataset.StatusQualified}
}

func notQualified(reason string) dataset.Outcome {
	return dataset.Outcome{Status: dataset.StatusNotQualified, Reason: reason}
}

func indeterminate(reason string) dataset.Outcome {
	return dataset.Outcome{Status: dataset.StatusIndeterminate, Reason: reason}
}
