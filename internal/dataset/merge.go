package dataset

import (
	"errors"

	"github.com/quantfold/screener/internal/provider"
)

// ErrRejected means a fetched payload failed the structural sanity check and
// the symbol must be dropped for the current phase, not merely flagged.
var ErrRejected = errors.New("dataset: record rejected")

// MergeReference combines a prior-session bar and optional company info into
// a canonical SymbolRecord. When existing is non-nil its previous-session
// fields win; the fetch only fills what was never set.
//
// Rejection rules: any of open/high/low/close/volume missing or <= 0, or the
// OHLC invariant (low <= open <= high, low <= close <= high) violated.
func MergeReference(symbol string, bar *provider.ReferenceBar, company *provider.CompanyInfo, existing *SymbolRecord) (*SymbolRecord, error) {
	if bar == nil {
		return nil, ErrRejected
	}
	if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 || bar.Volume <= 0 {
		return nil, ErrRejected
	}
	if !(bar.Low <= bar.Open && bar.Open <= bar.High) || !(bar.Low <= bar.Close && bar.Close <= bar.High) {
		return nil, ErrRejected
	}

	rec := existing
	if rec == nil {
		rec = NewSymbolRecord(symbol)
	}

	// Previous-session reference values are set once, never overwritten.
	if rec.PreviousClose == 0 {
		rec.PreviousOpen = bar.Open
		rec.PreviousHigh = bar.High
		rec.PreviousLow = bar.Low
		rec.PreviousClose = bar.Close
		rec.PreviousVolume = bar.Volume
		rec.PreviousPctFromOpen = PctChange(bar.Close, bar.Open)
	}

	mergeCompany(rec, company)

	return rec, nil
}

// mergeCompany fills company name, shares outstanding and the derived market
// cap. Prefers price * shares; falls back to the provider-supplied market cap
// when the share count is absent, also backing out a share count from it.
func mergeCompany(rec *SymbolRecord, company *provider.CompanyInfo) {
	if company == nil {
		if rec.CompanyName == "" {
			rec.CompanyName = "N/A"
		}
		return
	}

	if rec.CompanyName == "" || rec.CompanyName == "N/A" {
		if company.Name != "" {
			rec.CompanyName = company.Name
		} else {
			rec.CompanyName = "N/A"
		}
	}

	price := rec.PreviousClose

	if rec.MarketCapMillions != 0 {
		return // derived once when price and share count first known
	}

	switch {
	case company.SharesOutstanding > 0 && price > 0:
		rec.SharesOutstanding = company.SharesOutstanding
		rec.MarketCap = company.MarketCap
		rec.MarketCapMillions = company.SharesOutstanding * price / 1e6
	case company.MarketCap > 0 && price > 0:
		rec.MarketCap = company.MarketCap
		rec.MarketCapMillions = company.MarketCap / 1e6
		rec.SharesOutstanding = company.MarketCap / price
	default:
		rec.MarketCap = company.MarketCap
	}
}

// PctChange computes ((current-base)/base)*100. A zero or negative base
// yields 0.0; it never panics.
func PctChange(current, base float64) float64 {
	if base <= 0 {
		return 0.0
	}
	return ((current - base) / base) * 100
}
