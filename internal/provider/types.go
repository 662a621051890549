package provider

import "errors"

// ErrNoData means the provider had nothing for the symbol: a clean 2xx with a
// non-OK status, a 404, or retries exhausted. It is an expected per-symbol
// outcome, not a failure; callers treat it as "skip this symbol".
var ErrNoData = errors.New("provider: no data")

// ReferenceBar is the prior-session OHLCV aggregate for a symbol.
type ReferenceBar struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CompanyInfo is the reference/company payload for a symbol. MarketCap and
// SharesOutstanding are zero when the provider did not supply them.
type CompanyInfo struct {
	Name              string
	MarketCap         float64
	SharesOutstanding float64
}

// LastTrade is the most recent trade price for a symbol.
type LastTrade struct {
	Price float64
}

// CallCounter receives per-attempt accounting from the fetch loop. Every
// attempt counts one call; every attempt beyond the first counts one retry.
// Implementations must be safe for concurrent use.
type CallCounter interface {
	IncCalls()
	IncRetries()
}
