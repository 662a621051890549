package universe

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/quantfold/screener/internal/store"
)

// Dated universe files look like symbols/nasdaq_symbols_20260828.csv; the
// comprehensive variant is a fallback the upstream collector also produces.
var universeFilePattern = regexp.MustCompile(`(nasdaq_symbols|comprehensive_symbols)_(\d{8})\.csv$`)

// Header names accepted for the ticker column, in preference order.
var symbolHeaders = []string{"symbol", "Symbol", "ticker", "Ticker"}

// LatestKey scans the store prefix for the newest dated universe file by
// lexicographic date suffix. Returns store.ErrNotFound when none exists.
func LatestKey(ctx context.Context, s store.Store, prefix string) (string, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("list universe files: %w", err)
	}

	var latestKey, latestDate string
	for _, key := range keys {
		m := universeFilePattern.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		if date := m[2]; date > latestDate {
			latestDate = date
			latestKey = key
		}
	}

	if latestKey == "" {
		return "", store.ErrNotFound
	}
	return latestKey, nil
}

// Load fetches and parses the universe file at key: a CSV with a ticker
// column. Symbols are upper-cased, validated (alphabetic, at most 6 chars),
// de-duplicated and sorted.
func Load(ctx context.Context, s store.Store, key string) ([]string, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get universe %s: %w", key, err)
	}

	symbols, err := ParseSymbolsCSV(data)
	if err != nil {
		return nil, fmt.Errorf("parse universe %s: %w", key, err)
	}
	return symbols, nil
}

// ParseSymbolsCSV extracts valid symbols from a CSV blob.
func ParseSymbolsCSV(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty csv")
	}

	col := symbolColumn(rows[0])
	if col < 0 {
		return nil, fmt.Errorf("no symbol column found")
	}

	seen := make(map[string]struct{})
	for _, row := range rows[1:] {
		if col >= len(row) {
			continue
		}
		sym := strings.ToUpper(strings.TrimSpace(row[col]))
		if !ValidSymbol(sym) {
			continue
		}
		seen[sym] = struct{}{}
	}

	symbols := make([]string, 0, len(seen))
	for sym := range seen {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ParseGainersCSV extracts the set of premarket top-gainer symbols.
func ParseGainersCSV(data []byte) (map[string]struct{}, error) {
	symbols, err := ParseSymbolsCSV(data)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		set[sym] = struct{}{}
	}
	return set, nil
}

// ValidSymbol reports whether s looks like a tradable US ticker.
func ValidSymbol(s string) bool {
	if s == "" || len(s) > 6 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func symbolColumn(header []string) int {
	for _, want := range symbolHeaders {
		for i, name := range header {
			if strings.TrimSpace(name) == want {
				return i
			}
		}
	}
	return -1
}
