package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// The persisted table keeps a fixed set of base columns followed by four
// columns per phase. Phase columns are suffixed "@<phase id>" and only ever
// appended, matching the monotone column growth through the day.
var baseColumns = []string{
	"symbol",
	"company_name",
	"previous_open",
	"previous_high",
	"previous_low",
	"previous_close",
	"previous_volume",
	"previous_pct_from_open",
	"shares_outstanding",
	"market_cap",
	"market_cap_millions",
	"top_gainer",
}

// Encode serializes the dataset to CSV.
func Encode(d *Dataset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, 0, len(baseColumns)+4*len(d.phases))
	header = append(header, baseColumns...)
	for _, phase := range d.phases {
		header = append(header,
			"price@"+phase,
			"volume@"+phase,
			"status@"+phase,
			"reason@"+phase,
		)
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for _, rec := range d.Records() {
		row := make([]string, 0, len(header))
		row = append(row,
			rec.Symbol,
			rec.CompanyName,
			ffloat(rec.PreviousOpen),
			ffloat(rec.PreviousHigh),
			ffloat(rec.PreviousLow),
			ffloat(rec.PreviousClose),
			ffloat(rec.PreviousVolume),
			ffloat(rec.PreviousPctFromOpen),
			ffloat(rec.SharesOutstanding),
			ffloat(rec.MarketCap),
			ffloat(rec.MarketCapMillions),
			strconv.FormatBool(rec.TopGainer),
		)

		for _, phase := range d.phases {
			if obs, ok := rec.Observations[phase]; ok {
				row = append(row, ffloat(obs.Price), ffloat(obs.Volume))
			} else {
				row = append(row, "", "")
			}
			if out, ok := rec.Outcomes[phase]; ok {
				row = append(row, string(out.Status), out.Reason)
			} else {
				row = append(row, "", "")
			}
		}

		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write row %s: %w", rec.Symbol, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a persisted dataset for the given trading date.
func Decode(date string, data []byte) (*Dataset, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty dataset file")
	}

	header := rows[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	for _, required := range []string{"symbol", "previous_close"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	d := New(date)

	// Phase order is the order of price@ columns in the header.
	for _, name := range header {
		if phase, ok := strings.CutPrefix(name, "price@"); ok {
			d.AddPhase(phase)
		}
	}

	get := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	for n, row := range rows[1:] {
		symbol := get(row, "symbol")
		if symbol == "" {
			return nil, fmt.Errorf("row %d: empty symbol", n+2)
		}

		rec := NewSymbolRecord(symbol)
		rec.CompanyName = get(row, "company_name")
		rec.PreviousOpen = pfloat(get(row, "previous_open"))
		rec.PreviousHigh = pfloat(get(row, "previous_high"))
		rec.PreviousLow = pfloat(get(row, "previous_low"))
		rec.PreviousClose = pfloat(get(row, "previous_close"))
		rec.PreviousVolume = pfloat(get(row, "previous_volume"))
		rec.PreviousPctFromOpen = pfloat(get(row, "previous_pct_from_open"))
		rec.SharesOutstanding = pfloat(get(row, "shares_outstanding"))
		rec.MarketCap = pfloat(get(row, "market_cap"))
		rec.MarketCapMillions = pfloat(get(row, "market_cap_millions"))
		rec.TopGainer = get(row, "top_gainer") == "true"

		for _, phase := range d.phases {
			if price := get(row, "price@"+phase); price != "" {
				rec.Observe(phase, Observation{
					Price:  pfloat(price),
					Volume: pfloat(get(row, "volume@"+phase)),
				})
			}
			if status := get(row, "status@"+phase); status != "" {
				rec.SetOutcome(phase, Outcome{
					Status: Status(status),
					Reason: get(row, "reason@"+phase),
				})
			}
		}

		d.Put(rec)
	}

	return d, nil
}

func ffloat(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func pfloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
