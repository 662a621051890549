package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDataset() *Dataset {
	d := New("20260828")

	a := NewSymbolRecord("AAPL")
	a.CompanyName = "Apple Inc."
	a.PreviousOpen = 10.10
	a.PreviousHigh = 11.00
	a.PreviousLow = 9.90
	a.PreviousClose = 10.00
	a.PreviousVolume = 2_000_000
	a.PreviousPctFromOpen = -0.99
	a.MarketCapMillions = 420
	a.TopGainer = true
	a.Observe("8:37", Observation{Price: 10.50, Volume: 2_000_000})
	a.SetOutcome("prefilter", Outcome{Status: StatusQualified})
	a.SetOutcome("8:37", Outcome{Status: StatusQualified})
	d.Put(a)

	b := NewSymbolRecord("ZZZQ")
	b.PreviousClose = 2.50
	b.SetOutcome("prefilter", Outcome{Status: StatusNotQualified, Reason: "previous close 2.50 below 3.00"})
	d.Put(b)

	d.AddPhase("prefilter")
	d.AddPhase("8:37")
	return d
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	d := sampleDataset()

	data, err := Encode(d)
	require.NoError(t, err)

	got, err := Decode("20260828", data)
	require.NoError(t, err)

	assert.Equal(t, []string{"prefilter", "8:37"}, got.Phases())
	assert.Equal(t, []string{"AAPL", "ZZZQ"}, got.Symbols())

	a, ok := got.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "Apple Inc.", a.CompanyName)
	assert.Equal(t, 10.00, a.PreviousClose)
	assert.True(t, a.TopGainer)

	obs, ok := a.Observation("8:37")
	require.True(t, ok)
	assert.Equal(t, 10.50, obs.Price)
	assert.True(t, a.QualifiedAt("8:37"))

	b, ok := got.Get("ZZZQ")
	require.True(t, ok)
	out, ok := b.Outcome("prefilter")
	require.True(t, ok)
	assert.Equal(t, StatusNotQualified, out.Status)
	assert.Equal(t, "previous close 2.50 below 3.00", out.Reason)
	_, ok = b.Observation("8:37")
	assert.False(t, ok, "no observation columns filled for ZZZQ")
}

func TestEncode_PhaseColumnsGrowMonotonically(t *testing.T) {
	d := sampleDataset()

	data, err := Encode(d)
	require.NoError(t, err)
	header := strings.Split(strings.SplitN(string(data), "\n", 2)[0], ",")

	before := len(header)
	assert.Contains(t, header, "price@8:37")
	assert.Contains(t, header, "status@prefilter")

	d.AddPhase("8:40")
	d.AddPhase("8:37") // re-registering must not duplicate columns

	data, err = Encode(d)
	require.NoError(t, err)
	header = strings.Split(strings.SplitN(string(data), "\n", 2)[0], ",")

	assert.Equal(t, before+4, len(header), "one new phase adds exactly four columns")
	assert.Equal(t, "price@8:40", header[len(header)-4])
	assert.Equal(t, "reason@8:40", header[len(header)-1])
}

func TestDecode_MissingRequiredColumn(t *testing.T) {
	_, err := Decode("20260828", []byte("company_name,previous_close\nApple,10.0\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol")
}

func TestDecode_Empty(t *testing.T) {
	_, err := Decode("20260828", nil)
	assert.Error(t, err)
}
