package universe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/screener/internal/store"
)

func TestParseSymbolsCSV(t *testing.T) {
	data := []byte("symbol,name\naapl,Apple\nMSFT,Microsoft\nMSFT,Microsoft duplicate\nBRK.A,Berkshire\nTOOLONGG,Bad\n,Empty\n")

	symbols, err := ParseSymbolsCSV(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols, "lowercase normalized, dupes and invalid tickers dropped")
}

func TestParseSymbolsCSV_HeaderVariants(t *testing.T) {
	for _, header := range []string{"symbol", "Symbol", "ticker", "Ticker"} {
		t.Run(header, func(t *testing.T) {
			symbols, err := ParseSymbolsCSV([]byte(header + "\nAAPL\n"))
			require.NoError(t, err)
			assert.Equal(t, []string{"AAPL"}, symbols)
		})
	}
}

func TestParseSymbolsCSV_NoSymbolColumn(t *testing.T) {
	_, err := ParseSymbolsCSV([]byte("name,price\nApple,10\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no symbol column")
}

func TestValidSymbol(t *testing.T) {
	assert.True(t, ValidSymbol("A"))
	assert.True(t, ValidSymbol("GOOGL"))
	assert.False(t, ValidSymbol(""))
	assert.False(t, ValidSymbol("TOOLONGG"))
	assert.False(t, ValidSymbol("BRK.A"))
	assert.False(t, ValidSymbol("aapl"))
	assert.False(t, ValidSymbol("AB1"))
}

func TestLatestKey(t *testing.T) {
	s, err := store.NewFS(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "symbols/nasdaq_symbols_20260815.csv", []byte("symbol\nAAPL\n")))
	require.NoError(t, s.Put(ctx, "symbols/comprehensive_symbols_20260820.csv", []byte("symbol\nAAPL\n")))
	require.NoError(t, s.Put(ctx, "symbols/nasdaq_symbols_20260828.csv", []byte("symbol\nAAPL\nMSFT\n")))
	require.NoError(t, s.Put(ctx, "symbols/notes.txt", []byte("ignore me")))

	key, err := LatestKey(ctx, s, "symbols/")
	require.NoError(t, err)
	assert.Equal(t, "symbols/nasdaq_symbols_20260828.csv", key)

	symbols, err := Load(ctx, s, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestLatestKey_NoneFound(t *testing.T) {
	s, err := store.NewFS(t.TempDir())
	require.NoError(t, err)

	_, err = LatestKey(context.Background(), s, "symbols/")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestParseGainersCSV(t *testing.T) {
	set, err := ParseGainersCSV([]byte("ticker,change\nAAPL,12.5\nTSLA,8.1\n"))
	require.NoError(t, err)
	assert.Len(t, set, 2)
	_, ok := set["TSLA"]
	assert.True(t, ok)
}
