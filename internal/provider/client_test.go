package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/logger"
)

type fakeCounter struct {
	calls   atomic.Int64
	retries atomic.Int64
}

func (f *fakeCounter) IncCalls()   { f.calls.Add(1) }
func (f *fakeCounter) IncRetries() { f.retries.Add(1) }

func testClient(t *testing.T, handler http.Handler) (*Client, *fakeCounter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		Provider: config.ProviderConfig{
			APIKey:            "test-key",
			BaseURL:           srv.URL,
			RequestTimeout:    2 * time.Second,
			MaxRetries:        3,
			RetryDelay:        time.Millisecond,
			RequestsPerSecond: 1000,
		},
	}

	counter := &fakeCounter{}
	c := New(cfg, logger.New(cfg)).WithCounters(counter)
	c.sleep = func(time.Duration) {}
	return c, counter
}

func TestGetReference_OK(t *testing.T) {
	c, counter := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/v2/aggs/ticker/AAPL/prev", r.URL.Path)
		fmt.Fprint(w, `{"status":"OK","results":[{"o":10.1,"h":11.0,"l":9.9,"c":10.5,"v":2000000}]}`)
	}))

	bar, err := c.GetReference(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.5, bar.Close)
	assert.Equal(t, 2_000_000.0, bar.Volume)
	assert.Equal(t, int64(1), counter.calls.Load())
	assert.Equal(t, int64(0), counter.retries.Load())
}

func TestGetReference_CleanNoData(t *testing.T) {
	c, counter := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"NOT_FOUND","results":null}`)
	}))

	_, err := c.GetReference(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, int64(1), counter.calls.Load(), "a clean empty answer is not retried")
}

func TestGetReference_ClientErrorNotRetried(t *testing.T) {
	c, counter := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetReference(context.Background(), "MISSING")
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, int64(1), counter.calls.Load())
	assert.Equal(t, int64(0), counter.retries.Load())
}

func TestGetReference_RetryBound(t *testing.T) {
	var hits atomic.Int64
	c, counter := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.GetReference(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNoData)
	// MaxRetries 3 means at most four attempts total.
	assert.Equal(t, int64(4), hits.Load())
	assert.Equal(t, int64(4), counter.calls.Load())
	assert.Equal(t, int64(3), counter.retries.Load())
}

func TestGetReference_ServerErrorThenSuccess(t *testing.T) {
	var hits atomic.Int64
	c, counter := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"status":"OK","results":[{"o":10.1,"h":11.0,"l":9.9,"c":10.5,"v":2000000}]}`)
	}))

	bar, err := c.GetReference(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.5, bar.Close)
	assert.Equal(t, int64(1), counter.retries.Load())
}

func TestGetLastTrade(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/last/trade/AAPL", r.URL.Path)
		fmt.Fprint(w, `{"status":"OK","results":{"p":10.55}}`)
	}))

	trade, err := c.GetLastTrade(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.55, trade.Price)
}

func TestGetCompany(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"OK","results":{"name":"Apple Inc.","market_cap":420000000,"share_class_shares_outstanding":40000000}}`)
	}))

	info, err := c.GetCompany(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", info.Name)
	assert.Equal(t, 40_000_000.0, info.SharesOutstanding)
}

func TestGetCompany_SharesFallback(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"OK","results":{"name":"Apple Inc.","weighted_shares_outstanding":41000000}}`)
	}))

	info, err := c.GetCompany(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 41_000_000.0, info.SharesOutstanding)
}

func TestGetReference_EmptySymbol(t *testing.T) {
	c, counter := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	_, err := c.GetReference(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, int64(0), counter.calls.Load())
}

func TestPing(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/marketstatus/now", r.URL.Path)
			fmt.Fprint(w, `{"market":"open"}`)
		}))
		assert.NoError(t, c.Ping(context.Background()))
	})

	t.Run("server error", func(t *testing.T) {
		c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		assert.Error(t, c.Ping(context.Background()))
	})
}
