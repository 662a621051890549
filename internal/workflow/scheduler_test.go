package workflow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/screener/internal/collect"
	"github.com/quantfold/screener/internal/dataset"
	"github.com/quantfold/screener/internal/phaseconfig"
	"github.com/quantfold/screener/internal/provider"
	"github.com/quantfold/screener/internal/store"
	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/logger"
)

type captureNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureNotifier) Publish(_ context.Context, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, subject+"\n"+body)
	return nil
}

func (c *captureNotifier) containing(substr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.msgs {
		if strings.Contains(m, substr) {
			n++
		}
	}
	return n
}

type refBar struct{ o, h, l, c, v float64 }

// fakeProvider serves the three provider endpoints for a fixed symbol set.
// Last-trade prices tick up a nickel on every call so successive phases see
// rising prices.
type fakeProvider struct {
	mu        sync.Mutex
	bars      map[string]refBar
	shares    map[string]float64
	trades    map[string]float64
	tradeHits map[string]int
	hits      atomic.Int64
}

func (f *fakeProvider) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		path := r.URL.Path
		switch {
		case path == "/v1/marketstatus/now":
			fmt.Fprint(w, `{"market":"open"}`)

		case strings.HasPrefix(path, "/v2/aggs/ticker/"):
			sym := strings.TrimSuffix(strings.TrimPrefix(path, "/v2/aggs/ticker/"), "/prev")
			f.mu.Lock()
			bar, ok := f.bars[sym]
			f.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, `{"status":"OK","results":[{"o":%g,"h":%g,"l":%g,"c":%g,"v":%g}]}`,
				bar.o, bar.h, bar.l, bar.c, bar.v)

		case strings.HasPrefix(path, "/v3/reference/tickers/"):
			sym := strings.TrimPrefix(path, "/v3/reference/tickers/")
			f.mu.Lock()
			shares, ok := f.shares[sym]
			f.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, `{"status":"OK","results":{"name":"%s Corp","share_class_shares_outstanding":%g}}`, sym, shares)

		case strings.HasPrefix(path, "/v2/last/trade/"):
			sym := strings.TrimPrefix(path, "/v2/last/trade/")
			f.mu.Lock()
			base, ok := f.trades[sym]
			n := f.tradeHits[sym]
			f.tradeHits[sym] = n + 1
			f.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, `{"status":"OK","results":{"p":%g}}`, base+0.05*float64(n))

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

type fixture struct {
	cfg       *config.Config
	store     store.Store
	notifier  *captureNotifier
	provider  *fakeProvider
	engine    *Engine
	scheduler *Scheduler
	loc       *time.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fp := &fakeProvider{
		bars: map[string]refBar{
			"AAPL": {o: 10.10, h: 11.00, l: 9.90, c: 10.00, v: 2_000_000},
			"MSFT": {o: 20.10, h: 21.00, l: 19.90, c: 20.00, v: 2_000_000},
			"PENY": {o: 2.40, h: 2.60, l: 2.30, c: 2.50, v: 5_000_000},
		},
		shares: map[string]float64{
			"AAPL": 40_000_000,
			"MSFT": 40_000_000,
			"PENY": 100_000_000,
		},
		trades: map[string]float64{
			"AAPL": 10.50, // 5 percent gap, rises through the day
			"MSFT": 20.20, // only 1 percent, fails primary
			"PENY": 2.70,
		},
		tradeHits: make(map[string]int),
	}
	srv := httptest.NewServer(fp.handler())
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		LogLevel:  "error",
		LogFormat: "json",
		Provider: config.ProviderConfig{
			APIKey:            "test-key",
			BaseURL:           srv.URL,
			RequestTimeout:    2 * time.Second,
			MaxRetries:        1,
			RetryDelay:        time.Millisecond,
			RequestsPerSecond: 1000,
		},
		Store: config.StoreConfig{Backend: "fs", Prefix: "stock_data"},
		Workflow: config.WorkflowConfig{
			Timezone:     "America/Chicago",
			PollInterval: 30 * time.Second,
		},
	}
	log := logger.New(cfg)

	st, err := store.NewFS(t.TempDir())
	require.NoError(t, err)

	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	notifier := &captureNotifier{}
	phases := phaseconfig.Default()
	client := provider.New(cfg, log)

	engine := NewEngine(cfg, phases, client, st, notifier, log, loc)
	engine.collectCfg = collect.Config{BatchSize: 75, MaxConcurrent: 35} // no inter-batch delay

	scheduler := NewScheduler(cfg, phases, engine, notifier, log, loc)

	return &fixture{
		cfg:       cfg,
		store:     st,
		notifier:  notifier,
		provider:  fp,
		engine:    engine,
		scheduler: scheduler,
		loc:       loc,
	}
}

func (f *fixture) setClock(tm time.Time) {
	f.engine.now = func() time.Time { return tm }
	f.scheduler.now = func() time.Time { return tm }
}

func (f *fixture) seedUniverse(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(),
		"symbols/nasdaq_symbols_20260827.csv", []byte("symbol\nAAPL\nMSFT\nPENY\n")))
}

func (f *fixture) seedGainers(t *testing.T, date string) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(),
		GainersKey(f.cfg.Store.Prefix, date), []byte("symbol\nAAPL\n")))
}

func chicago(t *testing.T, y int, mo time.Month, d, h, min int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return time.Date(y, mo, d, h, min, 0, 0, loc)
}

func TestScheduler_FullDay(t *testing.T) {
	f := newFixture(t)
	f.seedUniverse(t)
	f.seedGainers(t, "20260828")

	// Well past the last checkpoint: one tick catches up the whole schedule.
	f.setClock(chicago(t, 2026, 8, 28, 9, 0))
	f.scheduler.Tick(context.Background())

	st := f.scheduler.Status()
	assert.Equal(t, "20260828", st.Date)
	assert.False(t, st.Halted)
	for _, ps := range st.Phases {
		assert.True(t, ps.Executed, "phase %s executed", ps.ID)
	}
	assert.Equal(t, []string{"AAPL"}, st.BuyList)

	// Persisted dataset reflects the narrowing.
	data, err := f.store.Get(context.Background(), DatasetKey("stock_data", "20260828"))
	require.NoError(t, err)
	d, err := dataset.Decode("20260828", data)
	require.NoError(t, err)

	aapl, ok := d.Get("AAPL")
	require.True(t, ok)
	assert.True(t, aapl.TopGainer)
	assert.True(t, aapl.QualifiedAt("prefilter"))
	assert.True(t, aapl.QualifiedAt("8:37"))
	assert.True(t, aapl.QualifiedAt("8:50"))

	msft, ok := d.Get("MSFT")
	require.True(t, ok)
	assert.False(t, msft.TopGainer)
	assert.True(t, msft.QualifiedAt("prefilter"))
	out, ok := msft.Outcome("8:37")
	require.True(t, ok)
	assert.Equal(t, dataset.StatusNotQualified, out.Status)
	_, ok = msft.Outcome("8:40")
	assert.False(t, ok, "primary failures are never evaluated by momentum")

	peny, ok := d.Get("PENY")
	require.True(t, ok)
	out, ok = peny.Outcome("prefilter")
	require.True(t, ok)
	assert.Equal(t, dataset.StatusNotQualified, out.Status)

	assert.Equal(t, 1, f.notifier.containing("final buy list"))
	assert.Equal(t, 1, f.notifier.containing("prefilter complete"))
}

func TestScheduler_PhasesRunAtMostOncePerDay(t *testing.T) {
	f := newFixture(t)
	f.seedUniverse(t)
	f.seedGainers(t, "20260828")

	f.setClock(chicago(t, 2026, 8, 28, 9, 0))
	f.scheduler.Tick(context.Background())
	hits := f.provider.hits.Load()

	f.setClock(chicago(t, 2026, 8, 28, 9, 30))
	f.scheduler.Tick(context.Background())
	f.scheduler.Tick(context.Background())

	assert.Equal(t, hits, f.provider.hits.Load(), "no phase re-executes within one day")
	assert.Equal(t, 1, f.notifier.containing("final buy list"))
}

func TestScheduler_CheckpointsGateExecution(t *testing.T) {
	f := newFixture(t)
	f.seedUniverse(t)
	f.seedGainers(t, "20260828")

	// After prefilter's 08:35 but before primary's 08:37.
	f.setClock(chicago(t, 2026, 8, 28, 8, 36))
	f.scheduler.Tick(context.Background())

	st := f.scheduler.Status()
	executed := map[string]bool{}
	for _, ps := range st.Phases {
		executed[ps.ID] = ps.Executed
	}
	assert.True(t, executed["gainers"])
	assert.True(t, executed["universe"])
	assert.True(t, executed["prefilter"])
	assert.False(t, executed["8:37"])
	assert.False(t, executed["8:40"])

	// Two minutes later the primary fires.
	f.setClock(chicago(t, 2026, 8, 28, 8, 38))
	f.scheduler.Tick(context.Background())
	st = f.scheduler.Status()
	for _, ps := range st.Phases {
		if ps.ID == "8:37" {
			assert.True(t, ps.Executed)
		}
	}
}

func TestScheduler_CriticalFailureHaltsDay(t *testing.T) {
	f := newFixture(t)
	// No universe file: the universe phase fails softly, then the critical
	// prefilter cannot resolve a universe either and halts the day.
	f.seedGainers(t, "20260828")

	f.setClock(chicago(t, 2026, 8, 28, 9, 0))
	f.scheduler.Tick(context.Background())

	st := f.scheduler.Status()
	assert.True(t, st.Halted)
	assert.Equal(t, 1, f.notifier.containing("CRITICAL"))
	assert.Empty(t, st.BuyList)

	executed := map[string]bool{}
	for _, ps := range st.Phases {
		executed[ps.ID] = ps.Executed
	}
	assert.False(t, executed["8:37"], "phases after the halt never run")

	// Later ticks the same day stay halted.
	before := f.provider.hits.Load()
	f.setClock(chicago(t, 2026, 8, 28, 10, 0))
	f.scheduler.Tick(context.Background())
	assert.Equal(t, before, f.provider.hits.Load())
}

func TestScheduler_RolloverResetsState(t *testing.T) {
	f := newFixture(t)
	f.seedGainers(t, "20260828")

	f.setClock(chicago(t, 2026, 8, 28, 9, 0))
	f.scheduler.Tick(context.Background())
	require.True(t, f.scheduler.Status().Halted)

	// Next day, before any checkpoint: fresh ledger, nothing executed.
	f.setClock(chicago(t, 2026, 8, 29, 0, 5))
	f.scheduler.Tick(context.Background())

	st := f.scheduler.Status()
	assert.Equal(t, "20260829", st.Date)
	assert.False(t, st.Halted)
	for _, ps := range st.Phases {
		assert.False(t, ps.Executed)
	}
	assert.Equal(t, 1, f.notifier.containing("new trading day"))
}

func TestScheduler_NonCriticalFailureContinues(t *testing.T) {
	f := newFixture(t)
	f.seedUniverse(t)
	// No gainers file: the gainers phase fails, everything else proceeds.

	f.setClock(chicago(t, 2026, 8, 28, 9, 0))
	f.scheduler.Tick(context.Background())

	st := f.scheduler.Status()
	assert.False(t, st.Halted)
	assert.Equal(t, []string{"AAPL"}, st.BuyList)
	assert.Equal(t, 1, f.notifier.containing("phase gainers failed"))

	data, err := f.store.Get(context.Background(), DatasetKey("stock_data", "20260828"))
	require.NoError(t, err)
	d, err := dataset.Decode("20260828", data)
	require.NoError(t, err)
	aapl, _ := d.Get("AAPL")
	assert.False(t, aapl.TopGainer, "no gainers list means no tags")
}

func TestEngine_LowCompleteRateFailsPrefilter(t *testing.T) {
	f := newFixture(t)
	f.seedUniverse(t)
	f.seedGainers(t, "20260828")

	// Only AAPL resolves; two of three symbols come back empty.
	f.provider.mu.Lock()
	delete(f.provider.bars, "MSFT")
	delete(f.provider.bars, "PENY")
	f.provider.mu.Unlock()

	f.setClock(chicago(t, 2026, 8, 28, 9, 0))
	f.scheduler.Tick(context.Background())

	st := f.scheduler.Status()
	assert.True(t, st.Halted, "a degraded pull must not feed qualification")
	assert.Equal(t, 1, f.notifier.containing("complete rate"))
}

func TestEngine_RunPhaseManually(t *testing.T) {
	f := newFixture(t)
	f.seedUniverse(t)
	f.seedGainers(t, "20260828")
	f.setClock(chicago(t, 2026, 8, 28, 9, 0))

	ctx := context.Background()
	require.NoError(t, f.engine.RunPhase(ctx, "prefilter", "20260828"))
	require.NoError(t, f.engine.RunPhase(ctx, "8:37", "20260828"))

	data, err := f.store.Get(ctx, DatasetKey("stock_data", "20260828"))
	require.NoError(t, err)
	d, err := dataset.Decode("20260828", data)
	require.NoError(t, err)

	aapl, ok := d.Get("AAPL")
	require.True(t, ok)
	assert.True(t, aapl.QualifiedAt("8:37"))

	assert.Error(t, f.engine.RunPhase(ctx, "bogus", "20260828"))
}
