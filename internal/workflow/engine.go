package workflow

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/quantfold/screener/internal/collect"
	"github.com/quantfold/screener/internal/dataset"
	"github.com/quantfold/screener/internal/notify"
	"github.com/quantfold/screener/internal/phaseconfig"
	"github.com/quantfold/screener/internal/provider"
	"github.com/quantfold/screener/internal/qualify"
	"github.com/quantfold/screener/internal/store"
	"github.com/quantfold/screener/internal/universe"
	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/logger"
)

// universePrefix is where dated symbols-universe files live in the store.
const universePrefix = "symbols/"

// sampleSize caps how many symbols a notification lists before truncating.
const sampleSize = 10

// Engine executes individual phases against the per-day dataset. Phases run
// strictly sequentially; concurrency exists only inside a phase's fetch
// fan-out, so the dataset is read-modify-written once per phase.
type Engine struct {
	cfg      *config.Config
	phases   *phaseconfig.Config
	provider *provider.Client
	store    store.Store
	notifier notify.Notifier
	qual     *qualify.Qualifier
	logger   *logger.Logger
	loc      *time.Location

	collectCfg collect.Config

	// Injectable for tests; defaults to time.Now.
	now func() time.Time

	mu             sync.RWMutex
	date           string
	universe       []string
	gainers        map[string]struct{}
	data           *dataset.Dataset
	phaseStats     map[string]collect.Snapshot
	phaseQualified map[string]int
	buyList        []string
}

// NewEngine wires the phase executor.
func NewEngine(cfg *config.Config, phases *phaseconfig.Config, client *provider.Client, st store.Store, notifier notify.Notifier, log *logger.Logger, loc *time.Location) *Engine {
	return &Engine{
		cfg:        cfg,
		phases:     phases,
		provider:   client,
		store:      st,
		notifier:   notifier,
		qual:       qualify.New(phases.Thresholds),
		logger:     log.WithField("module", "workflow"),
		loc:        loc,
		collectCfg:     collect.DefaultConfig(),
		now:            time.Now,
		phaseStats:     make(map[string]collect.Snapshot),
		phaseQualified: make(map[string]int),
	}
}

// Reset clears all in-memory day state for a new trading date.
func (e *Engine) Reset(date string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.date = date
	e.universe = nil
	e.gainers = nil
	e.data = nil
	e.phaseStats = make(map[string]collect.Snapshot)
	e.phaseQualified = make(map[string]int)
	e.buyList = nil
}

// ExecutePhase runs one phase for the given trading date.
func (e *Engine) ExecutePhase(ctx context.Context, phase phaseconfig.Phase, date string) error {
	log := e.logger.WithFields(map[string]interface{}{"phase": phase.ID, "date": date})
	log.Infof("Executing phase %s", phase)

	var err error
	switch phase.Kind {
	case phaseconfig.KindGainers:
		err = e.runGainers(ctx, date)
	case phaseconfig.KindUniverse:
		err = e.runUniverse(ctx)
	case phaseconfig.KindPrefilter:
		err = e.runPrefilter(ctx, phase, date)
	case phaseconfig.KindPrimary:
		err = e.runPrimary(ctx, phase, date)
	case phaseconfig.KindMomentum:
		err = e.runMomentum(ctx, phase, date)
	default:
		err = fmt.Errorf("unknown phase kind %q", phase.Kind)
	}

	if err != nil {
		log.WithError(err).Error("Phase failed")
		return fmt.Errorf("phase %s: %w", phase.ID, err)
	}
	log.Info("Phase completed")
	return nil
}

// RunPhase executes a phase by id, for manual invocation from the CLI.
func (e *Engine) RunPhase(ctx context.Context, phaseID, date string) error {
	phase, ok := e.phases.PhaseByID(phaseID)
	if !ok {
		return fmt.Errorf("unknown phase %q", phaseID)
	}
	e.mu.RLock()
	current := e.date
	e.mu.RUnlock()
	if current != date {
		e.Reset(date)
	}
	return e.ExecutePhase(ctx, phase, date)
}

// BuyList returns the final qualified symbols, once the final phase has run.
func (e *Engine) BuyList() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.buyList))
	copy(out, e.buyList)
	return out
}

// PhaseStats returns the collector snapshot recorded for a phase, if any.
func (e *Engine) PhaseStats(phaseID string) (collect.Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	snap, ok := e.phaseStats[phaseID]
	return snap, ok
}

// PhaseQualified returns how many symbols qualified at a phase, if it ran.
func (e *Engine) PhaseQualified(phaseID string) (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n, ok := e.phaseQualified[phaseID]
	return n, ok
}

// --- phase implementations ---

func (e *Engine) runGainers(ctx context.Context, date string) error {
	data, err := e.store.Get(ctx, e.gainersKey(date))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no gainers file for %s", date)
		}
		return fmt.Errorf("load gainers: %w", err)
	}

	set, err := universe.ParseGainersCSV(data)
	if err != nil {
		return fmt.Errorf("parse gainers: %w", err)
	}

	e.mu.Lock()
	e.gainers = set
	e.mu.Unlock()

	e.logger.Infof("Loaded %d premarket top gainers", len(set))
	return nil
}

func (e *Engine) runUniverse(ctx context.Context) error {
	key, err := universe.LatestKey(ctx, e.store, universePrefix)
	if err != nil {
		return fmt.Errorf("resolve universe: %w", err)
	}
	symbols, err := universe.Load(ctx, e.store, key)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("universe file %s contains no symbols", key)
	}

	e.mu.Lock()
	e.universe = symbols
	e.mu.Unlock()

	e.logger.WithFields(map[string]interface{}{"key": key, "symbols": len(symbols)}).Info("Universe resolved")
	return nil
}

func (e *Engine) runPrefilter(ctx context.Context, phase phaseconfig.Phase, date string) error {
	symbols, err := e.ensureUniverse(ctx)
	if err != nil {
		return err
	}
	gainers := e.ensureGainers(ctx, date)

	d, err := e.loadDataset(ctx, date)
	if err != nil {
		return err
	}

	stats := &collect.Stats{}
	e.provider.WithCounters(stats)
	collector := collect.New(e.collectCfg, stats, e.logger).WithPreflight(e.provider.Ping)

	var mu sync.Mutex
	task := func(ctx context.Context, symbol string) {
		bar, err := e.provider.GetReference(ctx, symbol)
		if err != nil {
			stats.Incomplete.Add(1)
			return
		}
		// Company data is best-effort; the merge degrades gracefully.
		company, _ := e.provider.GetCompany(ctx, symbol)

		mu.Lock()
		defer mu.Unlock()
		existing, _ := d.Get(symbol)
		rec, err := dataset.MergeReference(symbol, bar, company, existing)
		if err != nil {
			stats.Rejected.Add(1)
			return
		}
		_, rec.TopGainer = gainers[rec.Symbol]
		d.Put(rec)
		stats.Complete.Add(1)
	}

	if err := collector.Run(ctx, symbols, task); err != nil {
		return err
	}

	snap := stats.Snapshot()
	e.recordStats(phase.ID, snap)
	if rate := snap.CompleteRate(); rate < e.phases.Thresholds.MinCompleteRate {
		return fmt.Errorf("complete rate %.2f below minimum %.2f", rate, e.phases.Thresholds.MinCompleteRate)
	}

	d.AddPhase(phase.ID)
	for _, rec := range d.Records() {
		rec.SetOutcome(phase.ID, e.qual.Prefilter(rec))
	}

	if err := e.persistDataset(ctx, d); err != nil {
		return err
	}

	qualified := d.QualifiedSymbols(phase.ID)
	e.recordQualified(phase.ID, len(qualified))
	e.notify(ctx, fmt.Sprintf("prefilter complete (%s)", date),
		fmt.Sprintf("universe: %d\ncomplete: %d (%.1f%%)\nincomplete: %d\nrejected: %d\napi calls: %d (retries %d)\nqualified: %d\nsample: %s",
			len(symbols), snap.Complete, snap.CompleteRate()*100, snap.Incomplete, snap.Rejected,
			snap.APICalls, snap.Retries, len(qualified), sample(qualified)))
	return nil
}

func (e *Engine) runPrimary(ctx context.Context, phase phaseconfig.Phase, date string) error {
	d, err := e.loadDataset(ctx, date)
	if err != nil {
		return err
	}

	prefilter, ok := e.phaseOfKind(phaseconfig.KindPrefilter)
	if !ok {
		return fmt.Errorf("no prefilter phase configured")
	}
	survivors := d.QualifiedSymbols(prefilter.ID)
	if len(survivors) == 0 {
		return fmt.Errorf("no symbols survived the pre-filter")
	}

	if err := e.observePrices(ctx, phase.ID, d, survivors); err != nil {
		return err
	}

	windowStart, now := e.phaseWindow(phase, date)
	d.AddPhase(phase.ID)
	for _, sym := range survivors {
		rec, ok := d.Get(sym)
		if !ok {
			continue
		}
		rec.SetOutcome(phase.ID, e.qual.Primary(rec, phase.ID, windowStart, now))
	}

	if err := e.persistDataset(ctx, d); err != nil {
		return err
	}

	qualified := d.QualifiedSymbols(phase.ID)
	e.recordQualified(phase.ID, len(qualified))
	e.notify(ctx, fmt.Sprintf("primary qualification complete (%s)", date),
		fmt.Sprintf("evaluated: %d\nqualified: %d\nsample: %s", len(survivors), len(qualified), sample(qualified)))
	return nil
}

func (e *Engine) runMomentum(ctx context.Context, phase phaseconfig.Phase, date string) error {
	d, err := e.loadDataset(ctx, date)
	if err != nil {
		return err
	}

	survivors := d.QualifiedSymbols(phase.Prior)
	if len(survivors) == 0 {
		e.logger.Warnf("No symbols qualified at %s, momentum phase %s has nothing to check", phase.Prior, phase.ID)
	}

	if len(survivors) > 0 {
		if err := e.observePrices(ctx, phase.ID, d, survivors); err != nil {
			return err
		}
	}

	windowStart, now := e.phaseWindow(phase, date)
	d.AddPhase(phase.ID)
	for _, sym := range survivors {
		rec, ok := d.Get(sym)
		if !ok {
			continue
		}
		rec.SetOutcome(phase.ID, e.qual.Momentum(rec, phase.ID, phase.Prior, windowStart, now))
	}

	if err := e.persistDataset(ctx, d); err != nil {
		return err
	}

	qualified := d.QualifiedSymbols(phase.ID)
	e.recordQualified(phase.ID, len(qualified))
	if phase.Final {
		e.mu.Lock()
		e.buyList = qualified
		e.mu.Unlock()
		e.notify(ctx, fmt.Sprintf("final buy list (%s)", date), buyListBody(qualified))
	} else {
		e.notify(ctx, fmt.Sprintf("momentum %s complete (%s)", phase.ID, date),
			fmt.Sprintf("evaluated: %d\nqualified: %d\nsample: %s", len(survivors), len(qualified), sample(qualified)))
	}
	return nil
}

// observePrices pulls a last trade for each symbol and records it as the
// phase observation. Volume carries the previous-session volume, the only
// volume figure available premarket.
func (e *Engine) observePrices(ctx context.Context, phaseID string, d *dataset.Dataset, symbols []string) error {
	stats := &collect.Stats{}
	e.provider.WithCounters(stats)
	collector := collect.New(e.collectCfg, stats, e.logger).WithPreflight(e.provider.Ping)

	var mu sync.Mutex
	task := func(ctx context.Context, symbol string) {
		trade, err := e.provider.GetLastTrade(ctx, symbol)
		if err != nil {
			stats.Incomplete.Add(1)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if rec, ok := d.Get(symbol); ok {
			rec.Observe(phaseID, dataset.Observation{Price: trade.Price, Volume: rec.PreviousVolume})
			stats.Complete.Add(1)
		}
	}

	if err := collector.Run(ctx, symbols, task); err != nil {
		return err
	}
	e.recordStats(phaseID, stats.Snapshot())
	return nil
}

// --- state helpers ---

func (e *Engine) ensureUniverse(ctx context.Context) ([]string, error) {
	e.mu.RLock()
	symbols := e.universe
	e.mu.RUnlock()
	if len(symbols) > 0 {
		return symbols, nil
	}
	if err := e.runUniverse(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.universe, nil
}

// ensureGainers returns the top-gainer set, loading it on demand. Absence is
// not an error here: the tag is informational.
func (e *Engine) ensureGainers(ctx context.Context, date string) map[string]struct{} {
	e.mu.RLock()
	set := e.gainers
	e.mu.RUnlock()
	if set != nil {
		return set
	}
	if err := e.runGainers(ctx, date); err != nil {
		e.logger.WithError(err).Warn("Top-gainer tagging unavailable")
		set = make(map[string]struct{})
		e.mu.Lock()
		e.gainers = set
		e.mu.Unlock()
		return set
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gainers
}

func (e *Engine) loadDataset(ctx context.Context, date string) (*dataset.Dataset, error) {
	e.mu.RLock()
	d, current := e.data, e.date
	e.mu.RUnlock()
	if d != nil && current == date {
		return d, nil
	}

	data, err := e.store.Get(ctx, e.datasetKey(date))
	switch {
	case err == nil:
		d, err = dataset.Decode(date, data)
		if err != nil {
			return nil, fmt.Errorf("decode dataset: %w", err)
		}
	case errors.Is(err, store.ErrNotFound):
		d = dataset.New(date)
	default:
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	e.mu.Lock()
	e.data = d
	e.date = date
	e.mu.Unlock()
	return d, nil
}

func (e *Engine) persistDataset(ctx context.Context, d *dataset.Dataset) error {
	data, err := dataset.Encode(d)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := e.store.Put(ctx, e.datasetKey(d.Date), data); err != nil {
		return fmt.Errorf("persist dataset: %w", err)
	}
	return nil
}

func (e *Engine) recordStats(phaseID string, snap collect.Snapshot) {
	e.mu.Lock()
	e.phaseStats[phaseID] = snap
	e.mu.Unlock()
}

func (e *Engine) recordQualified(phaseID string, n int) {
	e.mu.Lock()
	e.phaseQualified[phaseID] = n
	e.mu.Unlock()
}

func (e *Engine) phaseWindow(phase phaseconfig.Phase, date string) (windowStart, now time.Time) {
	day, err := time.ParseInLocation("20060102", date, e.loc)
	if err != nil {
		day = e.now().In(e.loc)
	}
	return phase.CheckpointAt(day, e.loc), e.now().In(e.loc)
}

func (e *Engine) phaseOfKind(kind phaseconfig.Kind) (phaseconfig.Phase, bool) {
	for _, p := range e.phases.Phases {
		if p.Kind == kind {
			return p, true
		}
	}
	return phaseconfig.Phase{}, false
}

func (e *Engine) notify(ctx context.Context, subject, body string) {
	if err := e.notifier.Publish(ctx, "[screener] "+subject, body); err != nil {
		e.logger.WithError(err).Warn("Notification failed")
	}
}

func (e *Engine) datasetKey(date string) string {
	return DatasetKey(e.cfg.Store.Prefix, date)
}

func (e *Engine) gainersKey(date string) string {
	return GainersKey(e.cfg.Store.Prefix, date)
}

// DatasetKey is the store key of the per-day dataset snapshot.
func DatasetKey(prefix, date string) string {
	return path.Join(prefix, date, "dataset_"+date+".csv")
}

// GainersKey is the store key of the per-day premarket top-gainers list.
func GainersKey(prefix, date string) string {
	return path.Join(prefix, date, "premarket_top_gainers_"+date+".csv")
}

func sample(symbols []string) string {
	if len(symbols) == 0 {
		return "none"
	}
	if len(symbols) > sampleSize {
		return strings.Join(symbols[:sampleSize], ", ") + fmt.Sprintf(" (+%d more)", len(symbols)-sampleSize)
	}
	return strings.Join(symbols, ", ")
}

func buyListBody(symbols []string) string {
	if len(symbols) == 0 {
		return "no symbols qualified today"
	}
	return fmt.Sprintf("%d symbols:\n%s", len(symbols), strings.Join(symbols, "\n"))
}
