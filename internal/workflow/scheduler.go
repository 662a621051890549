package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/quantfold/screener/internal/collect"
	"github.com/quantfold/screener/internal/notify"
	"github.com/quantfold/screener/internal/phaseconfig"
	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/logger"
)

// Scheduler drives the daily pipeline: a poll loop in the trading timezone
// that fires each phase once per date when its checkpoint has passed. A
// critical failure halts the remainder of the day; the loop keeps running and
// recovers at the next rollover.
type Scheduler struct {
	engine   *Engine
	phases   *phaseconfig.Config
	notifier notify.Notifier
	logger   *logger.Logger
	loc      *time.Location
	interval time.Duration

	// Injectable for tests; defaults to time.Now.
	now func() time.Time

	mu  sync.Mutex
	run *Run
}

// NewScheduler wires the poll loop.
func NewScheduler(cfg *config.Config, phases *phaseconfig.Config, engine *Engine, notifier notify.Notifier, log *logger.Logger, loc *time.Location) *Scheduler {
	return &Scheduler{
		engine:   engine,
		phases:   phases,
		notifier: notifier,
		logger:   log.WithField("module", "scheduler"),
		loc:      loc,
		interval: cfg.Workflow.PollInterval,
		now:      time.Now,
	}
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.WithFields(map[string]interface{}{
		"timezone":      s.loc.String(),
		"poll_interval": s.interval.String(),
		"phases":        len(s.phases.Phases),
	}).Info("Scheduler started")
	s.publish(ctx, "daemon started", fmt.Sprintf("polling every %s in %s", s.interval, s.loc))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one scheduling pass: rollover check, then every due phase in
// schedule order. Exposed so tests can drive the loop with a fake clock.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().In(s.loc)
	date := now.Format("20060102")

	run := s.currentRun(ctx, date)
	if run.Halted() {
		return
	}

	for _, phase := range s.phases.Phases {
		if run.Executed(phase.ID) {
			continue
		}
		if now.Before(phase.CheckpointAt(now, s.loc)) {
			continue
		}

		run.MarkExecuted(phase.ID)
		if err := s.engine.ExecutePhase(ctx, phase, date); err != nil {
			if phase.Critical {
				run.Halt()
				s.logger.WithError(err).Errorf("Critical phase %s failed, halting day %s", phase.ID, date)
				s.publish(ctx, fmt.Sprintf("CRITICAL: phase %s failed (%s)", phase.ID, date),
					fmt.Sprintf("%v\n\nremaining phases skipped until the next trading day", err))
				return
			}
			s.publish(ctx, fmt.Sprintf("phase %s failed (%s)", phase.ID, date), err.Error())
		}
	}
}

// currentRun returns the run for date, rolling over when the day changed.
func (s *Scheduler) currentRun(ctx context.Context, date string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil && s.run.Date == date {
		return s.run
	}

	previous := ""
	if s.run != nil {
		previous = s.run.Date
	}
	s.run = NewRun(date)
	s.engine.Reset(date)

	if previous != "" {
		s.logger.Infof("Trading day rolled over from %s to %s", previous, date)
		s.publish(ctx, fmt.Sprintf("new trading day %s", date), "phase ledger reset")
	}
	return s.run
}

func (s *Scheduler) publish(ctx context.Context, subject, body string) {
	if err := s.notifier.Publish(ctx, "[screener] "+subject, body); err != nil {
		s.logger.WithError(err).Warn("Notification failed")
	}
}

// PhaseStatus is one row of the status report.
type PhaseStatus struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Checkpoint string            `json:"checkpoint"`
	Critical   bool              `json:"critical"`
	Executed   bool              `json:"executed"`
	Qualified  int               `json:"qualified"`
	Stats      *collect.Snapshot `json:"stats,omitempty"`
}

// Status is the daemon state served by the read-only API.
type Status struct {
	Date    string        `json:"date"`
	Halted  bool          `json:"halted"`
	Phases  []PhaseStatus `json:"phases"`
	BuyList []string      `json:"buy_list"`
}

// Status snapshots the current day's progress.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	run := s.run
	s.mu.Unlock()

	st := Status{BuyList: s.engine.BuyList()}
	var executed map[string]bool
	if run != nil {
		st.Date = run.Date
		st.Halted = run.Halted()
		executed = run.ExecutedPhases()
	}

	for _, phase := range s.phases.Phases {
		ps := PhaseStatus{
			ID:         phase.ID,
			Kind:       string(phase.Kind),
			Checkpoint: phase.Checkpoint,
			Critical:   phase.Critical,
			Executed:   executed[phase.ID],
		}
		if snap, ok := s.engine.PhaseStats(phase.ID); ok {
			ps.Stats = &snap
		}
		if n, ok := s.engine.PhaseQualified(phase.ID); ok {
			ps.Qualified = n
		}
		st.Phases = append(st.Phases, ps)
	}
	return st
}
