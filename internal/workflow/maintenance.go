package workflow

import (
	"context"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quantfold/screener/internal/store"
	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/logger"
)

// Dated snapshot keys look like <prefix>/20260828/dataset_20260828.csv; the
// second path segment is the trading date.
var datedKeyPattern = regexp.MustCompile(`(?:^|/)(\d{8})/`)

// Maintenance runs housekeeping jobs inside the daemon on a cron schedule:
// a daily retention prune of old dated snapshots and an hourly heartbeat.
type Maintenance struct {
	store         store.Store
	prefix        string
	retentionDays int
	logger        *logger.Logger
	loc           *time.Location
	cron          *cron.Cron
}

// NewMaintenance wires the housekeeping jobs.
func NewMaintenance(cfg *config.Config, st store.Store, log *logger.Logger, loc *time.Location) *Maintenance {
	return &Maintenance{
		store:         st,
		prefix:        cfg.Store.Prefix,
		retentionDays: cfg.Workflow.RetentionDays,
		logger:        log.WithField("module", "maintenance"),
		loc:           loc,
	}
}

// Start registers and starts the cron jobs. Call Stop on shutdown.
func (m *Maintenance) Start(ctx context.Context) error {
	m.cron = cron.New(cron.WithLocation(m.loc))

	// Prune well outside trading hours.
	if _, err := m.cron.AddFunc("0 3 * * *", func() {
		if err := m.Prune(ctx); err != nil {
			m.logger.WithError(err).Error("Retention prune failed")
		}
	}); err != nil {
		return err
	}

	if _, err := m.cron.AddFunc("0 * * * *", func() {
		m.logger.Debug("Heartbeat")
	}); err != nil {
		return err
	}

	m.cron.Start()
	m.logger.Infof("Maintenance jobs scheduled, retention %d days", m.retentionDays)
	return nil
}

// Stop halts the cron scheduler and waits for running jobs.
func (m *Maintenance) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// Prune deletes dated snapshots older than the retention window.
func (m *Maintenance) Prune(ctx context.Context) error {
	if m.retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().In(m.loc).AddDate(0, 0, -m.retentionDays).Format("20060102")

	keys, err := m.store.List(ctx, m.prefix)
	if err != nil {
		return err
	}

	deleted := 0
	for _, key := range keys {
		match := datedKeyPattern.FindStringSubmatch(key)
		if match == nil || match[1] >= cutoff {
			continue
		}
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.WithError(err).Warnf("Failed to delete %s", key)
			continue
		}
		deleted++
	}

	if deleted > 0 {
		m.logger.Infof("Pruned %d snapshot files older than %s", deleted, cutoff)
	}
	return nil
}
