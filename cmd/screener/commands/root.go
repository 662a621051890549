package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/screener/internal/notify"
	"github.com/quantfold/screener/internal/phaseconfig"
	"github.com/quantfold/screener/internal/provider"
	"github.com/quantfold/screener/internal/store"
	"github.com/quantfold/screener/internal/workflow"
	"github.com/quantfold/screener/pkg/config"
	"github.com/quantfold/screener/pkg/logger"
	"github.com/quantfold/screener/pkg/redis"
)

var verbose bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "screener",
	Short: "Premarket gap screener",
	Long: `Premarket gap screener

A clock-driven pipeline that pulls reference data for a symbol universe,
pre-filters it, qualifies premarket gappers and narrows them through
momentum checks into a final buy list.

Examples:
  screener run
  screener phase list
  screener phase run prefilter --date 20260828
  screener buylist --date 20260828`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// app bundles everything a command needs after bootstrap.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	phases   *phaseconfig.Config
	loc      *time.Location
	store    store.Store
	notifier notify.Notifier
	provider *provider.Client
	engine   *workflow.Engine
	redis    *redis.Client
}

// bootstrap loads config and wires the shared components. Any missing
// required configuration fails here, before anything runs.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	phases, err := phaseconfig.LoadOrDefault(cfg.Workflow.PhaseConfig)
	if err != nil {
		return nil, fmt.Errorf("load phase config: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Workflow.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	st, err := store.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notifier, err := notify.New(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build notifier: %w", err)
	}

	client := provider.New(cfg, log)

	rdb, err := redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if rdb.Enabled() {
		client.WithSharedLimiter(redis.NewRateLimiter(rdb, "screener"), redis.RateLimitConfig{
			Key:    "polygon",
			Limit:  cfg.Provider.RequestsPerSecond,
			Window: time.Second,
		})
	}

	engine := workflow.NewEngine(cfg, phases, client, st, notifier, log, loc)

	return &app{
		cfg:      cfg,
		log:      log,
		phases:   phases,
		loc:      loc,
		store:    st,
		notifier: notifier,
		provider: client,
		engine:   engine,
		redis:    rdb,
	}, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
