package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/screener/internal/api"
	"github.com/quantfold/screener/internal/workflow"
)

// runCmd starts the daemon: poll-loop scheduler, maintenance jobs and the
// status API, until SIGINT/SIGTERM.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the screener daemon",
	Long: `Run the screener daemon.

Polls the clock in the trading timezone and fires each phase once per day
at its checkpoint. Critical phase failures halt the rest of the day; the
daemon recovers at the next rollover.

Example:
  screener run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		scheduler := workflow.NewScheduler(a.cfg, a.phases, a.engine, a.notifier, a.log, a.loc)

		maintenance := workflow.NewMaintenance(a.cfg, a.store, a.log, a.loc)
		if err := maintenance.Start(ctx); err != nil {
			return err
		}
		defer maintenance.Stop()

		if a.cfg.API.Enabled {
			srv := api.New(a.cfg, scheduler, a.log)
			go func() {
				if err := srv.Start(); err != nil {
					a.log.WithError(err).Error("Status API failed")
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
