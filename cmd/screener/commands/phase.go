package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var phaseDate string

// phaseCmd groups manual phase operations.
var phaseCmd = &cobra.Command{
	Use:   "phase",
	Short: "Inspect and run individual phases",
}

// phaseListCmd prints the configured schedule.
var phaseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured phase schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		fmt.Printf("%-12s %-10s %-10s %-9s %s\n", "ID", "KIND", "CHECKPOINT", "CRITICAL", "NOTES")
		for _, p := range a.phases.Phases {
			notes := ""
			if p.Prior != "" {
				notes = "prior=" + p.Prior
			}
			if p.Final {
				if notes != "" {
					notes += " "
				}
				notes += "final"
			}
			fmt.Printf("%-12s %-10s %-10s %-9t %s\n", p.ID, p.Kind, p.Checkpoint, p.Critical, notes)
		}
		return nil
	},
}

// phaseRunCmd executes a single phase out of band. Useful for reruns after a
// fixed upstream problem; the dataset is reloaded from the store, so earlier
// phase results survive.
var phaseRunCmd = &cobra.Command{
	Use:   "run <phase-id>",
	Short: "Run one phase for a trading date",
	Long: `Run one phase for a trading date.

Defaults to today in the trading timezone. Already recorded observations
and outcomes for the phase are kept; reruns only fill gaps.

Examples:
  screener phase run prefilter
  screener phase run 8:40 --date 20260828`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		date := phaseDate
		if date == "" {
			date = time.Now().In(a.loc).Format("20060102")
		}
		if _, err := time.ParseInLocation("20060102", date, a.loc); err != nil {
			return fmt.Errorf("invalid --date %q, want YYYYMMDD", date)
		}

		return a.engine.RunPhase(ctx, args[0], date)
	},
}

func init() {
	rootCmd.AddCommand(phaseCmd)
	phaseCmd.AddCommand(phaseListCmd)
	phaseCmd.AddCommand(phaseRunCmd)
	phaseRunCmd.Flags().StringVar(&phaseDate, "date", "", "trading date (YYYYMMDD), default today")
}
