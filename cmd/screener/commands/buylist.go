package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfold/screener/internal/dataset"
	"github.com/quantfold/screener/internal/workflow"
)

var buylistDate string

// buylistCmd prints the final qualified symbols for a trading date, straight
// from the persisted dataset.
var buylistCmd = &cobra.Command{
	Use:   "buylist",
	Short: "Print the final buy list for a trading date",
	Long: `Print the final buy list for a trading date.

Reads the persisted dataset and lists the symbols qualified at the final
momentum phase.

Examples:
  screener buylist
  screener buylist --date 20260828`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		date := buylistDate
		if date == "" {
			date = time.Now().In(a.loc).Format("20060102")
		}

		final, ok := a.phases.FinalPhase()
		if !ok {
			return fmt.Errorf("no final phase configured")
		}

		data, err := a.store.Get(ctx, workflow.DatasetKey(a.cfg.Store.Prefix, date))
		if err != nil {
			return fmt.Errorf("no dataset for %s: %w", date, err)
		}
		d, err := dataset.Decode(date, data)
		if err != nil {
			return err
		}

		symbols := d.QualifiedSymbols(final.ID)
		if len(symbols) == 0 {
			fmt.Printf("No symbols qualified on %s\n", date)
			return nil
		}

		fmt.Printf("Buy list for %s (%d symbols):\n", date, len(symbols))
		for _, sym := range symbols {
			rec, _ := d.Get(sym)
			line := sym
			if rec != nil {
				if obs, ok := rec.Observation(final.ID); ok {
					line = fmt.Sprintf("%-8s %.2f (prev close %.2f)", sym, obs.Price, rec.PreviousClose)
				}
			}
			fmt.Println("  " + line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buylistCmd)
	buylistCmd.Flags().StringVar(&buylistDate, "date", "", "trading date (YYYYMMDD), default today")
}
