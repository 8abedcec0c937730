package cli

import (
	"github.com/spf13/cobra"

	"market-pulse-bot/internal/app"
)

var (
	historyDays int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display recent publish activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.HistoryOptions{
			Days: historyDays,
		}

		return getApp().History(cmd.Context(), opts)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyDays, "days", 0, "Days of history to display (defaults to retention window)")
}
