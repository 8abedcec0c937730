package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Days int
}

// History prints recent per-day publish counts.
func (a *App) History(ctx context.Context, opts HistoryOptions) error {
	days := opts.Days
	if days <= 0 {
		days = a.Config.Retention.Days
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)

	activity, err := store.ListDailyActivity(ctx, from, to)
	if err != nil {
		return err
	}
	if len(activity) == 0 {
		fmt.Fprintln(os.Stdout, "no publish activity found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Day\tPlatform\tPosts")

	var total int64
	for _, row := range activity {
		total += row.Count
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\n",
			row.Day.UTC().Format("2006-01-02"),
			row.Platform,
			row.Count,
		)
	}

	writer.Flush()
	fmt.Fprintf(os.Stdout, "\n%d posts over the last %d days\n", total, days)
	return nil
}
