package app

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"market-pulse-bot/internal/schedule"
)

// Plan prints the daily posting schedule the scheduler would register.
func (a *App) Plan() error {
	catalog, err := a.buildCatalog()
	if err != nil {
		return err
	}

	plan := schedule.BuildPlan(catalog.Sources(), a.Config.Scheduler.DailyCap, a.Logger)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time\tSource\tPriority\tDays\tSlot")

	for _, entry := range plan.Entries {
		slot := "allocated"
		switch {
		case entry.Source.Fixed():
			slot = "fixed"
		case entry.SkipConstrained:
			slot = "fallback"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			entry.Time,
			entry.Source.Name,
			entry.Source.Priority,
			weekdayNames(entry.Source.Weekdays),
			slot,
		)
	}

	writer.Flush()

	fmt.Fprintf(
		os.Stdout,
		"\n%d entries, %d of %d capped slots used, fixed demand %d (timezone %s)\n",
		len(plan.Entries),
		plan.CappedSlots(),
		plan.DailyCap,
		plan.FixedDemand,
		a.Config.Scheduler.Timezone,
	)
	return nil
}

func weekdayNames(days []time.Weekday) string {
	if len(days) == 0 {
		return "daily"
	}
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()[:3]
	}
	return strings.Join(names, ",")
}
