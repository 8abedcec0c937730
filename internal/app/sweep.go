package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"market-pulse-bot/internal/dedupe"
	"market-pulse-bot/internal/platform"
	"market-pulse-bot/internal/ratelimit"
)

// Sweep runs one retention pass over the dedup journal, the posting
// ledger, and the chart cache, then exits.
func (a *App) Sweep(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	cutoff := time.Now().Add(-time.Duration(a.Config.Retention.Days) * 24 * time.Hour)

	deduper := dedupe.New(store, a.Logger)
	records, err := deduper.Sweep(ctx, cutoff)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(store, ratelimit.Options{
		Platform:  platform.NameTwitter,
		PerMinute: a.Config.Twitter.MaxPostsPerMinute,
		PerDay:    a.Config.Twitter.MaxPostsPerDay,
	}, a.Logger)
	entries, err := limiter.Prune(ctx, cutoff)
	if err != nil {
		return err
	}

	charts, err := platform.NewChartCache(a.Config.Charts, a.Logger).Evict()
	if err != nil {
		return err
	}

	fmt.Fprintf(
		os.Stdout,
		"removed %d publish records, %d ledger entries, %d cached charts (cutoff %s)\n",
		records,
		entries,
		charts,
		cutoff.UTC().Format(time.RFC3339),
	)
	return nil
}
