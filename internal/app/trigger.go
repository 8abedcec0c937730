package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"market-pulse-bot/internal/feed"
	"market-pulse-bot/internal/pipeline"
)

// Trigger runs the publish pipeline once for the named source, bypassing
// the market-hours gate.
func (a *App) Trigger(ctx context.Context, source string) error {
	rt, err := a.buildRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	src, ok := rt.catalog.Lookup(feed.SourceName(source))
	if !ok {
		return fmt.Errorf("unknown source %q (available: %s)", source, sourceList(rt.catalog.Names()))
	}

	a.Logger.Info().Str("source", source).Msg("manual trigger")
	if err := rt.runner.Run(ctx, src, pipeline.RunOptions{Manual: true}); err != nil {
		return err
	}

	stats := rt.runner.Stats()
	fmt.Fprintf(
		os.Stdout,
		"published=%d duplicates=%d rate_limited=%d failed=%d empty=%d\n",
		stats.SuccessfulPublishes,
		stats.SkippedDuplicates,
		stats.RateLimitBlocks,
		stats.FailedPublishes,
		stats.SkippedEmpty,
	)
	return nil
}

func sourceList(names []feed.SourceName) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
