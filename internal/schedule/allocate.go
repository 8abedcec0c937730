// Package schedule plans daily posting slots under a global cap.
package schedule

import (
	"sort"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/feed"
)

// Allocate divides dailyCap posting slots among sources. Fixed sources
// reserve exactly their configured times. The remainder is split evenly
// across flexible sources; leftover slots go one each to sources by
// ascending priority value, catalog order breaking ties. Oversubscribed
// fixed demand is honoured as configured and only warned about.
func Allocate(sources []feed.Source, dailyCap int, logger zerolog.Logger) map[feed.SourceName]int {
	alloc := make(map[feed.SourceName]int, len(sources))

	fixedDemand := 0
	flexible := make([]feed.Source, 0, len(sources))
	for _, src := range sources {
		if src.Fixed() {
			alloc[src.Name] = len(src.FixedTimes)
			fixedDemand += len(src.FixedTimes)
		} else {
			alloc[src.Name] = 0
			flexible = append(flexible, src)
		}
	}

	if fixedDemand > dailyCap {
		logger.Warn().
			Int("fixed_demand", fixedDemand).
			Int("daily_cap", dailyCap).
			Msg("fixed slots alone exceed the daily cap")
	}

	remaining := dailyCap - fixedDemand
	if remaining <= 0 || len(flexible) == 0 {
		return alloc
	}

	// Stable sort: catalog position breaks ties within a priority tier.
	sort.SliceStable(flexible, func(i, j int) bool {
		return flexible[i].Priority < flexible[j].Priority
	})

	base := remaining / len(flexible)
	extra := remaining % len(flexible)
	for i, src := range flexible {
		slots := base
		if i < extra {
			slots++
		}
		alloc[src.Name] = slots
	}
	return alloc
}

// FixedDemand sums the slots reserved by fixed sources.
func FixedDemand(sources []feed.Source) int {
	total := 0
	for _, src := range sources {
		if src.Fixed() {
			total += len(src.FixedTimes)
		}
	}
	return total
}
