package schedule

import (
	"sort"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/feed"
)

// FallbackSlots is the cadence granted to flexible sources that receive
// zero slots from an oversubscribed cap. Fallback firings skip
// constrained platforms so they never consume the shared posting budget.
const FallbackSlots = 2

// Entry is one planned daily firing.
type Entry struct {
	Source          feed.Source
	Time            feed.ClockTime
	SkipConstrained bool
}

// Plan is the complete daily posting schedule for a source catalog.
type Plan struct {
	Entries     []Entry
	Allocation  map[feed.SourceName]int
	DailyCap    int
	FixedDemand int
}

// BuildPlan expands the slot allocation into concrete timed entries,
// sorted by time of day.
func BuildPlan(sources []feed.Source, dailyCap int, logger zerolog.Logger) Plan {
	alloc := Allocate(sources, dailyCap, logger)

	entries := make([]Entry, 0, dailyCap)
	for _, src := range sources {
		if src.Fixed() {
			for _, at := range src.FixedTimes {
				entries = append(entries, Entry{Source: src, Time: at})
			}
			continue
		}

		slots := alloc[src.Name]
		skip := false
		if slots == 0 {
			slots = FallbackSlots
			skip = true
			logger.Info().
				Str("source", string(src.Name)).
				Int("slots", slots).
				Msg("no capped slots available, using fallback cadence")
		}
		for _, at := range SlotTimes(slots, src.Window) {
			entries = append(entries, Entry{Source: src, Time: at, SkipConstrained: skip})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Time.Minutes() < entries[j].Time.Minutes()
	})

	return Plan{
		Entries:     entries,
		Allocation:  alloc,
		DailyCap:    dailyCap,
		FixedDemand: FixedDemand(sources),
	}
}

// CappedSlots counts entries allowed to consume constrained platform
// budget. Never exceeds the daily cap unless fixed demand already does.
func (p Plan) CappedSlots() int {
	count := 0
	for _, e := range p.Entries {
		if !e.SkipConstrained {
			count++
		}
	}
	return count
}
