package feed

import (
	"fmt"
	"time"
)

// SourceName identifies one upstream data feed.
type SourceName string

// Known feed names served by the data hub.
const (
	BenzingaNews      SourceName = "benzinga_news"
	BenzingaRatings   SourceName = "benzinga_ratings"
	BenzingaEarnings  SourceName = "benzinga_earnings"
	YahooQuote        SourceName = "yahoo_quote"
	TopGainers        SourceName = "top_gainers"
	RedditTrending    SourceName = "reddit_trending"
	CNNFearGreed      SourceName = "cnn_fear_greed"
	SectorPerformance SourceName = "sector_performance"
	EconomicCalendar  SourceName = "economic_calendar"
	VIX               SourceName = "vix"
	SECInsider        SourceName = "sec_insider"
)

// Priority ranks a source when daily posting slots are divided.
// Lower values win ties first.
type Priority int

const (
	PriorityPremium  Priority = 1
	PriorityMarket   Priority = 2
	PriorityAnalysis Priority = 3
	PriorityRecap    Priority = 4
)

func (p Priority) String() string {
	switch p {
	case PriorityPremium:
		return "premium"
	case PriorityMarket:
		return "market"
	case PriorityAnalysis:
		return "analysis"
	case PriorityRecap:
		return "recap"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Window names a fixed minute-of-day range used when spreading
// dynamically allocated slots across the trading day.
type Window string

const (
	WindowFullDay     Window = "full_day"
	WindowMarketHours Window = "market_hours"
)

// Bounds returns the inclusive start and end of the window.
func (w Window) Bounds() (ClockTime, ClockTime) {
	if w == WindowMarketHours {
		return ClockTime{Hour: 9, Minute: 30}, ClockTime{Hour: 16, Minute: 0}
	}
	return ClockTime{Hour: 6, Minute: 30}, ClockTime{Hour: 16, Minute: 30}
}

// ClockTime is a wall-clock minute within a day.
type ClockTime struct {
	Hour   int
	Minute int
}

// FromMinutes converts a minute-of-day offset back to a ClockTime.
func FromMinutes(m int) ClockTime {
	return ClockTime{Hour: m / 60, Minute: m % 60}
}

// Minutes returns the offset from midnight in minutes.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Source describes one feed: where to fetch it, how often it posts,
// and the constraints applied when its slots are planned.
type Source struct {
	Name     SourceName
	Path     string
	Priority Priority
	Window   Window

	// FixedTimes pins the source to explicit clock times instead of
	// dynamically allocated slots.
	FixedTimes []ClockTime

	// Weekdays restricts firing to the listed days. Empty means every day.
	Weekdays []time.Weekday

	// MarketHoursOnly gates scheduled runs to the exchange session.
	MarketHoursOnly bool
}

// Fixed reports whether the source bypasses dynamic slot allocation.
func (s Source) Fixed() bool {
	return len(s.FixedTimes) > 0
}

// FiresOn reports whether the source is active on the given weekday.
func (s Source) FiresOn(day time.Weekday) bool {
	if len(s.Weekdays) == 0 {
		return true
	}
	for _, d := range s.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// Catalog is an ordered, name-unique set of sources. Order is significant:
// slot allocation breaks priority ties by catalog position.
type Catalog struct {
	sources []Source
	byName  map[SourceName]Source
}

// NewCatalog validates and assembles a catalog from the given sources.
func NewCatalog(sources []Source) (Catalog, error) {
	byName := make(map[SourceName]Source, len(sources))
	ordered := make([]Source, 0, len(sources))
	for _, src := range sources {
		if src.Name == "" {
			return Catalog{}, fmt.Errorf("source with empty name")
		}
		if src.Path == "" {
			return Catalog{}, fmt.Errorf("source %s: empty path", src.Name)
		}
		if _, dup := byName[src.Name]; dup {
			return Catalog{}, fmt.Errorf("duplicate source %s", src.Name)
		}
		byName[src.Name] = src
		ordered = append(ordered, src)
	}
	return Catalog{sources: ordered, byName: byName}, nil
}

// Lookup fetches a source by name.
func (c Catalog) Lookup(name SourceName) (Source, bool) {
	src, ok := c.byName[name]
	return src, ok
}

// Sources returns the catalog in declaration order.
func (c Catalog) Sources() []Source {
	out := make([]Source, len(c.sources))
	copy(out, c.sources)
	return out
}

// Names returns all source names in declaration order.
func (c Catalog) Names() []SourceName {
	out := make([]SourceName, 0, len(c.sources))
	for _, src := range c.sources {
		out = append(out, src.Name)
	}
	return out
}

// Len reports the number of sources.
func (c Catalog) Len() int {
	return len(c.sources)
}

// With returns a copy of the catalog extended by src.
func (c Catalog) With(src Source) (Catalog, error) {
	if _, dup := c.byName[src.Name]; dup {
		return Catalog{}, fmt.Errorf("source %s already registered", src.Name)
	}
	return NewCatalog(append(c.Sources(), src))
}

// Without returns a copy of the catalog with the named source removed.
func (c Catalog) Without(name SourceName) (Catalog, error) {
	if _, ok := c.byName[name]; !ok {
		return Catalog{}, fmt.Errorf("unknown source %s", name)
	}
	kept := make([]Source, 0, len(c.sources)-1)
	for _, src := range c.sources {
		if src.Name != name {
			kept = append(kept, src)
		}
	}
	return NewCatalog(kept)
}

// Filter returns a catalog reduced to the named sources, keeping catalog
// order. Unknown names are reported as an error.
func (c Catalog) Filter(names []string) (Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	want := make(map[SourceName]bool, len(names))
	for _, n := range names {
		name := SourceName(n)
		if _, ok := c.byName[name]; !ok {
			return Catalog{}, fmt.Errorf("unknown source %q (known: %v)", n, c.Names())
		}
		want[name] = true
	}
	kept := make([]Source, 0, len(want))
	for _, src := range c.sources {
		if want[src.Name] {
			kept = append(kept, src)
		}
	}
	return NewCatalog(kept)
}

// DefaultCatalog returns the built-in feed set. Premium feeds keep their
// contractual clock times; the rest compete for dynamically allocated slots.
func DefaultCatalog() Catalog {
	catalog, err := NewCatalog([]Source{
		{
			Name:     BenzingaNews,
			Path:     "/benzinga/news",
			Priority: PriorityPremium,
			Window:   WindowFullDay,
			FixedTimes: []ClockTime{
				{7, 0}, {9, 45}, {11, 15}, {13, 0}, {14, 30}, {16, 15},
			},
		},
		{
			Name:       BenzingaRatings,
			Path:       "/benzinga/ratings",
			Priority:   PriorityPremium,
			Window:     WindowFullDay,
			FixedTimes: []ClockTime{{8, 0}, {12, 0}, {15, 0}},
		},
		{
			Name:       BenzingaEarnings,
			Path:       "/benzinga/earnings",
			Priority:   PriorityPremium,
			Window:     WindowFullDay,
			FixedTimes: []ClockTime{{7, 30}},
		},
		{
			Name:            YahooQuote,
			Path:            "/yahoo/quote",
			Priority:        PriorityMarket,
			Window:          WindowMarketHours,
			MarketHoursOnly: true,
		},
		{
			Name:            TopGainers,
			Path:            "/market/top-gainers",
			Priority:        PriorityMarket,
			Window:          WindowMarketHours,
			MarketHoursOnly: true,
		},
		{
			Name:     RedditTrending,
			Path:     "/reddit/trending",
			Priority: PriorityAnalysis,
			Window:   WindowFullDay,
		},
		{
			Name:     CNNFearGreed,
			Path:     "/cnn/fear-greed",
			Priority: PriorityAnalysis,
			Window:   WindowFullDay,
		},
		{
			Name:     SectorPerformance,
			Path:     "/market/sectors",
			Priority: PriorityRecap,
			Window:   WindowFullDay,
		},
		{
			Name:     EconomicCalendar,
			Path:     "/market/economic-calendar",
			Priority: PriorityRecap,
			Window:   WindowFullDay,
			Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
		},
		{
			Name:     VIX,
			Path:     "/market/vix",
			Priority: PriorityRecap,
			Window:   WindowFullDay,
			Weekdays: []time.Weekday{time.Tuesday, time.Thursday},
		},
		{
			Name:     SECInsider,
			Path:     "/sec/insider",
			Priority: PriorityRecap,
			Window:   WindowFullDay,
			Weekdays: []time.Weekday{time.Saturday, time.Sunday},
		},
	})
	if err != nil {
		panic(fmt.Sprintf("default catalog invalid: %v", err))
	}
	return catalog
}
