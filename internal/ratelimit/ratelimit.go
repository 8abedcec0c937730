// Package ratelimit enforces sliding-window posting caps per platform.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/storage"
)

// Options configures one platform limiter.
type Options struct {
	Platform  string
	PerMinute int
	PerDay    int

	// Now supplies the clock, defaulting to time.Now. Injected by tests.
	Now func() time.Time
}

// Limiter gates publishes against per-minute and per-day sliding windows
// backed by the durable posting ledger, so caps survive restarts.
type Limiter struct {
	store  storage.LedgerStore
	opts   Options
	logger zerolog.Logger
}

// Stats is the limiter view exposed on the ops surface.
type Stats struct {
	Platform        string     `json:"platform"`
	PostsLastMinute int        `json:"posts_last_minute"`
	PostsLastDay    int        `json:"posts_last_day"`
	PerMinuteCap    int        `json:"per_minute_cap"`
	PerDayCap       int        `json:"per_day_cap"`
	LastPost        *time.Time `json:"last_post,omitempty"`
	CanPost         bool       `json:"can_post"`
}

// New constructs a Limiter for one platform.
func New(store storage.LedgerStore, opts Options, logger zerolog.Logger) *Limiter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Limiter{
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "ratelimit").Str("platform", opts.Platform).Logger(),
	}
}

// CanPublish checks both windows without consuming budget. When denied,
// the returned reason is human-readable and safe to log verbatim.
func (l *Limiter) CanPublish(ctx context.Context) (bool, string, error) {
	now := l.opts.Now()

	minuteAgo := now.Add(-time.Minute)
	minuteCount, err := l.store.CountLedgerEntriesSince(ctx, l.opts.Platform, minuteAgo)
	if err != nil {
		return false, "", fmt.Errorf("count minute window: %w", err)
	}
	if minuteCount >= l.opts.PerMinute {
		wait := time.Minute
		if oldest, oldestErr := l.store.OldestLedgerEntrySince(ctx, l.opts.Platform, minuteAgo); oldestErr == nil && oldest != nil {
			wait = time.Minute - now.Sub(*oldest)
		}
		if wait < 0 {
			wait = 0
		}
		seconds := int((wait + time.Second - 1) / time.Second)
		reason := fmt.Sprintf("per-minute limit reached (%d/%d), retry in %ds",
			minuteCount, l.opts.PerMinute, seconds)
		return false, reason, nil
	}

	dayAgo := now.Add(-24 * time.Hour)
	dayCount, err := l.store.CountLedgerEntriesSince(ctx, l.opts.Platform, dayAgo)
	if err != nil {
		return false, "", fmt.Errorf("count day window: %w", err)
	}
	if dayCount >= l.opts.PerDay {
		reason := fmt.Sprintf("daily limit reached (%d/%d posts)", dayCount, l.opts.PerDay)
		return false, reason, nil
	}

	return true, "", nil
}

// RecordPublish consumes one slot at the current clock reading. Only
// called after a platform accepted the publish.
func (l *Limiter) RecordPublish(ctx context.Context) error {
	if err := l.store.InsertLedgerEntry(ctx, l.opts.Platform, l.opts.Now().UTC()); err != nil {
		return fmt.Errorf("record publish: %w", err)
	}
	return nil
}

// Prune drops ledger entries older than the cutoff. Entries inside the
// trailing 24 hours must be kept or the daily window would reopen early.
func (l *Limiter) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	floor := l.opts.Now().Add(-24 * time.Hour)
	if olderThan.After(floor) {
		olderThan = floor
	}
	removed, err := l.store.DeleteLedgerEntriesBefore(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune ledger: %w", err)
	}
	return removed, nil
}

// Stats reads the current window occupancy.
func (l *Limiter) Stats(ctx context.Context) (Stats, error) {
	now := l.opts.Now()

	minuteCount, err := l.store.CountLedgerEntriesSince(ctx, l.opts.Platform, now.Add(-time.Minute))
	if err != nil {
		return Stats{}, err
	}
	dayCount, err := l.store.CountLedgerEntriesSince(ctx, l.opts.Platform, now.Add(-24*time.Hour))
	if err != nil {
		return Stats{}, err
	}
	last, err := l.store.LastLedgerEntry(ctx, l.opts.Platform)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Platform:        l.opts.Platform,
		PostsLastMinute: minuteCount,
		PostsLastDay:    dayCount,
		PerMinuteCap:    l.opts.PerMinute,
		PerDayCap:       l.opts.PerDay,
		LastPost:        last,
		CanPost:         minuteCount < l.opts.PerMinute && dayCount < l.opts.PerDay,
	}, nil
}
