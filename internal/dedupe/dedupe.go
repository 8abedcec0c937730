// Package dedupe suppresses republishing of identical feed content.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/feed"
	"market-pulse-bot/internal/fingerprint"
	"market-pulse-bot/internal/storage"
)

// Deduplicator answers "has this exact content already been posted to
// this platform for this source?" using the durable publish journal.
// Scope is per (source, platform): the same payload may still go out on
// a different platform, and different sources never shadow each other.
type Deduplicator struct {
	store  storage.PublishRecordStore
	logger zerolog.Logger
}

// Stats summarises the dedup journal for the ops surface.
type Stats struct {
	TotalRecords   int64            `json:"total_records"`
	RecordsLast24h int64            `json:"records_last_24h"`
	ByPlatform     map[string]int64 `json:"by_platform_last_24h"`
}

// New constructs a Deduplicator over the given record store.
func New(store storage.PublishRecordStore, logger zerolog.Logger) *Deduplicator {
	return &Deduplicator{
		store:  store,
		logger: logger.With().Str("component", "dedupe").Logger(),
	}
}

// IsDuplicate reports whether the payload was already published for the
// source on the platform.
func (d *Deduplicator) IsDuplicate(ctx context.Context, payload feed.Payload, source feed.SourceName, platform string) (bool, error) {
	hash := fingerprint.Sum(payload.Data)
	seen, err := d.store.HasPublishRecord(ctx, hash, string(source), platform)
	if err != nil {
		return false, fmt.Errorf("dedupe lookup: %w", err)
	}
	if seen {
		d.logger.Debug().
			Str("source", string(source)).
			Str("platform", platform).
			Str("hash", hash[:12]).
			Msg("duplicate content detected")
	}
	return seen, nil
}

// Record journals a successful publish. A concurrent writer landing the
// same triple first is not an error: the unique constraint absorbs it.
func (d *Deduplicator) Record(ctx context.Context, payload feed.Payload, source feed.SourceName, platform string, postedAt time.Time) error {
	hash := fingerprint.Sum(payload.Data)
	inserted, err := d.store.InsertPublishRecord(ctx, storage.PublishRecord{
		ContentHash: hash,
		Source:      string(source),
		Platform:    platform,
		PostedAt:    postedAt,
	})
	if err != nil {
		return fmt.Errorf("record publish: %w", err)
	}
	if !inserted {
		d.logger.Debug().
			Str("source", string(source)).
			Str("platform", platform).
			Msg("publish record already present, insert skipped")
	}
	return nil
}

// Sweep removes journal entries older than the cutoff and returns the
// number of rows dropped.
func (d *Deduplicator) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	removed, err := d.store.DeletePublishRecordsBefore(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("sweep publish records: %w", err)
	}
	if removed > 0 {
		d.logger.Info().Int64("removed", removed).Time("older_than", olderThan).Msg("swept publish records")
	}
	return removed, nil
}

// Stats reads journal counters.
func (d *Deduplicator) Stats(ctx context.Context) (Stats, error) {
	total, err := d.store.CountPublishRecords(ctx)
	if err != nil {
		return Stats{}, err
	}
	since := time.Now().Add(-24 * time.Hour)
	recent, err := d.store.CountPublishRecordsSince(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	byPlatform, err := d.store.CountByPlatformSince(ctx, since)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		TotalRecords:   total,
		RecordsLast24h: recent,
		ByPlatform:     byPlatform,
	}, nil
}
