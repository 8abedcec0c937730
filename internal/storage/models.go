package storage

import "time"

// PublishRecord marks one payload published to one platform. The
// (content_hash, source, platform) triple is unique: re-publishing the
// same content to the same platform is suppressed at the database level.
type PublishRecord struct {
	ID          int64
	ContentHash string
	Source      string
	Platform    string
	PostedAt    time.Time
}

// LedgerEntry is one successful publish on a throughput-capped platform,
// consulted by the sliding-window rate limiter.
type LedgerEntry struct {
	ID       int64
	Platform string
	PostedAt time.Time
}

// DailyActivity aggregates publish counts per platform per day.
type DailyActivity struct {
	Day      time.Time
	Platform string
	Count    int64
}
