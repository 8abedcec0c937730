package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertPublishRecordSQL = `INSERT INTO publish_records (
        content_hash,
        source,
        platform,
        posted_at
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (content_hash, source, platform) DO NOTHING;`

	countPublishRecordSQL = `SELECT COUNT(*)
    FROM publish_records
    WHERE content_hash = $1
      AND source = $2
      AND platform = $3;`

	deletePublishRecordsBeforeSQL = `DELETE FROM publish_records WHERE posted_at < $1;`

	countAllPublishRecordsSQL = `SELECT COUNT(*) FROM publish_records;`

	countPublishRecordsSinceSQL = `SELECT COUNT(*)
    FROM publish_records
    WHERE posted_at >= $1;`

	countByPlatformSinceSQL = `SELECT platform, COUNT(*)
    FROM publish_records
    WHERE posted_at >= $1
    GROUP BY platform;`

	listDailyActivitySQL = `SELECT
        date_trunc('day', posted_at) AS day,
        platform,
        COUNT(*)
    FROM publish_records
    WHERE posted_at >= $1
      AND posted_at < $2
    GROUP BY day, platform
    ORDER BY day, platform;`

	insertLedgerEntrySQL = `INSERT INTO platform_posts (
        platform,
        posted_at
    ) VALUES (
        $1,$2
    );`

	countLedgerEntriesSinceSQL = `SELECT COUNT(*)
    FROM platform_posts
    WHERE platform = $1
      AND posted_at > $2;`

	oldestLedgerEntrySinceSQL = `SELECT MIN(posted_at)
    FROM platform_posts
    WHERE platform = $1
      AND posted_at > $2;`

	lastLedgerEntrySQL = `SELECT MAX(posted_at)
    FROM platform_posts
    WHERE platform = $1;`

	deleteLedgerEntriesBeforeSQL = `DELETE FROM platform_posts WHERE posted_at < $1;`
)

// PublishRecordStore defines operations for the content dedup journal.
type PublishRecordStore interface {
	InsertPublishRecord(ctx context.Context, rec PublishRecord) (bool, error)
	HasPublishRecord(ctx context.Context, contentHash, source, platform string) (bool, error)
	DeletePublishRecordsBefore(ctx context.Context, olderThan time.Time) (int64, error)
	CountPublishRecords(ctx context.Context) (int64, error)
	CountPublishRecordsSince(ctx context.Context, since time.Time) (int64, error)
	CountByPlatformSince(ctx context.Context, since time.Time) (map[string]int64, error)
	ListDailyActivity(ctx context.Context, from, to time.Time) ([]DailyActivity, error)
}

// LedgerStore defines operations for the platform posting ledger.
type LedgerStore interface {
	InsertLedgerEntry(ctx context.Context, platform string, postedAt time.Time) error
	CountLedgerEntriesSince(ctx context.Context, platform string, since time.Time) (int, error)
	OldestLedgerEntrySince(ctx context.Context, platform string, since time.Time) (*time.Time, error)
	LastLedgerEntry(ctx context.Context, platform string) (*time.Time, error)
	DeleteLedgerEntriesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// Store aggregates access to publish records and the posting ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertPublishRecord appends a publish record. Returns false when an
// identical (content_hash, source, platform) row already exists.
func (s *Store) InsertPublishRecord(ctx context.Context, rec PublishRecord) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	cmdTag, execErr := pool.Exec(ctx, insertPublishRecordSQL,
		rec.ContentHash,
		rec.Source,
		rec.Platform,
		rec.PostedAt,
	)
	if execErr != nil {
		return false, fmt.Errorf("insert publish record: %w", execErr)
	}
	return cmdTag.RowsAffected() > 0, nil
}

// HasPublishRecord reports whether the triple was already published.
func (s *Store) HasPublishRecord(ctx context.Context, contentHash, source, platform string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	var count int64
	if scanErr := pool.QueryRow(ctx, countPublishRecordSQL, contentHash, source, platform).Scan(&count); scanErr != nil {
		return false, fmt.Errorf("lookup publish record: %w", scanErr)
	}
	return count > 0, nil
}

// DeletePublishRecordsBefore sweeps publish history older than the cutoff.
func (s *Store) DeletePublishRecordsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deletePublishRecordsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete publish records before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

// CountPublishRecords counts all stored publish records.
func (s *Store) CountPublishRecords(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countAllPublishRecordsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count publish records: %w", scanErr)
	}
	return count, nil
}

// CountPublishRecordsSince counts records posted at or after the cutoff.
func (s *Store) CountPublishRecordsSince(ctx context.Context, since time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countPublishRecordsSinceSQL, since).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count publish records since: %w", scanErr)
	}
	return count, nil
}

// CountByPlatformSince breaks down recent publish counts per platform.
func (s *Store) CountByPlatformSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, countByPlatformSinceSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("count by platform since: %w", queryErr)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var platform string
		var count int64
		if err := rows.Scan(&platform, &count); err != nil {
			return nil, err
		}
		counts[platform] = count
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return counts, nil
}

// ListDailyActivity returns per-day, per-platform publish counts in a window.
func (s *Store) ListDailyActivity(ctx context.Context, from, to time.Time) ([]DailyActivity, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDailyActivitySQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list daily activity: %w", queryErr)
	}
	defer rows.Close()

	activity := make([]DailyActivity, 0)
	for rows.Next() {
		var row DailyActivity
		if err := rows.Scan(&row.Day, &row.Platform, &row.Count); err != nil {
			return nil, err
		}
		activity = append(activity, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return activity, nil
}

// InsertLedgerEntry records a successful publish for rate limiting.
func (s *Store) InsertLedgerEntry(ctx context.Context, platform string, postedAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertLedgerEntrySQL, platform, postedAt); execErr != nil {
		return fmt.Errorf("insert ledger entry: %w", execErr)
	}
	return nil
}

// CountLedgerEntriesSince counts ledger entries strictly after the cutoff.
func (s *Store) CountLedgerEntriesSince(ctx context.Context, platform string, since time.Time) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int
	if scanErr := pool.QueryRow(ctx, countLedgerEntriesSinceSQL, platform, since).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count ledger entries since: %w", scanErr)
	}
	return count, nil
}

// OldestLedgerEntrySince returns the earliest entry strictly after the
// cutoff, or nil when the window is empty.
func (s *Store) OldestLedgerEntrySince(ctx context.Context, platform string, since time.Time) (*time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var oldest sql.NullTime
	if scanErr := pool.QueryRow(ctx, oldestLedgerEntrySinceSQL, platform, since).Scan(&oldest); scanErr != nil {
		return nil, fmt.Errorf("oldest ledger entry since: %w", scanErr)
	}
	if !oldest.Valid {
		return nil, nil
	}
	value := oldest.Time
	return &value, nil
}

// LastLedgerEntry returns the most recent publish time, or nil when the
// platform has never posted.
func (s *Store) LastLedgerEntry(ctx context.Context, platform string) (*time.Time, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	var last sql.NullTime
	if scanErr := pool.QueryRow(ctx, lastLedgerEntrySQL, platform).Scan(&last); scanErr != nil {
		return nil, fmt.Errorf("last ledger entry: %w", scanErr)
	}
	if !last.Valid {
		return nil, nil
	}
	value := last.Time
	return &value, nil
}

// DeleteLedgerEntriesBefore prunes ledger rows older than the cutoff.
func (s *Store) DeleteLedgerEntriesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	cmdTag, execErr := pool.Exec(ctx, deleteLedgerEntriesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete ledger entries before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}
