package dedupe

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/feed"
	"market-pulse-bot/internal/storage"
)

type memoryRecordStore struct {
	records map[string]time.Time
}

var _ storage.PublishRecordStore = (*memoryRecordStore)(nil)

func newMemoryRecordStore() *memoryRecordStore {
	return &memoryRecordStore{records: make(map[string]time.Time)}
}

func recordKey(hash, source, platform string) string {
	return hash + "|" + source + "|" + platform
}

func (m *memoryRecordStore) InsertPublishRecord(_ context.Context, rec storage.PublishRecord) (bool, error) {
	k := recordKey(rec.ContentHash, rec.Source, rec.Platform)
	if _, exists := m.records[k]; exists {
		return false, nil
	}
	m.records[k] = rec.PostedAt
	return true, nil
}

func (m *memoryRecordStore) HasPublishRecord(_ context.Context, hash, source, platform string) (bool, error) {
	_, exists := m.records[recordKey(hash, source, platform)]
	return exists, nil
}

func (m *memoryRecordStore) DeletePublishRecordsBefore(_ context.Context, olderThan time.Time) (int64, error) {
	var removed int64
	for k, postedAt := range m.records {
		if postedAt.Before(olderThan) {
			delete(m.records, k)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryRecordStore) CountPublishRecords(_ context.Context) (int64, error) {
	return int64(len(m.records)), nil
}

func (m *memoryRecordStore) CountPublishRecordsSince(_ context.Context, since time.Time) (int64, error) {
	var count int64
	for _, postedAt := range m.records {
		if !postedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memoryRecordStore) CountByPlatformSince(context.Context, time.Time) (map[string]int64, error) {
	return map[string]int64{}, nil
}

func (m *memoryRecordStore) ListDailyActivity(context.Context, time.Time, time.Time) ([]storage.DailyActivity, error) {
	return nil, nil
}

func noopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func payloadOf(raw string) feed.Payload {
	return feed.Payload{Success: true, Data: json.RawMessage(raw)}
}

func TestIsDuplicateFalseThenTrue(t *testing.T) {
	d := New(newMemoryRecordStore(), noopLogger())
	ctx := context.Background()
	payload := payloadOf(`{"score":72,"rating":"greed"}`)

	dup, err := d.IsDuplicate(ctx, payload, feed.CNNFearGreed, "twitter")
	if err != nil {
		t.Fatalf("IsDuplicate returned error: %v", err)
	}
	if dup {
		t.Fatal("fresh payload should not be flagged as duplicate")
	}

	if err := d.Record(ctx, payload, feed.CNNFearGreed, "twitter", time.Now()); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	dup, err = d.IsDuplicate(ctx, payload, feed.CNNFearGreed, "twitter")
	if err != nil {
		t.Fatalf("IsDuplicate returned error: %v", err)
	}
	if !dup {
		t.Fatal("recorded payload must be flagged as duplicate")
	}
}

func TestDuplicateScopeIsPerPlatform(t *testing.T) {
	d := New(newMemoryRecordStore(), noopLogger())
	ctx := context.Background()
	payload := payloadOf(`{"tickers":["TSLA","NVDA"]}`)

	if err := d.Record(ctx, payload, feed.RedditTrending, "twitter", time.Now()); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	dup, _ := d.IsDuplicate(ctx, payload, feed.RedditTrending, "discord")
	if dup {
		t.Fatal("publish on twitter must not block the same content on discord")
	}
}

func TestDuplicateScopeIsPerSource(t *testing.T) {
	d := New(newMemoryRecordStore(), noopLogger())
	ctx := context.Background()
	payload := payloadOf(`{"quotes":[{"ticker":"SPY","price":500}]}`)

	if err := d.Record(ctx, payload, feed.YahooQuote, "twitter", time.Now()); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	dup, _ := d.IsDuplicate(ctx, payload, feed.TopGainers, "twitter")
	if dup {
		t.Fatal("identical bytes from a different source must not be shadowed")
	}
}

func TestReorderedKeysAreStillDuplicates(t *testing.T) {
	d := New(newMemoryRecordStore(), noopLogger())
	ctx := context.Background()

	first := payloadOf(`{"score":40,"rating":"fear"}`)
	second := payloadOf(`{"rating":"fear","score":40}`)

	if err := d.Record(ctx, first, feed.CNNFearGreed, "discord", time.Now()); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	dup, _ := d.IsDuplicate(ctx, second, feed.CNNFearGreed, "discord")
	if !dup {
		t.Fatal("key order must not defeat deduplication")
	}
}

func TestRecordTwiceIsSilent(t *testing.T) {
	d := New(newMemoryRecordStore(), noopLogger())
	ctx := context.Background()
	payload := payloadOf(`{"gainers":[{"ticker":"AMD"}]}`)

	if err := d.Record(ctx, payload, feed.TopGainers, "twitter", time.Now()); err != nil {
		t.Fatalf("first Record returned error: %v", err)
	}
	if err := d.Record(ctx, payload, feed.TopGainers, "twitter", time.Now()); err != nil {
		t.Fatalf("second Record must be swallowed, got error: %v", err)
	}
}

func TestSweepRemovesOnlyOldRecords(t *testing.T) {
	store := newMemoryRecordStore()
	d := New(store, noopLogger())
	ctx := context.Background()

	old := payloadOf(`{"articles":[{"title":"old"}]}`)
	fresh := payloadOf(`{"articles":[{"title":"fresh"}]}`)

	if err := d.Record(ctx, old, feed.BenzingaNews, "twitter", time.Now().Add(-10*24*time.Hour)); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if err := d.Record(ctx, fresh, feed.BenzingaNews, "twitter", time.Now()); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}

	removed, err := d.Sweep(ctx, time.Now().Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 swept record, got %d", removed)
	}

	dup, _ := d.IsDuplicate(ctx, fresh, feed.BenzingaNews, "twitter")
	if !dup {
		t.Fatal("fresh record must survive the sweep")
	}
}
