// Package pipeline executes the fetch-to-publish flow for source firings.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/compose"
	"market-pulse-bot/internal/dedupe"
	"market-pulse-bot/internal/feed"
	"market-pulse-bot/internal/platform"
	"market-pulse-bot/internal/ratelimit"
)

// Stats counts pipeline outcomes since process start.
type Stats struct {
	TotalRuns           int64 `json:"total_runs"`
	SuccessfulPublishes int64 `json:"successful_publishes"`
	FailedPublishes     int64 `json:"failed_publishes"`
	SkippedDuplicates   int64 `json:"skipped_duplicates"`
	RateLimitBlocks     int64 `json:"rate_limit_blocks"`
	SkippedEmpty        int64 `json:"skipped_empty"`
	SkippedMarketClosed int64 `json:"skipped_market_closed"`
}

// Dependencies wires the pipeline collaborators.
type Dependencies struct {
	Fetcher    feed.Fetcher
	Dedupe     *dedupe.Deduplicator
	Limiter    *ratelimit.Limiter
	Registry   *compose.Registry
	Generator  compose.Generator    // nil disables generated copy
	Charts     *platform.ChartCache // nil disables chart attachments
	Publishers []platform.Publisher
}

// Options tunes runner behaviour.
type Options struct {
	Location    *time.Location
	MarketOpen  feed.ClockTime
	MarketClose feed.ClockTime

	// Now supplies the clock, defaulting to time.Now. Injected by tests.
	Now func() time.Time
}

// RunOptions adjusts a single firing.
type RunOptions struct {
	// Manual marks operator-initiated runs, which bypass the
	// market-hours gate.
	Manual bool

	// SkipConstrained drops platforms that consume the capped posting
	// budget. Set on fallback firings of starved sources.
	SkipConstrained bool
}

// Runner drives one source firing through fetch, emptiness, dedup,
// rate-limit, compose, and publish. Per-platform outcomes are
// independent: a failure or gate on one platform never blocks another.
type Runner struct {
	deps   Dependencies
	opts   Options
	logger zerolog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewRunner constructs a pipeline runner.
func NewRunner(deps Dependencies, opts Options, logger zerolog.Logger) *Runner {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Runner{
		deps:   deps,
		opts:   opts,
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one firing for src. Gates that stop the run (market
// closed, empty payload, hub-reported failure) are not errors; only
// fetch transport failures surface to the caller.
func (r *Runner) Run(ctx context.Context, src feed.Source, opts RunOptions) error {
	logger := r.logger.With().Str("source", string(src.Name)).Logger()

	if src.MarketHoursOnly && !opts.Manual && !r.marketOpen() {
		r.bump(func(s *Stats) { s.SkippedMarketClosed++ })
		logger.Debug().Msg("market closed, firing skipped")
		return nil
	}

	payload, err := r.deps.Fetcher.Fetch(ctx, src)
	if err != nil {
		return err
	}
	if !payload.Success {
		logger.Warn().Str("error", payload.Error).Msg("hub reported failure, firing skipped")
		return nil
	}
	if !payload.HasContent(src.Name) {
		r.bump(func(s *Stats) { s.SkippedEmpty++ })
		logger.Debug().Msg("payload empty, nothing to post")
		return nil
	}

	r.bump(func(s *Stats) { s.TotalRuns++ })

	for _, pub := range r.deps.Publishers {
		r.publishTo(ctx, pub, src, payload, opts, logger)
	}
	return nil
}

func (r *Runner) publishTo(ctx context.Context, pub platform.Publisher, src feed.Source, payload feed.Payload, opts RunOptions, logger zerolog.Logger) {
	plog := logger.With().Str("platform", pub.Name()).Logger()

	if pub.Constrained() && opts.SkipConstrained {
		plog.Debug().Msg("fallback firing, constrained platform skipped")
		return
	}

	// Dedup gates before rate limiting and generation: duplicates must
	// not burn posting budget or completion tokens.
	dup, err := r.deps.Dedupe.IsDuplicate(ctx, payload, src.Name, pub.Name())
	if err != nil {
		plog.Error().Err(err).Msg("dedup lookup failed")
		return
	}
	if dup {
		r.bump(func(s *Stats) { s.SkippedDuplicates++ })
		plog.Debug().Msg("duplicate content, publish skipped")
		return
	}

	if pub.Constrained() {
		allowed, reason, limitErr := r.deps.Limiter.CanPublish(ctx)
		if limitErr != nil {
			plog.Error().Err(limitErr).Msg("rate limit check failed")
			return
		}
		if !allowed {
			r.bump(func(s *Stats) { s.RateLimitBlocks++ })
			plog.Warn().Str("reason", reason).Msg("publish blocked by rate limit")
			return
		}
	}

	msg := r.composeMessage(ctx, pub, src, payload, plog)

	if err := pub.Publish(ctx, msg); err != nil {
		r.bump(func(s *Stats) { s.FailedPublishes++ })
		plog.Error().Err(err).Msg("publish failed")
		return
	}

	// State updates follow a successful publish only, so failed
	// attempts stay eligible for the next firing.
	if err := r.deps.Dedupe.Record(ctx, payload, src.Name, pub.Name(), r.now()); err != nil {
		plog.Error().Err(err).Msg("publish succeeded but journaling failed")
	}
	if pub.Constrained() {
		if err := r.deps.Limiter.RecordPublish(ctx); err != nil {
			plog.Error().Err(err).Msg("publish succeeded but ledger update failed")
		}
	}
	r.bump(func(s *Stats) { s.SuccessfulPublishes++ })
	plog.Info().Msg("publish succeeded")
}

func (r *Runner) composeMessage(ctx context.Context, pub platform.Publisher, src feed.Source, payload feed.Payload, logger zerolog.Logger) platform.Message {
	embed := r.deps.Registry.EmbedFor(src.Name, payload)
	msg := platform.Message{
		Text:  r.deps.Registry.Tweet(src.Name, payload),
		Title: embed.Title,
		Body:  embed.Description,
		Color: embed.Color,
	}

	if r.deps.Generator != nil {
		switch pub.Name() {
		case platform.NameTwitter:
			if text, err := r.deps.Generator.Tweet(ctx, src, payload); err != nil {
				logger.Debug().Err(err).Msg("generated copy unavailable, using template")
			} else {
				msg.Text = text
			}
		default:
			if text, err := r.deps.Generator.Description(ctx, src, payload); err != nil {
				logger.Debug().Err(err).Msg("generated copy unavailable, using template")
			} else {
				msg.Body = text
			}
		}
	}

	if r.deps.Charts != nil {
		if url := payload.ChartURL(); url != "" {
			if path, err := r.deps.Charts.Fetch(ctx, url); err != nil {
				logger.Warn().Err(err).Msg("chart download failed, publishing without media")
			} else {
				msg.MediaPath = path
			}
		}
	}
	return msg
}

func (r *Runner) marketOpen() bool {
	now := r.now().In(r.opts.Location)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	return minute >= r.opts.MarketOpen.Minutes() && minute < r.opts.MarketClose.Minutes()
}

func (r *Runner) now() time.Time {
	if r.opts.Now != nil {
		return r.opts.Now()
	}
	return time.Now()
}

func (r *Runner) bump(update func(*Stats)) {
	r.mu.Lock()
	update(&r.stats)
	r.mu.Unlock()
}

// Stats returns a snapshot of the pipeline counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
