// Package scheduler registers the daily posting plan with a cron runner
// and exposes manual triggering for the ops surface.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"market-pulse-bot/internal/feed"
	"market-pulse-bot/internal/pipeline"
	"market-pulse-bot/internal/schedule"
)

const (
	maintenanceSpec = "0 0 * * *"
	heartbeatSpec   = "0 * * * *"

	defaultJobTimeout = 2 * time.Minute
)

// Runner abstracts the publish pipeline for scheduled and manual runs.
type Runner interface {
	Run(ctx context.Context, src feed.Source, opts pipeline.RunOptions) error
}

// UnknownSourceError reports a trigger for a source outside the active
// catalog, carrying the valid names for the caller to surface.
type UnknownSourceError struct {
	Name  string
	Valid []string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown source %q", e.Name)
}

// Options configure the scheduler.
type Options struct {
	Timezone string
	DailyCap int

	// JobTimeout bounds one scheduled pipeline run.
	JobTimeout time.Duration

	// Maintenance, when set, runs nightly at midnight in the scheduler
	// timezone.
	Maintenance func(ctx context.Context)

	// Stats, when set, feeds posting counters into the hourly heartbeat
	// log line.
	Stats func() pipeline.Stats
}

// JobInfo describes one registered cron entry for the ops surface.
type JobInfo struct {
	ID     string     `json:"id"`
	Source string     `json:"source,omitempty"`
	Spec   string     `json:"spec"`
	Next   time.Time  `json:"next_run"`
	Prev   *time.Time `json:"last_run,omitempty"`
}

type job struct {
	id      string
	source  feed.SourceName
	spec    string
	entryID cron.EntryID
}

// Scheduler owns the cron instance and the posting plan derived from the
// source catalog. Catalog changes rebuild the whole entry set: new specs
// are validated before old entries are removed, so a bad spec can never
// leave the schedule half-registered.
type Scheduler struct {
	opts   Options
	runner Runner
	logger zerolog.Logger
	loc    *time.Location
	parser cron.Parser

	mu      sync.Mutex
	baseCtx context.Context
	c       *cron.Cron
	catalog feed.Catalog
	plan    schedule.Plan
	jobs    []job
	started bool
}

// New builds a scheduler for the catalog and registers its cron entries.
// The cron runner is not started yet.
func New(catalog feed.Catalog, runner Runner, opts Options, logger zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", opts.Timezone, err)
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	s := &Scheduler{
		opts:    opts,
		runner:  runner,
		logger:  logger.With().Str("component", "scheduler").Logger(),
		loc:     loc,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		catalog: catalog,
	}
	s.c = cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.registerLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron runner. Scheduled runs detach from ctx so an
// in-flight publish is not severed mid-request; Stop waits for them.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.baseCtx = ctx
	s.started = true
	s.c.Start()
	s.logger.Info().
		Str("timezone", s.loc.String()).
		Int("jobs", len(s.jobs)).
		Msg("scheduler started")
}

// Stop halts scheduling and blocks until running jobs complete.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	<-s.c.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Trigger runs the pipeline for one source immediately, bypassing the
// market-hours gate. Dedup and rate limits still apply.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	src, ok := s.catalog.Lookup(feed.SourceName(name))
	catalog := s.catalog
	s.mu.Unlock()

	if !ok {
		valid := make([]string, 0, catalog.Len())
		for _, n := range catalog.Names() {
			valid = append(valid, string(n))
		}
		return &UnknownSourceError{Name: name, Valid: valid}
	}

	s.logger.Info().Str("source", name).Msg("manual trigger")
	return s.runner.Run(ctx, src, pipeline.RunOptions{Manual: true})
}

// AddSource extends the catalog and rebuilds the schedule.
func (s *Scheduler) AddSource(src feed.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.catalog.With(src)
	if err != nil {
		return err
	}
	prev := s.catalog
	s.catalog = next
	if err := s.registerLocked(); err != nil {
		s.catalog = prev
		return err
	}
	return nil
}

// RemoveSource drops a source from the catalog and rebuilds the schedule.
func (s *Scheduler) RemoveSource(name feed.SourceName) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.catalog.Without(name)
	if err != nil {
		return err
	}
	prev := s.catalog
	s.catalog = next
	if err := s.registerLocked(); err != nil {
		s.catalog = prev
		return err
	}
	return nil
}

// Jobs lists the registered entries in firing order.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		entry := s.c.Entry(j.entryID)
		info := JobInfo{
			ID:     j.id,
			Source: string(j.source),
			Spec:   j.spec,
			Next:   entry.Next,
		}
		if !entry.Prev.IsZero() {
			prev := entry.Prev
			info.Prev = &prev
		}
		out = append(out, info)
	}
	return out
}

// Plan returns the active daily posting plan.
func (s *Scheduler) Plan() schedule.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

// registerLocked rebuilds the cron entry set from the catalog. All specs
// are parsed before any existing entry is removed.
func (s *Scheduler) registerLocked() error {
	plan := schedule.BuildPlan(s.catalog.Sources(), s.opts.DailyCap, s.logger)

	type pending struct {
		meta  job
		sched cron.Schedule
		run   cron.FuncJob
	}
	pendings := make([]pending, 0, len(plan.Entries)+2)

	for _, entry := range plan.Entries {
		entry := entry
		spec := cronSpec(entry.Time, entry.Source.Weekdays)
		sched, err := s.parser.Parse(spec)
		if err != nil {
			return fmt.Errorf("parse cron spec %q for %s: %w", spec, entry.Source.Name, err)
		}
		pendings = append(pendings, pending{
			meta: job{
				id:     fmt.Sprintf("%s_%02d%02d", entry.Source.Name, entry.Time.Hour, entry.Time.Minute),
				source: entry.Source.Name,
				spec:   spec,
			},
			sched: sched,
			run:   func() { s.fire(entry) },
		})
	}

	if s.opts.Maintenance != nil {
		sched, err := s.parser.Parse(maintenanceSpec)
		if err != nil {
			return fmt.Errorf("parse maintenance spec: %w", err)
		}
		pendings = append(pendings, pending{
			meta:  job{id: "maintenance_nightly", spec: maintenanceSpec},
			sched: sched,
			run:   func() { s.runMaintenance() },
		})
	}

	sched, err := s.parser.Parse(heartbeatSpec)
	if err != nil {
		return fmt.Errorf("parse heartbeat spec: %w", err)
	}
	pendings = append(pendings, pending{
		meta:  job{id: "heartbeat_hourly", spec: heartbeatSpec},
		sched: sched,
		run:   func() { s.heartbeat() },
	})

	for _, j := range s.jobs {
		s.c.Remove(j.entryID)
	}
	s.jobs = s.jobs[:0]
	for _, p := range pendings {
		p.meta.entryID = s.c.Schedule(p.sched, p.run)
		s.jobs = append(s.jobs, p.meta)
	}
	s.plan = plan

	s.logger.Info().
		Int("jobs", len(s.jobs)).
		Int("capped_slots", plan.CappedSlots()).
		Int("daily_cap", plan.DailyCap).
		Int("fixed_demand", plan.FixedDemand).
		Msg("posting schedule registered")
	return nil
}

func (s *Scheduler) fire(entry schedule.Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.base()), s.opts.JobTimeout)
	defer cancel()

	err := s.runner.Run(ctx, entry.Source, pipeline.RunOptions{
		SkipConstrained: entry.SkipConstrained,
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("source", string(entry.Source.Name)).
			Stringer("at", entry.Time).
			Msg("scheduled firing failed")
	}
}

func (s *Scheduler) runMaintenance() {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.base()), s.opts.JobTimeout)
	defer cancel()

	s.logger.Info().Msg("nightly maintenance started")
	s.opts.Maintenance(ctx)
}

func (s *Scheduler) heartbeat() {
	s.mu.Lock()
	var next time.Time
	for _, j := range s.jobs {
		entry := s.c.Entry(j.entryID)
		if entry.Next.IsZero() {
			continue
		}
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	jobs := len(s.jobs)
	s.mu.Unlock()

	event := s.logger.Info().Int("jobs", jobs).Time("next_firing", next)
	if s.opts.Stats != nil {
		stats := s.opts.Stats()
		event = event.
			Int64("runs", stats.TotalRuns).
			Int64("published", stats.SuccessfulPublishes).
			Int64("failed", stats.FailedPublishes).
			Int64("duplicates", stats.SkippedDuplicates).
			Int64("rate_limited", stats.RateLimitBlocks)
	}
	event.Msg("scheduler heartbeat")
}

func (s *Scheduler) base() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// cronSpec renders a standard five-field spec for a daily firing,
// optionally restricted to weekdays. cron and time.Weekday agree that
// Sunday is 0.
func cronSpec(at feed.ClockTime, weekdays []time.Weekday) string {
	dow := "*"
	if len(weekdays) > 0 {
		parts := make([]string, len(weekdays))
		for i, d := range weekdays {
			parts[i] = strconv.Itoa(int(d))
		}
		dow = strings.Join(parts, ",")
	}
	return fmt.Sprintf("%d %d * * %s", at.Minute, at.Hour, dow)
}

// cronLogger adapts zerolog to the cron logger interface.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(logFields(keysAndValues)).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(logFields(keysAndValues)).Msg(msg)
}

func logFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields[key] = kv[i+1]
	}
	return fields
}
