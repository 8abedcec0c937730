package scheduler

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/feed"
	"market-pulse-bot/internal/pipeline"
)

type recordedRun struct {
	source feed.SourceName
	opts   pipeline.RunOptions
}

type recorderRunner struct {
	mu   sync.Mutex
	runs []recordedRun
	err  error
}

var _ Runner = (*recorderRunner)(nil)

func (r *recorderRunner) Run(_ context.Context, src feed.Source, opts pipeline.RunOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, recordedRun{source: src.Name, opts: opts})
	return r.err
}

func (r *recorderRunner) recorded() []recordedRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedRun, len(r.runs))
	copy(out, r.runs)
	return out
}

func noopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestScheduler(t *testing.T, runner Runner, opts Options) *Scheduler {
	t.Helper()
	if opts.Timezone == "" {
		opts.Timezone = "UTC"
	}
	if opts.DailyCap == 0 {
		opts.DailyCap = 17
	}
	s, err := New(feed.DefaultCatalog(), runner, opts, noopLogger())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return s
}

func TestCronSpecRendering(t *testing.T) {
	cases := []struct {
		at       feed.ClockTime
		weekdays []time.Weekday
		want     string
	}{
		{feed.ClockTime{Hour: 16, Minute: 30}, nil, "30 16 * * *"},
		{feed.ClockTime{Hour: 7, Minute: 0}, nil, "0 7 * * *"},
		{feed.ClockTime{Hour: 16, Minute: 30}, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, "30 16 * * 1,3,5"},
		{feed.ClockTime{Hour: 11, Minute: 30}, []time.Weekday{time.Saturday, time.Sunday}, "30 11 * * 6,0"},
	}
	for _, tc := range cases {
		if got := cronSpec(tc.at, tc.weekdays); got != tc.want {
			t.Fatalf("期望 spec %q, 实际 %q", tc.want, got)
		}
	}
}

func TestScheduleRegistersPlanEntries(t *testing.T) {
	s := newTestScheduler(t, &recorderRunner{}, Options{})

	plan := s.Plan()
	jobs := s.Jobs()

	// One cron entry per plan entry, plus the hourly heartbeat.
	if len(jobs) != len(plan.Entries)+1 {
		t.Fatalf("期望 %d 个任务, 实际 %d", len(plan.Entries)+1, len(jobs))
	}
	if got := plan.CappedSlots(); got != plan.DailyCap {
		t.Fatalf("capped slots must match the daily cap, got %d want %d", got, plan.DailyCap)
	}

	byID := make(map[string]JobInfo, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
	}
	earnings, ok := byID["benzinga_earnings_0730"]
	if !ok {
		t.Fatal("fixed-time source must register under its clock-stamped id")
	}
	if earnings.Spec != "30 7 * * *" {
		t.Fatalf("期望 spec \"30 7 * * *\", 实际 %q", earnings.Spec)
	}

	foundWeekend := false
	for _, j := range jobs {
		if j.Source == string(feed.SECInsider) {
			foundWeekend = true
			if !strings.HasSuffix(j.Spec, "6,0") {
				t.Fatalf("weekend source must carry a dow restriction, got %q", j.Spec)
			}
		}
	}
	if !foundWeekend {
		t.Fatal("starved source must still be scheduled on its fallback cadence")
	}
}

func TestScheduleRebuildIsAtomic(t *testing.T) {
	s := newTestScheduler(t, &recorderRunner{}, Options{})
	before := len(s.Jobs())

	err := s.AddSource(feed.Source{
		Name:     "custom_feed",
		Path:     "/custom/feed",
		Priority: feed.PriorityAnalysis,
		Window:   feed.WindowFullDay,
	})
	if err != nil {
		t.Fatalf("AddSource returned error: %v", err)
	}

	found := false
	for _, j := range s.Jobs() {
		if j.Source == "custom_feed" {
			found = true
		}
	}
	if !found {
		t.Fatal("added source must appear in the registered jobs")
	}
	if _, ok := s.Plan().Allocation["custom_feed"]; !ok {
		t.Fatal("added source must participate in slot allocation")
	}

	if err := s.RemoveSource("custom_feed"); err != nil {
		t.Fatalf("RemoveSource returned error: %v", err)
	}
	if got := len(s.Jobs()); got != before {
		t.Fatalf("期望恢复 %d 个任务, 实际 %d", before, got)
	}

	if err := s.AddSource(feed.Source{Name: feed.VIX, Path: "/market/vix"}); err == nil {
		t.Fatal("duplicate source must be rejected")
	}
	if err := s.RemoveSource("never_registered"); err == nil {
		t.Fatal("removing an unknown source must fail")
	}
}

func TestTriggerRunsPipelineManually(t *testing.T) {
	runner := &recorderRunner{}
	s := newTestScheduler(t, runner, Options{})

	if err := s.Trigger(context.Background(), string(feed.VIX)); err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}

	runs := runner.recorded()
	if len(runs) != 1 {
		t.Fatalf("期望 1 次运行, 实际 %d", len(runs))
	}
	if runs[0].source != feed.VIX {
		t.Fatalf("expected vix run, got %s", runs[0].source)
	}
	if !runs[0].opts.Manual {
		t.Fatal("manual trigger must set the manual flag")
	}
}

func TestTriggerUnknownSource(t *testing.T) {
	s := newTestScheduler(t, &recorderRunner{}, Options{})

	err := s.Trigger(context.Background(), "bogus_feed")
	var unknown *UnknownSourceError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownSourceError, got %v", err)
	}
	if unknown.Name != "bogus_feed" {
		t.Fatalf("期望错误携带 bogus_feed, 实际 %q", unknown.Name)
	}
	if len(unknown.Valid) != feed.DefaultCatalog().Len() {
		t.Fatalf("expected %d valid names, got %d", feed.DefaultCatalog().Len(), len(unknown.Valid))
	}
}

func TestTriggerErrorsPassThrough(t *testing.T) {
	transport := errors.New("hub unreachable")
	s := newTestScheduler(t, &recorderRunner{err: transport}, Options{})

	if err := s.Trigger(context.Background(), string(feed.CNNFearGreed)); !errors.Is(err, transport) {
		t.Fatalf("expected pipeline error to pass through, got %v", err)
	}
}

func TestScheduledFiringCarriesSkipConstrained(t *testing.T) {
	runner := &recorderRunner{}
	s := newTestScheduler(t, runner, Options{})

	var starved feed.SourceName
	for name, slots := range s.Plan().Allocation {
		if slots == 0 {
			starved = name
		}
	}
	if starved == "" {
		t.Fatal("default catalog must starve at least one flexible source")
	}

	for _, entry := range s.Plan().Entries {
		if entry.Source.Name == starved {
			s.fire(entry)
		}
	}

	runs := runner.recorded()
	if len(runs) == 0 {
		t.Fatal("starved source must still fire on its fallback cadence")
	}
	for _, run := range runs {
		if !run.opts.SkipConstrained {
			t.Fatal("fallback firings must skip constrained platforms")
		}
	}
}

func TestMaintenanceRegistersAtMidnight(t *testing.T) {
	called := make(chan struct{}, 1)
	s := newTestScheduler(t, &recorderRunner{}, Options{
		Maintenance: func(context.Context) { called <- struct{}{} },
	})

	found := false
	for _, j := range s.Jobs() {
		if j.ID == "maintenance_nightly" {
			found = true
			if j.Spec != "0 0 * * *" {
				t.Fatalf("期望 spec \"0 0 * * *\", 实际 %q", j.Spec)
			}
		}
	}
	if !found {
		t.Fatal("maintenance job must be registered")
	}

	s.runMaintenance()
	select {
	case <-called:
	default:
		t.Fatal("maintenance closure was not invoked")
	}
}

func TestHeartbeatReportsPostingStats(t *testing.T) {
	calls := 0
	s := newTestScheduler(t, &recorderRunner{}, Options{
		Stats: func() pipeline.Stats {
			calls++
			return pipeline.Stats{SuccessfulPublishes: 4}
		},
	})

	found := false
	for _, j := range s.Jobs() {
		if j.ID == "heartbeat_hourly" {
			found = true
			if j.Spec != "0 * * * *" {
				t.Fatalf("期望 spec \"0 * * * *\", 实际 %q", j.Spec)
			}
		}
	}
	if !found {
		t.Fatal("heartbeat job must be registered")
	}

	s.heartbeat()
	if calls != 1 {
		t.Fatalf("期望 stats 回调 1 次, 实际 %d", calls)
	}
}

func TestStartExposesNextRuns(t *testing.T) {
	s := newTestScheduler(t, &recorderRunner{}, Options{})
	s.Start(context.Background())
	defer s.Stop()

	for _, j := range s.Jobs() {
		if j.Next.IsZero() {
			t.Fatalf("job %s has no next run after start", j.ID)
		}
	}
}
