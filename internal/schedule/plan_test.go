package schedule

import (
	"testing"

	"market-pulse-bot/internal/feed"
)

func TestBuildPlanFallbackCadenceSkipsConstrained(t *testing.T) {
	times := make([]feed.ClockTime, 17)
	for i := range times {
		times[i] = feed.ClockTime{Hour: 7, Minute: i}
	}
	sources := []feed.Source{
		fixedSource("premium", feed.PriorityPremium, times...),
		flexSource("starved", feed.PriorityRecap),
	}

	plan := BuildPlan(sources, 17, noopLogger())

	fallback := 0
	for _, e := range plan.Entries {
		if e.Source.Name == "starved" {
			if !e.SkipConstrained {
				t.Fatal("starved source entries must skip constrained platforms")
			}
			fallback++
		} else if e.SkipConstrained {
			t.Fatal("funded entries must not be marked skip-constrained")
		}
	}
	if fallback != FallbackSlots {
		t.Fatalf("expected %d fallback entries, got %d", FallbackSlots, fallback)
	}
	if got := plan.CappedSlots(); got != 17 {
		t.Fatalf("capped entries should equal the cap, got %d", got)
	}
}

func TestBuildPlanEntriesSortedByTime(t *testing.T) {
	plan := BuildPlan(feed.DefaultCatalog().Sources(), 17, noopLogger())

	for i := 1; i < len(plan.Entries); i++ {
		if plan.Entries[i].Time.Minutes() < plan.Entries[i-1].Time.Minutes() {
			t.Fatalf("entries out of order at %d: %s before %s",
				i, plan.Entries[i].Time, plan.Entries[i-1].Time)
		}
	}
}

func TestBuildPlanDefaultCatalogRespectsCap(t *testing.T) {
	plan := BuildPlan(feed.DefaultCatalog().Sources(), 17, noopLogger())

	if got := plan.CappedSlots(); got > 17 {
		t.Fatalf("capped slots %d exceed the daily cap", got)
	}
	if plan.FixedDemand != 10 {
		t.Fatalf("default catalog reserves 10 fixed slots, got %d", plan.FixedDemand)
	}
}

func TestBuildPlanFixedTimesPreserved(t *testing.T) {
	plan := BuildPlan(feed.DefaultCatalog().Sources(), 17, noopLogger())

	var earnings []string
	for _, e := range plan.Entries {
		if e.Source.Name == feed.BenzingaEarnings {
			earnings = append(earnings, e.Time.String())
		}
	}
	if len(earnings) != 1 || earnings[0] != "07:30" {
		t.Fatalf("earnings must keep its contractual 07:30 slot, got %v", earnings)
	}
}
