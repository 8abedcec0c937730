package schedule

import (
	"testing"

	"market-pulse-bot/internal/feed"
)

func TestSlotTimesSpansWindowBoundaries(t *testing.T) {
	times := SlotTimes(4, feed.WindowMarketHours)

	if len(times) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(times))
	}
	if times[0].String() != "09:30" {
		t.Fatalf("first slot must sit on the window start, got %s", times[0])
	}
	if times[len(times)-1].String() != "16:00" {
		t.Fatalf("last slot must sit on the window end, got %s", times[len(times)-1])
	}
	for i := 1; i < len(times); i++ {
		if times[i].Minutes() < times[i-1].Minutes() {
			t.Fatalf("slots must be non-decreasing: %v", times)
		}
	}
}

func TestSlotTimesEvenSpread(t *testing.T) {
	times := SlotTimes(3, feed.WindowFullDay)

	want := []string{"06:30", "11:30", "16:30"}
	for i, w := range want {
		if times[i].String() != w {
			t.Fatalf("slot %d: expected %s, got %s", i, w, times[i])
		}
	}
}

func TestSlotTimesSingleSlotAtStart(t *testing.T) {
	times := SlotTimes(1, feed.WindowMarketHours)

	if len(times) != 1 || times[0].String() != "09:30" {
		t.Fatalf("single slot should land on the window start, got %v", times)
	}
}

func TestSlotTimesZeroAndNegative(t *testing.T) {
	if got := SlotTimes(0, feed.WindowFullDay); got != nil {
		t.Fatalf("zero slots should produce nil, got %v", got)
	}
	if got := SlotTimes(-3, feed.WindowFullDay); got != nil {
		t.Fatalf("negative slots should produce nil, got %v", got)
	}
}

func TestSlotTimesManySlotsStayInsideWindow(t *testing.T) {
	times := SlotTimes(17, feed.WindowFullDay)

	start, end := feed.WindowFullDay.Bounds()
	for _, at := range times {
		if at.Minutes() < start.Minutes() || at.Minutes() > end.Minutes() {
			t.Fatalf("slot %s escapes the window %s-%s", at, start, end)
		}
	}
}
