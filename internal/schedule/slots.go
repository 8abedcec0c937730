package schedule

import (
	"math"

	"market-pulse-bot/internal/feed"
)

// SlotTimes spreads n posting times evenly across the window, inclusive
// of both boundaries, rounded to whole minutes. A single slot lands on
// the window start.
func SlotTimes(n int, window feed.Window) []feed.ClockTime {
	if n <= 0 {
		return nil
	}

	start, end := window.Bounds()
	if n == 1 {
		return []feed.ClockTime{start}
	}

	startMin := start.Minutes()
	span := end.Minutes() - startMin
	times := make([]feed.ClockTime, 0, n)
	for i := 0; i < n; i++ {
		offset := int(math.Round(float64(i) * float64(span) / float64(n-1)))
		times = append(times, feed.FromMinutes(startMin+offset))
	}
	return times
}
