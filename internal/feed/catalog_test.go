package feed

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultCatalogShape(t *testing.T) {
	catalog := DefaultCatalog()

	if catalog.Len() != 11 {
		t.Fatalf("期望 11 个数据源, 实际 %d", catalog.Len())
	}

	fixed := 0
	for _, src := range catalog.Sources() {
		if src.Priority == PriorityPremium && !src.Fixed() {
			t.Fatalf("premium source %s must keep contractual clock times", src.Name)
		}
		fixed += len(src.FixedTimes)
	}
	if fixed != 10 {
		t.Fatalf("期望 10 个固定时段, 实际 %d", fixed)
	}

	quote, ok := catalog.Lookup(YahooQuote)
	if !ok {
		t.Fatal("yahoo_quote missing from default catalog")
	}
	if !quote.MarketHoursOnly || quote.Window != WindowMarketHours {
		t.Fatal("yahoo_quote must be restricted to market hours")
	}
}

func TestCatalogFilterKeepsOrder(t *testing.T) {
	filtered, err := DefaultCatalog().Filter([]string{"vix", "cnn_fear_greed"})
	if err != nil {
		t.Fatalf("Filter returned error: %v", err)
	}
	names := filtered.Names()
	if len(names) != 2 || names[0] != CNNFearGreed || names[1] != VIX {
		t.Fatalf("filter must keep catalog order, got %v", names)
	}
}

func TestCatalogFilterRejectsUnknownName(t *testing.T) {
	_, err := DefaultCatalog().Filter([]string{"vix", "mystery_feed"})
	if err == nil {
		t.Fatal("unknown source name must be rejected")
	}
	if !strings.Contains(err.Error(), "mystery_feed") {
		t.Fatalf("error must name the offender, got %v", err)
	}
}

func TestCatalogFilterEmptyKeepsAll(t *testing.T) {
	filtered, err := DefaultCatalog().Filter(nil)
	if err != nil {
		t.Fatalf("Filter returned error: %v", err)
	}
	if filtered.Len() != DefaultCatalog().Len() {
		t.Fatalf("empty filter must keep every source, got %d", filtered.Len())
	}
}

func TestCatalogWithAndWithout(t *testing.T) {
	catalog := DefaultCatalog()

	extended, err := catalog.With(Source{
		Name:     "custom_feed",
		Path:     "/custom",
		Priority: PriorityAnalysis,
		Window:   WindowFullDay,
	})
	if err != nil {
		t.Fatalf("With returned error: %v", err)
	}
	if extended.Len() != catalog.Len()+1 {
		t.Fatalf("期望 %d 个数据源, 实际 %d", catalog.Len()+1, extended.Len())
	}

	if _, err := catalog.With(Source{Name: VIX, Path: "/market/vix"}); err == nil {
		t.Fatal("duplicate name must be rejected")
	}

	reduced, err := extended.Without("custom_feed")
	if err != nil {
		t.Fatalf("Without returned error: %v", err)
	}
	if reduced.Len() != catalog.Len() {
		t.Fatalf("期望恢复 %d 个数据源, 实际 %d", catalog.Len(), reduced.Len())
	}
	if _, err := reduced.Without("custom_feed"); err == nil {
		t.Fatal("removing an absent source must fail")
	}
}

func TestNewCatalogValidation(t *testing.T) {
	if _, err := NewCatalog([]Source{{Name: "", Path: "/x"}}); err == nil {
		t.Fatal("empty name must be rejected")
	}
	if _, err := NewCatalog([]Source{{Name: "a", Path: ""}}); err == nil {
		t.Fatal("empty path must be rejected")
	}
	if _, err := NewCatalog([]Source{
		{Name: "a", Path: "/a"},
		{Name: "a", Path: "/b"},
	}); err == nil {
		t.Fatal("duplicate names must be rejected")
	}
}

func TestWindowBounds(t *testing.T) {
	start, end := WindowMarketHours.Bounds()
	if start.String() != "09:30" || end.String() != "16:00" {
		t.Fatalf("期望 09:30-16:00, 实际 %s-%s", start, end)
	}

	start, end = WindowFullDay.Bounds()
	if start.String() != "06:30" || end.String() != "16:30" {
		t.Fatalf("期望 06:30-16:30, 实际 %s-%s", start, end)
	}
}

func TestClockTimeRoundTrip(t *testing.T) {
	at := ClockTime{Hour: 9, Minute: 30}
	if at.Minutes() != 570 {
		t.Fatalf("期望 570 分钟, 实际 %d", at.Minutes())
	}
	if got := FromMinutes(570); got != at {
		t.Fatalf("round trip mismatch: %v", got)
	}
	if at.String() != "09:30" {
		t.Fatalf("期望 09:30, 实际 %s", at)
	}
}

func TestFiresOn(t *testing.T) {
	weekend := Source{Name: SECInsider, Weekdays: []time.Weekday{time.Saturday, time.Sunday}}
	if weekend.FiresOn(time.Wednesday) {
		t.Fatal("weekend source must not fire midweek")
	}
	if !weekend.FiresOn(time.Saturday) {
		t.Fatal("weekend source must fire on Saturday")
	}

	daily := Source{Name: CNNFearGreed}
	if !daily.FiresOn(time.Monday) || !daily.FiresOn(time.Sunday) {
		t.Fatal("sources without weekday restriction fire every day")
	}
}
