package feed

import "encoding/json"

// Payload is the hub response envelope for one fetch.
type Payload struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// contentKeys maps a source to the payload list that must be non-empty
// for a post to be worth making.
var contentKeys = map[SourceName][]string{
	BenzingaNews:      {"articles"},
	BenzingaRatings:   {"ratings"},
	BenzingaEarnings:  {"earnings"},
	YahooQuote:        {"quotes"},
	TopGainers:        {"gainers"},
	RedditTrending:    {"tickers"},
	SectorPerformance: {"sectors", "leaders"},
	EconomicCalendar:  {"earnings"},
	SECInsider:        {"filings"},
}

// HasContent reports whether the payload carries anything postable for
// the given source. Sources without a registered emptiness rule are
// considered non-empty whenever data is present.
func (p Payload) HasContent(name SourceName) bool {
	if len(p.Data) == 0 {
		return false
	}

	var value any
	if err := json.Unmarshal(p.Data, &value); err != nil {
		return false
	}

	// Some feeds return a bare list at the top level.
	if list, ok := value.([]any); ok {
		return len(list) > 0
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return value != nil
	}

	keys, known := contentKeys[name]
	if !known {
		return len(obj) > 0
	}
	for _, key := range keys {
		if list, ok := obj[key].([]any); ok && len(list) > 0 {
			return true
		}
	}
	return false
}

// ChartURL extracts the optional rendered-chart URL some feeds attach.
func (p Payload) ChartURL() string {
	if len(p.Data) == 0 {
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal(p.Data, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"graphics", "chart_url"} {
		if url, ok := obj[key].(string); ok && url != "" {
			return url
		}
	}
	return ""
}

// Fields decodes the payload body into a generic map. Returns nil when
// the body is absent or not an object.
func (p Payload) Fields() map[string]any {
	if len(p.Data) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(p.Data, &obj); err != nil {
		return nil
	}
	return obj
}
