package feed

import (
	"encoding/json"
	"testing"
)

func rawPayload(body string) Payload {
	return Payload{Success: true, Data: json.RawMessage(body)}
}

func TestHasContentListSources(t *testing.T) {
	cases := []struct {
		name    SourceName
		body    string
		want    bool
		comment string
	}{
		{BenzingaNews, `{"articles":[{"title":"Fed holds rates"}]}`, true, "populated list"},
		{BenzingaNews, `{"articles":[]}`, false, "empty list"},
		{BenzingaNews, `{"count":0}`, false, "missing list key"},
		{SectorPerformance, `{"leaders":[{"sector":"tech"}]}`, true, "alternate key"},
		{SectorPerformance, `{"sectors":[],"leaders":[]}`, false, "both keys empty"},
		{RedditTrending, `["TSLA","NVDA"]`, true, "bare top-level list"},
		{RedditTrending, `[]`, false, "bare empty list"},
	}
	for _, tc := range cases {
		if got := rawPayload(tc.body).HasContent(tc.name); got != tc.want {
			t.Fatalf("%s (%s): 期望 %v, 实际 %v", tc.name, tc.comment, tc.want, got)
		}
	}
}

func TestHasContentUnknownSource(t *testing.T) {
	if !rawPayload(`{"score":72}`).HasContent(CNNFearGreed) {
		t.Fatal("sources without an emptiness rule are non-empty when data is present")
	}
	if rawPayload(`{}`).HasContent(CNNFearGreed) {
		t.Fatal("an empty object carries nothing to post")
	}
	if (Payload{Success: true}).HasContent(CNNFearGreed) {
		t.Fatal("absent data is empty")
	}
	if rawPayload(`not json`).HasContent(CNNFearGreed) {
		t.Fatal("unparseable data is empty")
	}
}

func TestChartURL(t *testing.T) {
	if got := rawPayload(`{"graphics":"https://cdn/chart.png"}`).ChartURL(); got != "https://cdn/chart.png" {
		t.Fatalf("期望 graphics 链接, 实际 %q", got)
	}
	if got := rawPayload(`{"chart_url":"https://cdn/alt.png"}`).ChartURL(); got != "https://cdn/alt.png" {
		t.Fatalf("期望 chart_url 链接, 实际 %q", got)
	}
	if got := rawPayload(`{"score":1}`).ChartURL(); got != "" {
		t.Fatalf("no chart key must yield empty, got %q", got)
	}
}

func TestFields(t *testing.T) {
	fields := rawPayload(`{"score":72.4,"rating":"greed"}`).Fields()
	if fields["rating"] != "greed" {
		t.Fatalf("期望 rating greed, 实际 %v", fields["rating"])
	}
	if rawPayload(`[1,2]`).Fields() != nil {
		t.Fatal("non-object data must yield nil fields")
	}
	if (Payload{}).Fields() != nil {
		t.Fatal("absent data must yield nil fields")
	}
}
