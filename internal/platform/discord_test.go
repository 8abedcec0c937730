package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"market-pulse-bot/internal/config"
)

func discordConfig(webhooks ...string) config.DiscordConfig {
	return config.DiscordConfig{
		Enabled:        true,
		Webhooks:       webhooks,
		RatePerSecond:  100, // keep tests fast
		RequestTimeout: time.Second,
	}
}

func TestDiscordPublishDeliversEmbed(t *testing.T) {
	var gotBody struct {
		Embeds []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Color       int    `json:"color"`
			Timestamp   string `json:"timestamp"`
		} `json:"embeds"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := NewDiscord(discordConfig(server.URL), false, noopLogger())
	err := d.Publish(context.Background(), Message{
		Title: "Top Gainers",
		Body:  "$AMD +12.50%",
		Color: 0x2ECC71,
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if len(gotBody.Embeds) != 1 {
		t.Fatalf("期望 1 个 embed, 实际 %d", len(gotBody.Embeds))
	}
	embed := gotBody.Embeds[0]
	if embed.Title != "Top Gainers" || embed.Description != "$AMD +12.50%" {
		t.Fatalf("unexpected embed: %+v", embed)
	}
	if embed.Color != 0x2ECC71 {
		t.Fatalf("期望颜色 %#x, 实际 %#x", 0x2ECC71, embed.Color)
	}
	if embed.Timestamp == "" {
		t.Fatal("embed should carry a timestamp")
	}
}

func TestDiscordFallsBackToTextDescription(t *testing.T) {
	var gotBody struct {
		Embeds []struct {
			Description string `json:"description"`
		} `json:"embeds"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := NewDiscord(discordConfig(server.URL), false, noopLogger())
	if err := d.Publish(context.Background(), Message{Text: "plain tweet copy"}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if gotBody.Embeds[0].Description != "plain tweet copy" {
		t.Fatalf("expected text fallback in description, got %+v", gotBody.Embeds)
	}
}

func TestDiscordPartialWebhookFailureStillSucceeds(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer good.Close()

	d := NewDiscord(discordConfig(bad.URL, good.URL), false, noopLogger())
	if err := d.Publish(context.Background(), Message{Title: "t", Body: "b"}); err != nil {
		t.Fatalf("一个 webhook 成功即应视为发布成功, got %v", err)
	}
}

func TestDiscordAllWebhooksFailedIsError(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer bad.Close()

	d := NewDiscord(discordConfig(bad.URL, bad.URL), false, noopLogger())
	if err := d.Publish(context.Background(), Message{Title: "t", Body: "b"}); err == nil {
		t.Fatal("all webhooks failing must surface as an error")
	}
}

func TestDiscordDryRunSkipsNetwork(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	d := NewDiscord(discordConfig(server.URL), true, noopLogger())
	if err := d.Publish(context.Background(), Message{Title: "t", Body: "b"}); err != nil {
		t.Fatalf("dry-run publish returned error: %v", err)
	}
	if calls != 0 {
		t.Fatalf("dry-run 不应发起网络请求, 实际 %d 次", calls)
	}
}

func TestDiscordRejectsEmptyMessage(t *testing.T) {
	d := NewDiscord(discordConfig("http://unused"), false, noopLogger())
	if err := d.Publish(context.Background(), Message{}); err == nil {
		t.Fatal("empty message must be rejected")
	}
}
