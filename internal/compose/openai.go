package compose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/config"
	"market-pulse-bot/internal/feed"
)

// Generator writes platform copy from a payload. Implementations may
// fail or produce nothing; callers fall back to template copy.
type Generator interface {
	Tweet(ctx context.Context, src feed.Source, p feed.Payload) (string, error)
	Description(ctx context.Context, src feed.Source, p feed.Payload) (string, error)
}

const (
	tweetSystem = "You are a financial market commentator. Write a single punchy tweet under 250 characters. No quotation marks, no preamble."
	embedSystem = "You are a financial market commentator. Write a concise 2-3 sentence summary for a trading community. No preamble."

	// payloadBudget bounds how much raw feed JSON rides along in the prompt.
	payloadBudget = 2000
)

// OpenAIGenerator calls the chat completions API.
type OpenAIGenerator struct {
	cfg    config.OpenAIConfig
	client *http.Client
	logger zerolog.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator constructs a generator from config.
func NewOpenAIGenerator(cfg config.OpenAIConfig, logger zerolog.Logger) *OpenAIGenerator {
	return &OpenAIGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger.With().Str("component", "openai").Logger(),
	}
}

// Tweet produces tweet copy, hashtagged and clamped.
func (g *OpenAIGenerator) Tweet(ctx context.Context, src feed.Source, p feed.Payload) (string, error) {
	prompt := fmt.Sprintf("Summarise this %s data as a tweet:\n%s",
		humanName(src.Name), compactJSON(p.Data))
	text, err := g.complete(ctx, tweetSystem, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"`))
	if text == "" {
		return "", fmt.Errorf("empty completion")
	}
	if !strings.Contains(text, "#") {
		text += "\n\n" + DefaultHashtags
	}
	return ClampTweet(text), nil
}

// Description produces longer-form copy for embed descriptions.
func (g *OpenAIGenerator) Description(ctx context.Context, src feed.Source, p feed.Payload) (string, error) {
	prompt := fmt.Sprintf("Summarise this %s data for a market digest:\n%s",
		humanName(src.Name), compactJSON(p.Data))
	text, err := g.complete(ctx, embedSystem, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty completion")
	}
	return truncateRunes(text, 500), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *OpenAIGenerator) complete(ctx context.Context, system, user string) (string, error) {
	payload := chatRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: 0.7,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("completion failed: status %d body %s", resp.StatusCode, string(raw))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return truncateRunes(string(raw), payloadBudget)
	}
	return truncateRunes(buf.String(), payloadBudget)
}
