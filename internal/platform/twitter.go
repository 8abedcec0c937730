package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/config"
)

// Twitter 通过 API v2 发布推文。发布受全局限速约束。
type Twitter struct {
	cfg    config.TwitterConfig
	client *http.Client
	logger zerolog.Logger
	dryRun bool
}

var _ Publisher = (*Twitter)(nil)

// NewTwitter 构造 Twitter 发布器。
func NewTwitter(cfg config.TwitterConfig, dryRun bool, logger zerolog.Logger) *Twitter {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.twitter.com"
	}
	if cfg.UploadBase == "" {
		cfg.UploadBase = "https://upload.twitter.com"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	cfg.UploadBase = strings.TrimRight(cfg.UploadBase, "/")

	return &Twitter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger.With().Str("component", "twitter").Logger(),
		dryRun: dryRun,
	}
}

// Name implements Publisher.
func (t *Twitter) Name() string { return NameTwitter }

// Constrained implements Publisher. Twitter consumes the capped budget.
func (t *Twitter) Constrained() bool { return true }

// Publish 调用 POST /2/tweets 发布文本, 可附带已上传的媒体。
func (t *Twitter) Publish(ctx context.Context, msg Message) error {
	if msg.Text == "" {
		return fmt.Errorf("twitter: empty message text")
	}
	if t.dryRun {
		t.logger.Info().Str("text", msg.Text).Msg("dry-run: tweet suppressed")
		return nil
	}
	if t.cfg.BearerToken == "" {
		return fmt.Errorf("twitter: bearer token not configured")
	}

	payload := map[string]any{"text": msg.Text}
	if msg.MediaPath != "" {
		mediaID, err := t.uploadMedia(ctx, msg.MediaPath)
		if err != nil {
			// A broken chart should not cost us the posting slot.
			t.logger.Warn().Err(err).Str("path", msg.MediaPath).Msg("media upload failed, tweeting without attachment")
		} else {
			payload["media"] = map[string]any{"media_ids": []string{mediaID}}
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal tweet payload: %w", err)
	}

	url := t.cfg.APIBase + "/2/tweets"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create tweet request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.BearerToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send tweet request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("twitter 响应码异常: %d body %s", resp.StatusCode, string(raw))
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Data.ID != "" {
		t.logger.Info().Str("tweet_id", result.Data.ID).Msg("推文已发布")
	} else {
		t.logger.Info().Msg("推文已发布")
	}
	return nil
}

func (t *Twitter) uploadMedia(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)
	part, err := form.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("build media form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("build media form: %w", err)
	}

	url := t.cfg.UploadBase + "/1.1/media/upload.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, buf)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.cfg.BearerToken)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("media upload status %d", resp.StatusCode)
	}

	var result struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.MediaIDString == "" {
		return "", fmt.Errorf("media upload returned no id")
	}
	return result.MediaIDString, nil
}
