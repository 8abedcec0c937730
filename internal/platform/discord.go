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
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"market-pulse-bot/internal/config"
)

// Discord 通过 webhook 推送 embed 消息。webhook 投递不占用受限发布预算,
// 但仍以令牌桶控制对 Discord API 的请求频率。
type Discord struct {
	cfg     config.DiscordConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
	dryRun  bool
}

var _ Publisher = (*Discord)(nil)

// NewDiscord 构造 Discord 发布器。
func NewDiscord(cfg config.DiscordConfig, dryRun bool, logger zerolog.Logger) *Discord {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 1
	}

	return &Discord{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger.With().Str("component", "discord").Logger(),
		dryRun:  dryRun,
	}
}

// Name implements Publisher.
func (d *Discord) Name() string { return NameDiscord }

// Constrained implements Publisher. Webhooks carry no posting cap.
func (d *Discord) Constrained() bool { return false }

// Publish 将 embed 投递到所有 webhook, 任意一个成功即视为发布成功。
func (d *Discord) Publish(ctx context.Context, msg Message) error {
	description := msg.Body
	if description == "" {
		description = msg.Text
	}
	if msg.Title == "" && description == "" {
		return fmt.Errorf("discord: empty message")
	}
	if d.dryRun {
		d.logger.Info().Str("title", msg.Title).Msg("dry-run: discord delivery suppressed")
		return nil
	}
	if len(d.cfg.Webhooks) == 0 {
		return fmt.Errorf("discord: no webhooks configured")
	}

	embed := map[string]any{
		"title":       msg.Title,
		"description": description,
		"color":       msg.Color,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	delivered := 0
	for _, url := range d.cfg.Webhooks {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("discord rate wait: %w", err)
		}
		if err := d.post(ctx, url, embed, msg.MediaPath); err != nil {
			d.logger.Warn().Err(err).Msg("webhook 投递失败")
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return fmt.Errorf("discord: all %d webhooks failed", len(d.cfg.Webhooks))
	}

	d.logger.Info().Int("delivered", delivered).Int("total", len(d.cfg.Webhooks)).Msg("embed 已投递")
	return nil
}

func (d *Discord) post(ctx context.Context, url string, embed map[string]any, mediaPath string) error {
	payload := map[string]any{"embeds": []any{embed}}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var body io.Reader
	contentType := "application/json"
	if mediaPath != "" {
		multipartBody, multipartType, buildErr := buildMultipart(encoded, mediaPath)
		if buildErr != nil {
			// Fall back to a plain embed rather than dropping the post.
			d.logger.Warn().Err(buildErr).Str("path", mediaPath).Msg("attachment skipped")
			body = bytes.NewReader(encoded)
		} else {
			body = multipartBody
			contentType = multipartType
		}
	} else {
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook 响应码异常: %d body %s", resp.StatusCode, string(raw))
	}
	return nil
}

func buildMultipart(payloadJSON []byte, mediaPath string) (io.Reader, string, error) {
	file, err := os.Open(mediaPath)
	if err != nil {
		return nil, "", fmt.Errorf("open attachment: %w", err)
	}
	defer file.Close()

	buf := &bytes.Buffer{}
	form := multipart.NewWriter(buf)
	if err := form.WriteField("payload_json", string(payloadJSON)); err != nil {
		return nil, "", fmt.Errorf("build webhook form: %w", err)
	}
	part, err := form.CreateFormFile("files[0]", filepath.Base(mediaPath))
	if err != nil {
		return nil, "", fmt.Errorf("build webhook form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("read attachment: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("build webhook form: %w", err)
	}
	return buf, form.FormDataContentType(), nil
}
