package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/config"
)

// Fetcher retrieves the current payload for one source.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) (Payload, error)
}

const (
	// Hub tokens are issued for 30 days; re-login once less than an
	// hour of validity remains so a scheduled run never races expiry.
	tokenLifetime      = 30 * 24 * time.Hour
	tokenRefreshMargin = time.Hour
)

// Client talks to the data hub REST API using a bearer token obtained
// from the hub's form login endpoint.
type Client struct {
	cfg    config.HubConfig
	client *http.Client
	logger zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

var _ Fetcher = (*Client)(nil)

// NewClient constructs a hub API client.
func NewClient(cfg config.HubConfig, logger zerolog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger.With().Str("component", "hub_client").Logger(),
	}
}

// Fetch downloads the payload for src, retrying transient failures.
func (c *Client) Fetch(ctx context.Context, src Source) (Payload, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Payload{}, ctx.Err()
			case <-time.After(c.cfg.RetryBackoff * time.Duration(attempt)):
			}
			c.logger.Warn().
				Str("source", string(src.Name)).
				Int("attempt", attempt).
				Msg("retrying hub fetch")
		}

		payload, retryable, err := c.fetchOnce(ctx, src)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return Payload{}, fmt.Errorf("fetch %s: %w", src.Name, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, src Source) (Payload, bool, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return Payload{}, true, err
	}

	payload, status, err := c.get(ctx, src.Path, token)
	if err != nil {
		return Payload{}, true, err
	}
	if status == http.StatusUnauthorized {
		// Hub revoked the token early. Log in again once before surfacing.
		c.invalidateToken()
		if token, err = c.ensureToken(ctx); err != nil {
			return Payload{}, true, err
		}
		if payload, status, err = c.get(ctx, src.Path, token); err != nil {
			return Payload{}, true, err
		}
	}
	if status != http.StatusOK {
		return Payload{}, status >= http.StatusInternalServerError,
			fmt.Errorf("hub returned status %d for %s", status, src.Path)
	}
	return payload, false, nil
}

func (c *Client) get(ctx context.Context, path, token string) (Payload, int, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Payload{}, 0, fmt.Errorf("build hub request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Payload{}, 0, fmt.Errorf("hub request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Payload{}, resp.StatusCode, nil
	}

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Payload{}, resp.StatusCode, fmt.Errorf("decode hub payload: %w", err)
	}
	return payload, resp.StatusCode, nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Until(c.tokenExpiry) > tokenRefreshMargin {
		return c.token, nil
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.tokenExpiry = time.Now().Add(tokenLifetime)
	c.logger.Info().Time("expires", c.tokenExpiry).Msg("authenticated with data hub")
	return token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func (c *Client) login(ctx context.Context) (string, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	if err := form.WriteField("username", c.cfg.Username); err != nil {
		return "", fmt.Errorf("encode login form: %w", err)
	}
	if err := form.WriteField("password", c.cfg.Password); err != nil {
		return "", fmt.Errorf("encode login form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("encode login form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL(), body)
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("hub login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("hub login failed: status %d body %s", resp.StatusCode, string(raw))
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if decoded.AccessToken == "" {
		return "", fmt.Errorf("hub login returned an empty token")
	}
	return decoded.AccessToken, nil
}

// loginURL derives the login endpoint from the data base URL, mirroring
// the hub's path layout (/api/v1/data -> /api/v1/login).
func (c *Client) loginURL() string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if replaced := strings.Replace(base, "/api/v1/data", "/api/v1/login", 1); replaced != base {
		return replaced
	}
	return base + "/login"
}
