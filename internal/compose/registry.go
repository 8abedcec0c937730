// Package compose renders feed payloads into platform-ready copy.
package compose

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"market-pulse-bot/internal/feed"
)

const (
	// MaxTweetRunes is the hard upper bound applied to tweet copy.
	MaxTweetRunes = 280

	// DefaultHashtags are appended to copy that carries no tags of its own.
	DefaultHashtags = "#Stocks #Trading"
)

// Embed is rich content for webhook-style platforms.
type Embed struct {
	Title       string
	Description string
	Color       int
}

// Formatter renders deterministic template copy for one source.
type Formatter struct {
	Tweet func(p feed.Payload) string
	Embed func(p feed.Payload) Embed
}

// Registry maps sources to their formatters. Every active source must
// have an entry; Validate enforces this at startup so a misconfigured
// source fails fast instead of silently posting generic copy forever.
type Registry struct {
	formatters map[feed.SourceName]Formatter
	logger     zerolog.Logger
}

// NewRegistry builds the registry with all built-in formatters.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		formatters: builtinFormatters(),
		logger:     logger.With().Str("component", "compose").Logger(),
	}
}

// Validate checks that each named source has a registered formatter.
func (r *Registry) Validate(names []feed.SourceName) error {
	var missing []string
	for _, name := range names {
		if _, ok := r.formatters[name]; !ok {
			missing = append(missing, string(name))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("no formatter registered for: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Tweet renders template tweet copy, clamped and hashtagged.
func (r *Registry) Tweet(name feed.SourceName, p feed.Payload) string {
	text := ""
	if f, ok := r.formatters[name]; ok && f.Tweet != nil {
		text = strings.TrimSpace(f.Tweet(p))
	}
	if text == "" {
		text = genericLine(name)
	}
	if !strings.Contains(text, "#") {
		text += "\n\n" + DefaultHashtags
	}
	return ClampTweet(text)
}

// EmbedFor renders rich template copy for embed-style platforms. An
// embed without a description has nothing to post, so it falls back to
// the generic line.
func (r *Registry) EmbedFor(name feed.SourceName, p feed.Payload) Embed {
	if f, ok := r.formatters[name]; ok && f.Embed != nil {
		embed := f.Embed(p)
		if embed.Description != "" {
			if embed.Color == 0 {
				embed.Color = colorBlue
			}
			return embed
		}
	}
	return Embed{
		Title:       humanName(name),
		Description: genericLine(name),
		Color:       colorBlue,
	}
}

// ClampTweet enforces the tweet length bound on rune count, ellipsising
// overlong copy.
func ClampTweet(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxTweetRunes {
		return s
	}
	return string(runes[:MaxTweetRunes-1]) + "…"
}

func genericLine(name feed.SourceName) string {
	return fmt.Sprintf("Market update: %s", humanName(name))
}

func humanName(name feed.SourceName) string {
	return strings.ReplaceAll(string(name), "_", " ")
}
