// Package platform delivers rendered content to posting destinations.
package platform

import "context"

// Platform names as stored in publish records and the posting ledger.
const (
	NameTwitter = "twitter"
	NameDiscord = "discord"
)

// Message 封装一次发布的完整内容。
type Message struct {
	Text      string // plain text body (tweets)
	Title     string // embed title
	Body      string // embed description
	Color     int    // embed colour
	MediaPath string // optional local chart image
}

// Publisher 定义平台发布接口。
type Publisher interface {
	Name() string

	// Constrained reports whether publishes on this platform consume
	// the shared capped posting budget.
	Constrained() bool

	Publish(ctx context.Context, msg Message) error
}
