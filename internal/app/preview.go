package app

import (
	"fmt"
	"os"
	"unicode/utf8"

	"market-pulse-bot/internal/compose"
	"market-pulse-bot/internal/feed"
)

// Preview 使用本地 JSON 数据为一个数据源渲染发布文案，不访问数据库也不实际发布。
func (a *App) Preview(source, payloadPath string) error {
	catalog := feed.DefaultCatalog()
	src, ok := catalog.Lookup(feed.SourceName(source))
	if !ok {
		return fmt.Errorf("unknown source %q (available: %s)", source, sourceList(catalog.Names()))
	}

	raw, err := os.ReadFile(payloadPath)
	if err != nil {
		return err
	}

	payload := feed.Payload{Success: true, Data: raw}
	if !payload.HasContent(src.Name) {
		return fmt.Errorf("payload carries no postable content for %s", src.Name)
	}

	registry := compose.NewRegistry(a.Logger)
	tweet := registry.Tweet(src.Name, payload)
	embed := registry.EmbedFor(src.Name, payload)

	fmt.Fprintf(os.Stdout, "tweet (%d/280 chars):\n%s\n\n", utf8.RuneCountInString(tweet), tweet)
	fmt.Fprintf(os.Stdout, "embed title: %s\n%s\n", embed.Title, embed.Description)
	if url := payload.ChartURL(); url != "" {
		fmt.Fprintf(os.Stdout, "\nchart: %s\n", url)
	}
	return nil
}
