package compose

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"market-pulse-bot/internal/feed"
)

const (
	colorGreen  = 0x2ECC71
	colorRed    = 0xE74C3C
	colorBlue   = 0x3498DB
	colorOrange = 0xE67E22
)

func builtinFormatters() map[feed.SourceName]Formatter {
	return map[feed.SourceName]Formatter{
		feed.BenzingaNews:      {Tweet: newsTweet, Embed: newsEmbed},
		feed.BenzingaRatings:   {Tweet: ratingsTweet, Embed: ratingsEmbed},
		feed.BenzingaEarnings:  {Tweet: earningsTweet, Embed: earningsEmbed},
		feed.YahooQuote:        {Tweet: quoteTweet, Embed: quoteEmbed},
		feed.TopGainers:        {Tweet: gainersTweet, Embed: gainersEmbed},
		feed.RedditTrending:    {Tweet: trendingTweet, Embed: trendingEmbed},
		feed.CNNFearGreed:      {Tweet: fearGreedTweet, Embed: fearGreedEmbed},
		feed.SectorPerformance: {Tweet: sectorsTweet, Embed: sectorsEmbed},
		feed.EconomicCalendar:  {Tweet: calendarTweet, Embed: calendarEmbed},
		feed.VIX:               {Tweet: vixTweet, Embed: vixEmbed},
		feed.SECInsider:        {Tweet: insiderTweet, Embed: insiderEmbed},
	}
}

func newsTweet(p feed.Payload) string {
	articles := listField(p.Fields(), "articles")
	if len(articles) == 0 {
		return ""
	}
	headline := stringField(articles[0], "title")
	if headline == "" {
		return ""
	}
	text := truncateRunes(headline, 200)
	if extra := len(articles) - 1; extra > 0 {
		text += fmt.Sprintf("\n+%d more stories", extra)
	}
	return text + "\n\n#Stocks #MarketNews"
}

func newsEmbed(p feed.Payload) Embed {
	articles := listField(p.Fields(), "articles")
	lines := make([]string, 0, 3)
	for _, a := range articles {
		if title := stringField(a, "title"); title != "" {
			lines = append(lines, "• "+truncateRunes(title, 120))
		}
		if len(lines) == 3 {
			break
		}
	}
	return Embed{Title: "Market News", Description: strings.Join(lines, "\n"), Color: colorBlue}
}

func ratingsTweet(p feed.Payload) string {
	ratings := listField(p.Fields(), "ratings")
	lines := make([]string, 0, 3)
	for _, r := range ratings {
		ticker := stringField(r, "ticker")
		firm := stringField(r, "firm")
		action := stringField(r, "rating_current")
		if ticker == "" || action == "" {
			continue
		}
		line := fmt.Sprintf("$%s: %s", ticker, action)
		if firm != "" {
			line = fmt.Sprintf("$%s: %s → %s", ticker, firm, action)
		}
		lines = append(lines, line)
		if len(lines) == 3 {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Analyst moves:\n" + strings.Join(lines, "\n") + "\n\n#Stocks #AnalystRatings"
}

func ratingsEmbed(p feed.Payload) Embed {
	tweet := ratingsTweet(p)
	return Embed{Title: "Analyst Ratings", Description: stripTags(tweet), Color: colorOrange}
}

func earningsTweet(p feed.Payload) string {
	earnings := listField(p.Fields(), "earnings")
	tickers := make([]string, 0, 6)
	for _, e := range earnings {
		if t := stringField(e, "ticker"); t != "" {
			tickers = append(tickers, "$"+t)
		}
		if len(tickers) == 6 {
			break
		}
	}
	if len(tickers) == 0 {
		return ""
	}
	return "Earnings on deck: " + strings.Join(tickers, ", ") + "\n\n#Earnings #Stocks"
}

func earningsEmbed(p feed.Payload) Embed {
	return Embed{Title: "Earnings Calendar", Description: stripTags(earningsTweet(p)), Color: colorBlue}
}

func quoteTweet(p feed.Payload) string {
	quotes := listField(p.Fields(), "quotes")
	lines := make([]string, 0, 4)
	for _, q := range quotes {
		ticker := stringField(q, "ticker")
		price, okPrice := numberField(q, "price")
		change, okChange := numberField(q, "change_percent")
		if ticker == "" || !okPrice {
			continue
		}
		line := fmt.Sprintf("$%s %s", ticker, dollars(price))
		if okChange {
			line += " " + signedPercent(change)
		}
		lines = append(lines, line)
		if len(lines) == 4 {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Market check:\n" + strings.Join(lines, "\n")
}

func quoteEmbed(p feed.Payload) Embed {
	return Embed{Title: "Market Snapshot", Description: stripTags(quoteTweet(p)), Color: colorBlue}
}

func gainersTweet(p feed.Payload) string {
	gainers := listField(p.Fields(), "gainers")
	lines := make([]string, 0, 3)
	for _, g := range gainers {
		ticker := stringField(g, "ticker")
		change, ok := numberField(g, "change_percent")
		if ticker == "" || !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("$%s %s", ticker, signedPercent(change)))
		if len(lines) == 3 {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Today's top gainers 🚀\n" + strings.Join(lines, "\n") + "\n\n#Stocks #TopGainers"
}

func gainersEmbed(p feed.Payload) Embed {
	return Embed{Title: "Top Gainers", Description: stripTags(gainersTweet(p)), Color: colorGreen}
}

func trendingTweet(p feed.Payload) string {
	tickers := listField(p.Fields(), "tickers")
	lines := make([]string, 0, 5)
	for _, t := range tickers {
		name := stringField(t, "ticker")
		if name == "" {
			continue
		}
		line := "$" + name
		if mentions, ok := numberField(t, "mentions"); ok {
			line += fmt.Sprintf(" (%s mentions)", wholeNumber(mentions))
		}
		lines = append(lines, line)
		if len(lines) == 5 {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Trending on r/wallstreetbets:\n" + strings.Join(lines, "\n") + "\n\n#Stocks #WSB"
}

func trendingEmbed(p feed.Payload) Embed {
	return Embed{Title: "Reddit Trending", Description: stripTags(trendingTweet(p)), Color: colorOrange}
}

func fearGreedTweet(p feed.Payload) string {
	data := p.Fields()
	score, ok := numberField(data, "score")
	if !ok {
		return ""
	}
	rating := strings.ToUpper(stringField(data, "rating"))
	text := fmt.Sprintf("Market Sentiment: %s (%s)", rating, fixed1(score))
	if prev, ok := numberField(data, "previous_close"); ok {
		switch {
		case score > prev:
			text += fmt.Sprintf("\nUp from %s yesterday", fixed1(prev))
		case score < prev:
			text += fmt.Sprintf("\nDown from %s yesterday", fixed1(prev))
		}
	}
	return text + "\n\n#Stocks #MarketSentiment"
}

func fearGreedEmbed(p feed.Payload) Embed {
	score, _ := numberField(p.Fields(), "score")
	color := colorOrange
	if score >= 50 {
		color = colorGreen
	}
	if score < 25 {
		color = colorRed
	}
	return Embed{Title: "Fear & Greed Index", Description: stripTags(fearGreedTweet(p)), Color: color}
}

func sectorsTweet(p feed.Payload) string {
	data := p.Fields()
	leaders := listField(data, "leaders")
	if len(leaders) == 0 {
		leaders = listField(data, "sectors")
	}
	lines := make([]string, 0, 3)
	for _, s := range leaders {
		name := stringField(s, "sector")
		change, ok := numberField(s, "change_percent")
		if name == "" || !ok {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s", name, signedPercent(change)))
		if len(lines) == 3 {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Sector leaders today:\n" + strings.Join(lines, "\n") + "\n\n#Stocks #Sectors"
}

func sectorsEmbed(p feed.Payload) Embed {
	return Embed{Title: "Sector Performance", Description: stripTags(sectorsTweet(p)), Color: colorBlue}
}

func calendarTweet(p feed.Payload) string {
	events := listField(p.Fields(), "earnings")
	lines := make([]string, 0, 4)
	for _, e := range events {
		ticker := stringField(e, "ticker")
		if ticker == "" {
			continue
		}
		line := "$" + ticker
		if date := stringField(e, "date"); date != "" {
			line += " — " + date
		}
		lines = append(lines, line)
		if len(lines) == 4 {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "This week's earnings calendar:\n" + strings.Join(lines, "\n") + "\n\n#Earnings #Stocks"
}

func calendarEmbed(p feed.Payload) Embed {
	return Embed{Title: "Economic Calendar", Description: stripTags(calendarTweet(p)), Color: colorBlue}
}

func vixTweet(p feed.Payload) string {
	data := p.Fields()
	price, ok := numberField(data, "price")
	if !ok {
		return ""
	}
	text := "VIX " + decimal.NewFromFloat(price).StringFixed(2)
	if change, ok := numberField(data, "change_percent"); ok {
		text += " " + signedPercent(change)
	}
	if sentiment := stringField(data, "sentiment"); sentiment != "" {
		text += "\n" + sentiment
	}
	return text + "\n\n#VIX #Volatility"
}

func vixEmbed(p feed.Payload) Embed {
	change, _ := numberField(p.Fields(), "change_percent")
	color := colorGreen
	if change > 0 {
		// A rising VIX is a falling market.
		color = colorRed
	}
	return Embed{Title: "Volatility Check", Description: stripTags(vixTweet(p)), Color: color}
}

func insiderTweet(p feed.Payload) string {
	filings := listField(p.Fields(), "filings")
	lines := make([]string, 0, 3)
	for _, f := range filings {
		ticker := stringField(f, "ticker")
		kind := stringField(f, "transaction_type")
		if ticker == "" || kind == "" {
			continue
		}
		line := fmt.Sprintf("$%s insider %s", ticker, strings.ToLower(kind))
		if value, ok := numberField(f, "value"); ok {
			line += " " + dollars(value)
		}
		lines = append(lines, line)
		if len(lines) == 3 {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "SEC insider activity:\n" + strings.Join(lines, "\n") + "\n\n#Stocks #SEC"
}

func insiderEmbed(p feed.Payload) Embed {
	return Embed{Title: "Insider Transactions", Description: stripTags(insiderTweet(p)), Color: colorOrange}
}

func listField(m map[string]any, key string) []map[string]any {
	list, ok := m[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func numberField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key].(float64)
	return v, ok
}

// signedPercent renders +1.25% / -0.80% with decimal precision so float
// noise never leaks into posted copy.
func signedPercent(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	s := d.StringFixed(2)
	if d.Sign() >= 0 {
		s = "+" + s
	}
	return s + "%"
}

func fixed1(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1)
}

func wholeNumber(v float64) string {
	return decimal.NewFromFloat(v).Round(0).String()
}

// dollars abbreviates large amounts: $950.00, $1.2K, $3.4M, $1.1B.
func dollars(v float64) string {
	d := decimal.NewFromFloat(v)
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1_000_000_000)):
		return "$" + d.Div(decimal.NewFromInt(1_000_000_000)).StringFixed(1) + "B"
	case abs.GreaterThanOrEqual(decimal.NewFromInt(1_000_000)):
		return "$" + d.Div(decimal.NewFromInt(1_000_000)).StringFixed(1) + "M"
	case abs.GreaterThanOrEqual(decimal.NewFromInt(10_000)):
		return "$" + d.Div(decimal.NewFromInt(1_000)).StringFixed(1) + "K"
	default:
		return "$" + d.StringFixed(2)
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// stripTags drops the trailing hashtag block when tweet copy is reused
// as an embed description.
func stripTags(s string) string {
	if i := strings.LastIndex(s, "\n\n#"); i >= 0 {
		return s[:i]
	}
	return s
}
