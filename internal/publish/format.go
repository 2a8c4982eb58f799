package publish

import (
	"fmt"
	"strings"
	"time"

	"impactwatch/internal/plays"
	"impactwatch/internal/queue"
	"impactwatch/internal/transport"
)

const (
	HeadlineMarquee = "⭐ MARQUEE MOMENT!"
	HeadlineHomeRun = "🏠 HOME RUN!"

	maxDescription = 100
)

// truncate shortens s to at most n runes, ending in "..." when cut.
func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

// FormatText renders the plain-text post:
//
//	⭐ MARQUEE MOMENT!
//
//	<description>
//
//	📊 Impact: 41.0% WP change
//	⚾ ATL 2 - 3 NYM (B9)
//
//	#Braves #Mets
func FormatText(headline string, e plays.RawEvent) string {
	var b strings.Builder
	b.WriteString(headline)
	b.WriteString("\n\n")
	if d := truncate(e.Description, maxDescription); d != "" {
		b.WriteString(d)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "📊 Impact: %.1f%% WP change\n", e.Impact*100)
	fmt.Fprintf(&b, "⚾ %s (%s)\n\n", e.Scoreline(), e.InningTag())
	b.WriteString(strings.Join(plays.Hashtags(e.Game), " "))
	return b.String()
}

// BuildPost renders an item for every channel.
func BuildPost(headline string, it *queue.Item, now time.Time) transport.Post {
	e := it.Event
	title := e.Event
	if title == "" {
		title = "High-Impact Play"
	}
	ts := e.StartTime
	if ts.IsZero() {
		ts = now
	}
	p := transport.Post{
		Title:       "🎯 " + title,
		Description: e.Description,
		Text:        FormatText(headline, e),
		Fields: []transport.Field{
			{Name: "⚾ Game", Value: e.Game.Matchup(), Inline: true},
			{Name: "📊 Impact", Value: fmt.Sprintf("%.1f%% WP Change", e.Impact*100), Inline: true},
			{Name: "⏰ Inning", Value: e.InningTag(), Inline: true},
			{Name: "🔢 Score", Value: e.Scoreline(), Inline: true},
			{Name: "🏏 Batter", Value: e.Batter, Inline: true},
			{Name: "⚾ Pitcher", Value: e.Pitcher, Inline: true},
		},
		Timestamp: ts,
	}
	if it.Artifact != nil && it.Artifact.Path != "" {
		a := *it.Artifact
		p.Artifact = &a
	}
	return p
}
