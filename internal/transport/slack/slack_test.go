package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impactwatch/internal/plays"
	"impactwatch/internal/transport"
)

func TestNewRequiresWebhook(t *testing.T) {
	t.Parallel()
	_, err := New(Config{WebhookURL: "  "})
	require.ErrorIs(t, err, transport.ErrNotConfigured)
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()
	p := transport.Post{
		Title:       "🎯 Walk-off Single",
		Description: "Ozzie Albies singles on a line drive.",
		Footer:      "Enhanced MLB Impact Tracker",
		Fields: []transport.Field{
			{Name: "Score", Value: "NYM 3 - 4 ATL", Inline: true},
			{Name: "Empty", Value: ""},
		},
		Timestamp: time.Unix(1750000000, 0),
		Artifact:  &plays.Artifact{Path: "/tmp/x.gif"},
	}
	msg := buildMessage(Config{Username: "bot", IconEmoji: ":baseball:"}, p)

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "#FF6B35", att.Color)
	assert.Equal(t, json.Number("1750000000"), att.Ts)
	assert.Equal(t, "🎯 Walk-off Single: Ozzie Albies singles on a line drive.", att.Fallback)
	require.Len(t, att.Fields, 1)
	assert.True(t, att.Fields[0].Short)
	assert.Contains(t, att.Footer, "clip posted to Discord")
}

func TestPostDeliversWebhook(t *testing.T) {
	t.Parallel()
	var got slack.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	ch, err := New(Config{WebhookURL: srv.URL})
	require.NoError(t, err)
	require.NoError(t, ch.Post(context.Background(), transport.Post{Title: "t", Color: 0x00FF00}))
	assert.Equal(t, "MLB Impact Tracker", got.Username)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, "#00FF00", got.Attachments[0].Color)
}

func TestPostReportsHTTPFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	ch, err := New(Config{WebhookURL: srv.URL})
	require.NoError(t, err)
	require.Error(t, ch.Post(context.Background(), transport.Post{Title: "t"}))
}
