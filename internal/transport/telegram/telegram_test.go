package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"impactwatch/internal/plays"
	"impactwatch/internal/transport"
)

type fakeAPI struct {
	mu      sync.Mutex
	methods []string
	fail    bool
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	f.mu.Lock()
	f.methods = append(f.methods, method)
	fail := f.fail
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
		return
	}
	_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
}

func (f *fakeAPI) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.methods...)
}

func newTestChannel(t *testing.T, api *fakeAPI) *Channel {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	ch, err := New(Config{Token: "123:abc", ChatID: 42, APIURL: srv.URL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ch
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "x"}); !errors.Is(err, transport.ErrNotConfigured) {
		t.Fatalf("New(no chat) err = %v, want ErrNotConfigured", err)
	}
	if _, err := New(Config{ChatID: 1}); !errors.Is(err, transport.ErrNotConfigured) {
		t.Fatalf("New(no token) err = %v, want ErrNotConfigured", err)
	}
}

func TestPostTextOnly(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	ch := newTestChannel(t, api)
	if err := ch.Post(context.Background(), transport.Post{Text: "🚨 IMPACT PLAY"}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got := api.calls(); len(got) != 1 || got[0] != "sendMessage" {
		t.Fatalf("calls = %v, want [sendMessage]", got)
	}
}

func TestPostAnimation(t *testing.T) {
	t.Parallel()
	gif := filepath.Join(t.TempDir(), "clip.gif")
	if err := os.WriteFile(gif, []byte("GIF89a"), 0o600); err != nil {
		t.Fatal(err)
	}
	api := &fakeAPI{}
	ch := newTestChannel(t, api)
	err := ch.Post(context.Background(), transport.Post{
		Text:     "short caption",
		Artifact: &plays.Artifact{Path: gif},
	})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if got := api.calls(); len(got) != 1 || got[0] != "sendAnimation" {
		t.Fatalf("calls = %v, want [sendAnimation]", got)
	}
}

func TestPostAPIErrorBecomesStatusError(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{fail: true}
	ch := newTestChannel(t, api)
	err := ch.SendText(context.Background(), "hello")
	var se *transport.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *transport.StatusError", err)
	}
	if se.Code != 400 {
		t.Fatalf("code = %d, want 400", se.Code)
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("a", 30) + "\n" + strings.Repeat("b", 30)
	got := splitText(long, 40)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2 (%q)", len(got), got)
	}
	if got[0] != strings.Repeat("a", 30) || got[1] != strings.Repeat("b", 30) {
		t.Fatalf("unexpected chunks %q", got)
	}
	if got := splitText("short", 40); len(got) != 1 || got[0] != "short" {
		t.Fatalf("splitText(short) = %q", got)
	}
}

func TestSplitCaption(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", captionLimit) + "\n" + "tail"
	caption, rest := splitCaption(text)
	if len([]rune(caption)) > captionLimit {
		t.Fatalf("caption too long: %d", len([]rune(caption)))
	}
	if rest != "tail" {
		t.Fatalf("rest = %q, want tail", rest)
	}
}
