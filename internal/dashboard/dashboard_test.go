package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impactwatch/internal/dedup"
	"impactwatch/internal/eventbus"
	"impactwatch/internal/plays"
	"impactwatch/internal/queue"
	rtsup "impactwatch/internal/runtime/supervisor"
	"impactwatch/internal/status"
	"impactwatch/internal/storage"
	"impactwatch/pkg/logx"
)

func newDeps(t *testing.T) (Deps, *eventbus.MemBus) {
	t.Helper()
	q := queue.New(queue.Config{MaxSize: 10}, nil)
	require.NoError(t, q.Enqueue(plays.RawEvent{
		Game:       plays.GameRef{GamePK: 745001, HomeAbbr: "NYM", AwayAbbr: "ATL"},
		AtBatIndex: 62, Inning: 9, HalfInning: "bottom",
		Event: "Home Run", Impact: 0.42,
	}))
	mon := status.NewMonitor(q, dedup.NewSeenSet(100))
	bus := eventbus.New()
	return Deps{
		Monitor: mon,
		Bus:     bus,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "impactwatch_queue_length 1\n")
		}),
		Recent: func(ctx context.Context, n int) ([]storage.PublishRecord, error) {
			return []storage.PublishRecord{{EventID: "745001_40_6_top", Title: "Home Run - ATL @ NYM", Channels: []string{"discord"}, Artifact: true}}, nil
		},
	}, bus
}

func do(t *testing.T, h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusAPI(t *testing.T) {
	t.Parallel()
	d, _ := newDeps(t)
	rec := do(t, NewHandler(d, ""), http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap status.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.Active)
	assert.Equal(t, "running", snap.Status)
	assert.Equal(t, 1, snap.QueueLength)
	require.Len(t, snap.Queue, 1)
	assert.Equal(t, "ATL @ NYM", snap.Queue[0].Matchup)
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	d, bus := newDeps(t)
	var toggles []bool
	d.OnToggle = func(_ context.Context, active bool) { toggles = append(toggles, active) }
	events, unsub := bus.Subscribe(4)
	defer unsub()
	h := NewHandler(d, "")

	rec := do(t, h, http.MethodPost, "/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"active":false,"status":"stopped"}`, rec.Body.String())
	assert.False(t, d.Monitor.Active())

	select {
	case e := <-events:
		assert.Equal(t, eventbus.MonitorStopped, e.Type)
	case <-time.After(time.Second):
		t.Fatal("no monitor.stopped event")
	}

	// Stopping twice is not a change and emits nothing.
	do(t, h, http.MethodPost, "/stop", nil)
	select {
	case e := <-events:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}

	rec = do(t, h, http.MethodPost, "/start", map[string]string{"Accept": "text/html"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	assert.True(t, d.Monitor.Active())

	rec = do(t, h, http.MethodGet, "/stop", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	// Only real state changes reach the hook.
	assert.Equal(t, []bool{false, true}, toggles)
}

func TestAuth(t *testing.T) {
	t.Parallel()
	d, _ := newDeps(t)
	h := NewHandler(d, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/status?token=nope", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status?token=s3cret", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/status", map[string]string{"Authorization": "Bearer s3cret"}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/metrics", nil).Code)

	// Probes stay open so platform health checks work.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", nil).Code)

	rec := do(t, h, http.MethodPost, "/stop?token=s3cret", map[string]string{"Accept": "text/html"})
	assert.Equal(t, "/?token=s3cret", rec.Header().Get("Location"))
}

func TestHealth(t *testing.T) {
	t.Parallel()
	d, _ := newDeps(t)
	d.Loops = func() rtsup.Snapshot {
		return rtsup.Snapshot{FirstError: "poll: boom", Loops: []rtsup.LoopStats{{Name: "poll", Active: true}}}
	}
	rec := do(t, NewHandler(d, ""), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var h Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "poll: boom", h.FirstError)
	assert.True(t, h.Active)
	require.Len(t, h.Loops, 1)
}

func TestIndexAndMetrics(t *testing.T) {
	t.Parallel()
	d, _ := newDeps(t)
	h := NewHandler(d, "")

	rec := do(t, h, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "MLB Impact Monitor")
	assert.Contains(t, body, "ATL @ NYM")
	assert.Contains(t, body, "42.0%")
	assert.Contains(t, body, "Home Run - ATL @ NYM")

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/nope", nil).Code)

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	assert.Contains(t, rec.Body.String(), "impactwatch_queue_length 1")

	rec = do(t, h, http.MethodGet, "/api/published", nil)
	assert.Contains(t, rec.Body.String(), `"event_id": "745001_40_6_top"`)
}

func TestCheckBind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cfg  Config
		want error
	}{
		{Config{Addr: "127.0.0.1:8080"}, nil},
		{Config{Addr: "localhost:8080"}, nil},
		{Config{Addr: "[::1]:8080"}, nil},
		{Config{Addr: "0.0.0.0:8080"}, ErrInsecureBind},
		{Config{Addr: ":8080"}, ErrInsecureBind},
		{Config{Addr: ":8080", Token: "t"}, nil},
		{Config{Addr: ":8080", AllowInsecure: true}, nil},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, CheckBind(tt.cfg), tt.want, tt.cfg.Addr)
	}
}

func waitForAddr(t *testing.T, s *Service) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != "" {
			return a
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("dashboard did not start")
	return ""
}

func TestServiceLifecycle(t *testing.T) {
	t.Parallel()
	d, _ := newDeps(t)
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, d, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	addr := waitForAddr(t, s)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", strings.TrimSpace(string(b)))

	s.Reconfigure(ctx, Config{Enabled: false})
	assert.Nil(t, s.Supervisor())
	assert.Empty(t, s.Addr())
}
