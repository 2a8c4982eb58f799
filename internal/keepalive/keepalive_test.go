package keepalive

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"impactwatch/pkg/logx"
)

func TestPing(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPinger(srv.URL+"/", time.Second, logx.Nop())
	if p.Target() != srv.URL+"/health" {
		t.Fatalf("target = %q", p.Target())
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d", hits.Load())
	}
}

func TestPingErrorStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	if err := NewPinger(srv.URL, time.Second, logx.Nop()).Ping(context.Background()); err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v", err)
	}
}

func TestPingSkips(t *testing.T) {
	t.Parallel()
	if p := NewPinger("  ", 0, logx.Nop()); p != nil {
		t.Fatal("empty site url should give a nil pinger")
	}
	var nilPinger *Pinger
	if err := nilPinger.Ping(context.Background()); err != nil {
		t.Fatalf("nil Ping: %v", err)
	}
	// Nothing listens here; a skipped ping must not dial.
	if err := NewPinger("http://localhost:1", time.Second, logx.Nop()).Ping(context.Background()); err != nil {
		t.Fatalf("localhost Ping: %v", err)
	}
}

func listenNotify(t *testing.T) *net.UnixConn {
	t.Helper()
	dir, err := os.MkdirTemp("", "sd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Skipf("unixgram unavailable: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func read(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read notify socket: %v", err)
	}
	return string(buf[:n])
}

func TestNotifier(t *testing.T) {
	conn := listenNotify(t)
	n := NewNotifier(logx.Nop())

	if !n.Ready() {
		t.Fatal("Ready should report sent")
	}
	if got := read(t, conn); got != "READY=1" {
		t.Fatalf("got %q", got)
	}
	n.Stopping()
	if got := read(t, conn); got != "STOPPING=1" {
		t.Fatalf("got %q", got)
	}
}

func TestNotifierOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	n := NewNotifier(logx.Nop())
	if n.Ready() {
		t.Fatal("Ready should be a no-op without NOTIFY_SOCKET")
	}
	done := make(chan struct{})
	go func() {
		n.Watchdog(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog should return when disabled")
	}
}

func TestWatchdog(t *testing.T) {
	conn := listenNotify(t)
	t.Setenv("WATCHDOG_USEC", "100000")
	t.Setenv("WATCHDOG_PID", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewNotifier(logx.Nop()).Watchdog(ctx)

	if got := read(t, conn); got != "WATCHDOG=1" {
		t.Fatalf("got %q", got)
	}
}
