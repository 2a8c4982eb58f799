package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"

	"impactwatch/internal/eventbus"
	rtsup "impactwatch/internal/runtime/supervisor"
	"impactwatch/internal/status"
	"impactwatch/internal/storage"
)

// Deps are the read models the handlers render. Only Monitor is required.
type Deps struct {
	Monitor *status.Monitor
	Bus     eventbus.Bus
	Metrics http.Handler
	// Loops reports supervised goroutines for /health.
	Loops func() rtsup.Snapshot
	// Recent lists the newest published items, newest first.
	Recent func(ctx context.Context, n int) ([]storage.PublishRecord, error)
	// OnToggle runs after /start or /stop changed the monitor state.
	OnToggle func(ctx context.Context, active bool)
}

// Health is the /health body.
type Health struct {
	Status     string            `json:"status"`
	Active     bool              `json:"active"`
	Uptime     string            `json:"uptime"`
	LastPoll   *time.Time        `json:"last_poll,omitempty"`
	FirstError string            `json:"first_error,omitempty"`
	Loops      []rtsup.LoopStats `json:"loops,omitempty"`
}

type handler struct {
	d     Deps
	token string
}

// NewHandler builds the dashboard mux. A non-empty token protects every
// route except the health probes.
func NewHandler(d Deps, token string) http.Handler {
	if d.Bus == nil {
		d.Bus = eventbus.Nop{}
	}
	h := &handler{d: d, token: strings.TrimSpace(token)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.auth(h.index))
	mux.HandleFunc("GET /api/status", h.auth(h.status))
	mux.HandleFunc("GET /api/published", h.auth(h.published))
	mux.HandleFunc("POST /start", h.auth(h.toggle(true)))
	mux.HandleFunc("POST /stop", h.auth(h.toggle(false)))
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		mux.Handle("GET /metrics", h.auth(d.Metrics.ServeHTTP))
	}
	return mux
}

// auth accepts either "Authorization: Bearer <token>" or "?token=<token>".
func (h *handler) auth(next http.HandlerFunc) http.HandlerFunc {
	if h.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Monitor.Snapshot())
}

func (h *handler) published(w http.ResponseWriter, r *http.Request) {
	if h.d.Recent == nil {
		writeJSON(w, http.StatusOK, []storage.PublishRecord{})
		return
	}
	recs, err := h.d.Recent(r.Context(), 20)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if recs == nil {
		recs = []storage.PublishRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) toggle(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.d.Monitor.SetActive(on) {
			ev := eventbus.MonitorStopped
			if on {
				ev = eventbus.MonitorStarted
			}
			h.d.Bus.Publish(eventbus.Event{Type: ev, Time: time.Now()})
			if h.d.OnToggle != nil {
				h.d.OnToggle(r.Context(), on)
			}
		}
		// Form posts from the HTML page return to it.
		if strings.Contains(r.Header.Get("Accept"), "text/html") {
			target := "/"
			if t := r.URL.Query().Get("token"); t != "" {
				target += "?token=" + url.QueryEscape(t)
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		snap := h.d.Monitor.Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{"active": snap.Active, "status": snap.Status})
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	snap := h.d.Monitor.Snapshot()
	out := Health{
		Status:   "ok",
		Active:   snap.Active,
		Uptime:   snap.Uptime,
		LastPoll: snap.LastPoll,
	}
	if h.d.Loops != nil {
		ls := h.d.Loops()
		out.Loops = ls.Loops
		if ls.FirstError != "" {
			out.Status = "degraded"
			out.FirstError = ls.FirstError
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type pageData struct {
	S         status.Snapshot
	Recent    []storage.PublishRecord
	TokenQS   string
	Generated time.Time
}

func (h *handler) index(w http.ResponseWriter, r *http.Request) {
	data := pageData{S: h.d.Monitor.Snapshot(), Generated: time.Now()}
	if h.d.Recent != nil {
		data.Recent, _ = h.d.Recent(r.Context(), 10)
	}
	if t := r.URL.Query().Get("token"); t != "" {
		data.TokenQS = "?token=" + url.QueryEscape(t)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

var page = template.Must(template.New("index").Funcs(template.FuncMap{
	"ts": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("Jan 2 15:04:05 MST")
	},
	"tsp": func(t *time.Time) string {
		if t == nil {
			return "never"
		}
		return t.Format("Jan 2 15:04:05 MST")
	},
	"pct": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
}).Parse(indexHTML))

const indexHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="30">
<title>MLB Impact Monitor</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem;max-width:60rem;color:#1d2733}
h1{font-size:1.5rem}
.badge{padding:.2rem .6rem;border-radius:.4rem;color:#fff}
.running{background:#2e7d32}.stopped{background:#c62828}
table{border-collapse:collapse;width:100%;margin:1rem 0}
td,th{border-bottom:1px solid #ddd;padding:.35rem .5rem;text-align:left}
.grid{display:flex;gap:1.5rem;flex-wrap:wrap}
.card{border:1px solid #ddd;border-radius:.5rem;padding:.8rem 1rem;min-width:8rem}
.card b{display:block;font-size:1.4rem}
form{display:inline}
</style>
</head>
<body>
<h1>⚾ MLB Impact Monitor <span class="badge {{.S.Status}}">{{.S.Status}}</span></h1>
<p>
<form method="post" action="/start{{.TokenQS}}"><button{{if .S.Active}} disabled{{end}}>Start</button></form>
<form method="post" action="/stop{{.TokenQS}}"><button{{if not .S.Active}} disabled{{end}}>Stop</button></form>
</p>
<p>Up {{.S.Uptime}} since {{ts .S.StartedAt}}. Last poll: {{tsp .S.LastPoll}}{{if .S.LastPollError}} (error: {{.S.LastPollError}}){{end}}. Scans: {{.S.TotalScans}}.</p>
<p>Last scan: {{.S.LastScan.Games}} games, {{.S.LastScan.Plays}} plays, {{.S.LastScan.Notable}} notable.</p>
<h2>Today ({{.S.Daily.Day}})</h2>
<div class="grid">
<div class="card">Seen<b>{{.S.Daily.Seen}}</b></div>
<div class="card">Queued<b>{{.S.Daily.Queued}}</b></div>
<div class="card">Enriched<b>{{.S.Daily.Enriched}}</b></div>
<div class="card">Published<b>{{.S.Daily.Published}}</b></div>
<div class="card">Failed<b>{{.S.Daily.Failed}}</b></div>
</div>
<h2>Queue {{.S.QueueLength}}/{{.S.QueueCapacity}}</h2>
{{if .S.Queue}}<table>
<tr><th>Play</th><th>Game</th><th>Impact</th><th>State</th><th>Attempts</th><th>Next retry</th></tr>
{{range .S.Queue}}<tr><td>{{.Event}}</td><td>{{.Matchup}}</td><td>{{pct .Impact}}</td><td>{{.State}}</td><td>{{.Attempts}}</td><td>{{ts .NextRetryAt}}</td></tr>
{{end}}</table>{{else}}<p>Empty.</p>{{end}}
<p>Seen set: {{.S.SeenLength}}/{{.S.SeenCapacity}}</p>
{{if .Recent}}<h2>Recently published</h2>
<table>
<tr><th>When</th><th>Play</th><th>Channels</th><th>Clip</th></tr>
{{range .Recent}}<tr><td>{{ts .At}}</td><td>{{.Title}}</td><td>{{range $i, $c := .Channels}}{{if $i}}, {{end}}{{$c}}{{end}}</td><td>{{if .Artifact}}yes{{else}}no{{end}}</td></tr>
{{end}}</table>{{end}}
<p><small>Generated {{ts .Generated}}</small></p>
</body>
</html>
`
