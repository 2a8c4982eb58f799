// Package clip turns a detected play into an animated GIF: it locates the
// play's video on Baseball Savant, downloads it and converts it with a
// two-pass ffmpeg palette.
package clip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"impactwatch/internal/plays"
	"impactwatch/internal/savant"
	"impactwatch/pkg/logx"
)

// Searcher is the statcast lookup the renderer needs.
type Searcher interface {
	Search(ctx context.Context, gamePK int64, date string) ([]savant.Row, error)
	Base() string
}

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type Config struct {
	WorkDir     string
	FFmpeg      string
	MaxSeconds  int
	FPS         int
	Width       int
	MaxBytes    int64
	GiveUpAfter time.Duration
	// Timeout bounds each HTTP request. ffmpeg runs get four times as long.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.WorkDir == "" {
		c.WorkDir = "./gifs"
	}
	if c.FFmpeg == "" {
		c.FFmpeg = "ffmpeg"
	}
	if c.MaxSeconds <= 0 {
		c.MaxSeconds = 10
	}
	if c.FPS <= 0 {
		c.FPS = 15
	}
	if c.Width <= 0 {
		c.Width = 480
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 15 << 20
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

type Renderer struct {
	cfg      Config
	search   Searcher
	http     *http.Client
	run      Runner
	lookPath func(string) (string, error)
	now      func() time.Time
	log      logx.Logger
}

type Option func(*Renderer)

func WithRunner(r Runner) Option                         { return func(x *Renderer) { x.run = r } }
func WithHTTPClient(hc *http.Client) Option              { return func(x *Renderer) { x.http = hc } }
func WithLookPath(f func(string) (string, error)) Option { return func(x *Renderer) { x.lookPath = f } }
func WithClock(now func() time.Time) Option              { return func(x *Renderer) { x.now = now } }
func WithLogger(log logx.Logger) Option                  { return func(x *Renderer) { x.log = log } }

func New(cfg Config, search Searcher, opts ...Option) *Renderer {
	r := &Renderer{
		cfg:      cfg.withDefaults(),
		search:   search,
		http:     &http.Client{},
		run:      ExecRunner{},
		lookPath: exec.LookPath,
		now:      time.Now,
		log:      logx.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Check verifies ffmpeg is installed and the work dir is writable.
func (r *Renderer) Check() error {
	if _, err := r.lookPath(r.cfg.FFmpeg); err != nil {
		return fmt.Errorf("ffmpeg not found (%s): %w", r.cfg.FFmpeg, err)
	}
	if err := os.MkdirAll(r.cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("clip work dir: %w", err)
	}
	f, err := os.CreateTemp(r.cfg.WorkDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("clip work dir not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func playTime(e plays.RawEvent) time.Time {
	if !e.StartTime.IsZero() {
		return e.StartTime
	}
	return e.Game.StartTime
}

// TryCreateClip renders the GIF for e. It returns an error wrapping
// ErrNotReady when Savant has nothing usable yet, or ErrPermanent when
// retrying cannot help.
func (r *Renderer) TryCreateClip(ctx context.Context, e plays.RawEvent) (plays.Artifact, error) {
	cfg := r.cfg
	if at := playTime(e); cfg.GiveUpAfter > 0 && !at.IsZero() && r.now().Sub(at) > cfg.GiveUpAfter {
		return plays.Artifact{}, fmt.Errorf("play is older than %s: %w", cfg.GiveUpAfter, ErrPermanent)
	}
	if _, err := r.lookPath(cfg.FFmpeg); err != nil {
		return plays.Artifact{}, fmt.Errorf("ffmpeg: %v: %w", err, ErrPermanent)
	}
	if r.search == nil {
		return plays.Artifact{}, fmt.Errorf("no statcast source: %w", ErrPermanent)
	}

	rows, err := r.search.Search(ctx, e.Game.GamePK, e.Game.GameDate)
	if err != nil {
		return plays.Artifact{}, fmt.Errorf("statcast search: %v: %w", err, ErrNotReady)
	}
	row, ok := savant.FindAtBat(rows, e)
	if !ok {
		return plays.Artifact{}, fmt.Errorf("no statcast row for at-bat %d: %w", e.AtBatIndex+1, ErrNotReady)
	}
	src, ok := r.firstReachable(ctx, savant.VideoCandidates(r.search.Base(), e.Game.GamePK, row))
	if !ok {
		return plays.Artifact{}, fmt.Errorf("no video published yet: %w", ErrNotReady)
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return plays.Artifact{}, fmt.Errorf("work dir: %v: %w", err, ErrPermanent)
	}
	base := filepath.Join(cfg.WorkDir, "play_"+e.ID())
	video, palette, gif := base+".mp4", base+".palette.png", base+".gif"
	defer os.Remove(video)
	defer os.Remove(palette)

	if err := r.download(ctx, src, video); err != nil {
		return plays.Artifact{}, fmt.Errorf("download %s: %v: %w", src, err, ErrNotReady)
	}
	if err := r.convert(ctx, video, palette, gif); err != nil {
		_ = os.Remove(gif)
		return plays.Artifact{}, err
	}

	st, err := os.Stat(gif)
	if err != nil {
		return plays.Artifact{}, fmt.Errorf("gif missing after ffmpeg: %v: %w", err, ErrNotReady)
	}
	if st.Size() > cfg.MaxBytes {
		_ = os.Remove(gif)
		return plays.Artifact{}, fmt.Errorf("gif is %d bytes (max %d): %w", st.Size(), cfg.MaxBytes, ErrPermanent)
	}
	r.log.Info("gif created", logx.String("id", e.ID()), logx.String("path", gif), logx.Int64("bytes", st.Size()), logx.String("source", src))
	return plays.Artifact{Path: gif, Bytes: st.Size(), ContentType: "image/gif"}, nil
}

func (r *Renderer) firstReachable(ctx context.Context, urls []string) (string, bool) {
	for _, u := range urls {
		hctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		req, err := http.NewRequestWithContext(hctx, http.MethodHead, u, nil)
		if err != nil {
			cancel()
			continue
		}
		resp, err := r.http.Do(req)
		cancel()
		if err != nil {
			r.log.Debug("video probe failed", logx.String("url", u), logx.Err(err))
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return u, true
		}
	}
	return "", false
}

func (r *Renderer) download(ctx context.Context, src, dst string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*r.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	// Source videos are a few MiB; cap well above that.
	if _, err := io.Copy(f, io.LimitReader(resp.Body, 8*r.cfg.MaxBytes)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (r *Renderer) filter() string {
	return fmt.Sprintf("fps=%d,scale=%d:-1:flags=lanczos", r.cfg.FPS, r.cfg.Width)
}

// convert runs the palettegen and paletteuse passes.
func (r *Renderer) convert(ctx context.Context, video, palette, gif string) error {
	ctx, cancel := context.WithTimeout(ctx, 4*r.cfg.Timeout)
	defer cancel()
	secs := fmt.Sprint(r.cfg.MaxSeconds)

	pass1 := []string{"-y", "-i", video, "-t", secs, "-vf", r.filter() + ",palettegen=stats_mode=diff", palette}
	if out, err := r.run.Run(ctx, r.cfg.FFmpeg, pass1...); err != nil {
		return r.ffmpegErr("palettegen", out, err)
	}
	pass2 := []string{"-y", "-i", video, "-i", palette, "-t", secs,
		"-lavfi", r.filter() + "[x];[x][1:v]paletteuse=dither=bayer:bayer_scale=5", gif}
	if out, err := r.run.Run(ctx, r.cfg.FFmpeg, pass2...); err != nil {
		return r.ffmpegErr("paletteuse", out, err)
	}
	return nil
}

func (r *Renderer) ffmpegErr(stage string, out []byte, err error) error {
	tail := string(out)
	if len(tail) > 300 {
		tail = tail[len(tail)-300:]
	}
	r.log.Debug("ffmpeg failed", logx.String("stage", stage), logx.String("output", tail), logx.Err(err))
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("ffmpeg %s: %v: %w", stage, err, ErrPermanent)
	}
	// A truncated or still-processing source tends to fail decoding; try later.
	return fmt.Errorf("ffmpeg %s: %v: %w", stage, err, ErrNotReady)
}
