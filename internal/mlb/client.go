// Package mlb is the statsapi.mlb.com client used by the poll loop.
package mlb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"impactwatch/internal/plays"
	"impactwatch/pkg/logx"
)

// ErrTransient wraps every network, HTTP status and decode failure. The poll
// loop logs it and tries again next cycle.
var ErrTransient = errors.New("mlb api unavailable")

const DefaultBase = "https://statsapi.mlb.com"

// LiveStatuses are the schedule status codes the monitor follows.
var LiveStatuses = map[string]bool{"I": true, "F": true, "O": true, "W": true, "D": true, "PW": true}

type Config struct {
	Base           string
	Timeout        time.Duration
	TeamID         int
	FinishedWindow time.Duration
}

type Client struct {
	base    string
	http    *http.Client
	cfg     Config
	timeout atomic.Int64
	teamID  atomic.Int64
	log     logx.Logger
	now     func() time.Time
	loc     *time.Location
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }
func WithLogger(log logx.Logger) Option     { return func(c *Client) { c.log = log } }

// WithLocation sets the zone used to compute "today" for the schedule.
func WithLocation(loc *time.Location) Option { return func(c *Client) { c.loc = loc } }

func New(cfg Config, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.FinishedWindow <= 0 {
		cfg.FinishedWindow = 3 * time.Hour
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.Base), "/")
	if base == "" {
		base = DefaultBase
	}
	c := &Client{
		base: base,
		http: &http.Client{},
		cfg:  cfg,
		log:  logx.Nop(),
		now:  time.Now,
		loc:  time.Local,
	}
	c.timeout.Store(int64(cfg.Timeout))
	c.teamID.Store(int64(cfg.TeamID))
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetTeamID narrows the schedule to one team; 0 lists the whole league.
func (c *Client) SetTeamID(id int) { c.teamID.Store(int64(max(0, id))) }

// SetTimeout applies a reloaded request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout.Store(int64(d))
	}
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, dst any) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.timeout.Load()))
	defer cancel()

	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: GET %s: status %d", ErrTransient, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrTransient, path, err)
	}
	return nil
}

// scheduleDates returns today and yesterday, plus five more days back in the
// off-season (November through February).
func (c *Client) scheduleDates() []string {
	today := c.now().In(c.loc)
	days := 2
	switch today.Month() {
	case time.November, time.December, time.January, time.February:
		days = 7
	}
	out := make([]string, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, today.AddDate(0, 0, -i).Format("2006-01-02"))
	}
	return out
}

// ListLiveEvents returns the games worth polling: live, warming up, delayed,
// or finished within the configured window.
func (c *Client) ListLiveEvents(ctx context.Context) ([]plays.GameRef, error) {
	dates := c.scheduleDates()
	seen := map[int64]bool{}
	var (
		out      []plays.GameRef
		failures int
		lastErr  error
	)
	now := c.now()
	for _, d := range dates {
		q := url.Values{}
		q.Set("sportId", "1")
		q.Set("date", d)
		q.Set("hydrate", "linescore,decisions,team")
		q.Set("useLatestGames", "false")
		q.Set("language", "en")
		if team := c.teamID.Load(); team > 0 {
			q.Set("teamId", strconv.FormatInt(team, 10))
		}

		var resp scheduleResponse
		if err := c.getJSON(ctx, "/api/v1/schedule", q, &resp); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			}
			failures++
			lastErr = err
			c.log.Debug("schedule fetch failed", logx.String("date", d), logx.Err(err))
			continue
		}
		for _, dd := range resp.Dates {
			for _, g := range dd.Games {
				if !c.include(g, now) || seen[g.GamePK] {
					continue
				}
				seen[g.GamePK] = true
				out = append(out, toGameRef(g, dd.Date))
			}
		}
	}
	if failures == len(dates) {
		return nil, lastErr
	}
	return out, nil
}

func (c *Client) include(g scheduleGame, now time.Time) bool {
	code := g.Status.StatusCode
	if !LiveStatuses[code] {
		return false
	}
	if code == "F" || code == "O" {
		if g.GameDate.IsZero() {
			return true
		}
		return now.Sub(g.GameDate.Time) <= c.cfg.FinishedWindow
	}
	return true
}

func toGameRef(g scheduleGame, date string) plays.GameRef {
	day := g.Official
	if day == "" {
		day = date
	}
	return plays.GameRef{
		GamePK:     g.GamePK,
		GameDate:   day,
		Status:     g.Status.StatusCode,
		Detail:     g.Status.DetailedState,
		HomeAbbr:   g.Teams.Home.Team.Abbreviation,
		AwayAbbr:   g.Teams.Away.Team.Abbreviation,
		HomeTeamID: g.Teams.Home.Team.ID,
		AwayTeamID: g.Teams.Away.Team.ID,
		StartTime:  g.GameDate.Time,
	}
}

// ListPlaysSince returns the completed plays of game whose at-bat index is
// greater than cursor, in feed order. A cursor of -1 returns every play.
func (c *Client) ListPlaysSince(ctx context.Context, game plays.GameRef, cursor int) ([]plays.RawEvent, error) {
	var feed liveFeed
	path := fmt.Sprintf("/api/v1.1/game/%d/feed/live", game.GamePK)
	if err := c.getJSON(ctx, path, nil, &feed); err != nil {
		return nil, err
	}

	// The feed knows the teams even when the schedule did not hydrate them.
	if game.HomeAbbr == "" {
		game.HomeAbbr = feed.GameData.Teams.Home.Abbreviation
	}
	if game.AwayAbbr == "" {
		game.AwayAbbr = feed.GameData.Teams.Away.Abbreviation
	}
	if game.HomeTeamID == 0 {
		game.HomeTeamID = feed.GameData.Teams.Home.ID
	}
	if game.AwayTeamID == 0 {
		game.AwayTeamID = feed.GameData.Teams.Away.ID
	}

	var out []plays.RawEvent
	for _, p := range feed.LiveData.Plays.AllPlays {
		if !p.About.IsComplete || p.About.AtBatIndex <= cursor {
			continue
		}
		out = append(out, toRawEvent(game, p))
	}
	return out, nil
}

func toRawEvent(game plays.GameRef, p feedPlay) plays.RawEvent {
	half := strings.ToLower(p.About.HalfInning)
	battingTeam := game.AwayTeamID
	if half == "bottom" {
		battingTeam = game.HomeTeamID
	}
	return plays.RawEvent{
		Game:         game,
		AtBatIndex:   p.About.AtBatIndex,
		Inning:       p.About.Inning,
		HalfInning:   half,
		Complete:     p.About.IsComplete,
		Event:        p.Result.Event,
		EventType:    p.Result.EventType,
		Description:  p.Result.Description,
		Batter:       p.Matchup.Batter.FullName,
		BatterID:     p.Matchup.Batter.ID,
		BatterTeamID: battingTeam,
		Pitcher:      p.Matchup.Pitcher.FullName,
		HomeScore:    p.Result.HomeScore,
		AwayScore:    p.Result.AwayScore,
		Leverage:     deref(p.About.LeverageIndex, 1.0),
		HomeWinExp:   deref(p.About.HomeWinExpectancy, 0.5),
		WPA:          deref(p.Result.WPA, 0),
		StartTime:    p.About.StartTime.Time,
	}
}

// Ping checks that the schedule endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("sportId", "1")
	q.Set("date", c.now().In(c.loc).Format("2006-01-02"))
	var resp scheduleResponse
	return c.getJSON(ctx, "/api/v1/schedule", q, &resp)
}
