// Package plays holds the data model shared by the pipeline: games, raw play
// records, and the media artifacts produced for them.
package plays

import (
	"fmt"
	"strings"
	"time"
)

// GameRef identifies one game returned by the schedule endpoint.
type GameRef struct {
	GamePK     int64     `json:"game_pk"`
	GameDate   string    `json:"game_date"` // YYYY-MM-DD (official date)
	Status     string    `json:"status"`    // abstract status code, e.g. "I", "F"
	Detail     string    `json:"detail,omitempty"`
	HomeAbbr   string    `json:"home"`
	AwayAbbr   string    `json:"away"`
	HomeTeamID int       `json:"home_team_id"`
	AwayTeamID int       `json:"away_team_id"`
	StartTime  time.Time `json:"start_time"`
}

func (g GameRef) Matchup() string {
	return orDefault(g.AwayAbbr, "AWAY") + " @ " + orDefault(g.HomeAbbr, "HOME")
}

// RawEvent is one completed play from the live feed. It is not mutated after
// the poll loop finishes scoring it.
type RawEvent struct {
	Game GameRef `json:"game"`

	AtBatIndex int    `json:"at_bat_index"`
	Inning     int    `json:"inning"`
	HalfInning string `json:"half_inning"` // "top" | "bottom"
	Complete   bool   `json:"complete"`

	Event       string `json:"event"`      // display name, e.g. "Home Run"
	EventType   string `json:"event_type"` // machine name, e.g. "home_run"
	Description string `json:"description"`

	Batter       string `json:"batter"`
	BatterID     int    `json:"batter_id,omitempty"`
	BatterTeamID int    `json:"batter_team_id,omitempty"`
	Pitcher      string `json:"pitcher"`

	HomeScore int `json:"home_score"`
	AwayScore int `json:"away_score"`

	Leverage        float64 `json:"leverage"`
	HomeWinExp      float64 `json:"home_win_exp"`
	WPA             float64 `json:"wpa"`
	DeltaHomeWinExp float64 `json:"delta_home_win_exp,omitempty"`

	// Impact is filled in by the classifier step before enqueueing.
	Impact float64 `json:"impact"`

	StartTime time.Time `json:"start_time"`
}

// ID returns the stable identifier used for deduplication:
// {game_pk}_{at_bat_index}_{inning}_{half_inning}.
func (e RawEvent) ID() string {
	return fmt.Sprintf("%d_%d_%d_%s", e.Game.GamePK, e.AtBatIndex, e.Inning, e.HalfInning)
}

// InningTag renders "T9" / "B7".
func (e RawEvent) InningTag() string {
	side := "T"
	if strings.EqualFold(e.HalfInning, "bottom") {
		side = "B"
	}
	return fmt.Sprintf("%s%d", side, e.Inning)
}

// Scoreline renders "NYM 3 - 2 ATL".
func (e RawEvent) Scoreline() string {
	return fmt.Sprintf("%s %d - %d %s", orDefault(e.Game.AwayAbbr, "AWAY"), e.AwayScore, e.HomeScore, orDefault(e.Game.HomeAbbr, "HOME"))
}

// IsHomeRun reports whether the play's result is a home run.
func (e RawEvent) IsHomeRun() bool {
	t := strings.ToLower(e.EventType)
	if t == "" {
		t = strings.ToLower(strings.ReplaceAll(e.Event, " ", "_"))
	}
	return strings.Contains(t, "home_run")
}

// Artifact is a temporary media file produced by enrichment.
type Artifact struct {
	Path        string `json:"path"`
	Bytes       int64  `json:"bytes"`
	ContentType string `json:"content_type"`
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
