package savant

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"impactwatch/internal/plays"
)

// MinMatchScore is the confidence needed to trust a matched row.
const MinMatchScore = 50

// Match is the best-scoring statcast row for a play.
type Match struct {
	Delta float64
	Score int
	Row   Row
}

func normEvent(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "_", " ")))
}

// score rates how well row describes e. Savant's at_bat_number is 1-based;
// the live feed's atBatIndex is 0-based.
func score(row Row, e plays.RawEvent) int {
	s := 0
	if n, ok := row.Int("inning"); ok && n == e.Inning {
		s += 30
	}
	want := normEvent(e.Event)
	if want == "" {
		want = normEvent(e.EventType)
	}
	got := normEvent(row.Get("events"))
	if want != "" && got != "" {
		if strings.Contains(got, want) || strings.Contains(want, got) {
			s += 50
		}
		if got == want {
			s += 100
		}
	}
	batter := strings.ToLower(strings.TrimSpace(e.Batter))
	name := strings.ToLower(row.Get("player_name"))
	if batter != "" && name != "" && (strings.Contains(name, batter) || strings.Contains(batter, name) || sameLastName(name, batter)) {
		s += 40
	}
	if n, ok := row.Int("at_bat_number"); ok && n == e.AtBatIndex+1 {
		s += 30
	}
	return s
}

// sameLastName handles Savant's "Last, First" names against "First Last".
func sameLastName(savantName, fullName string) bool {
	last, _, ok := strings.Cut(savantName, ",")
	if !ok {
		return false
	}
	fields := strings.Fields(fullName)
	return len(fields) > 0 && strings.TrimSpace(last) == fields[len(fields)-1]
}

// MatchWinExpDelta finds the statcast row for e and returns its
// delta_home_win_exp. Only rows with a change above one percentage point are
// candidates; the best must score at least MinMatchScore.
func MatchWinExpDelta(rows []Row, e plays.RawEvent) (Match, bool) {
	var best Match
	found := false
	for _, row := range rows {
		d, ok := row.Float("delta_home_win_exp")
		if !ok || math.Abs(d) <= 0.01 {
			continue
		}
		sc := score(row, e) + 20
		if !found || sc > best.Score {
			best = Match{Delta: d, Score: sc, Row: row}
			found = true
		}
	}
	if !found || best.Score < MinMatchScore {
		return best, false
	}
	return best, true
}

// FindAtBat returns the final pitch row of e's plate appearance.
func FindAtBat(rows []Row, e plays.RawEvent) (Row, bool) {
	var (
		best  Row
		pitch = -1
	)
	for _, row := range rows {
		n, ok := row.Int("at_bat_number")
		if !ok || n != e.AtBatIndex+1 {
			continue
		}
		p, _ := row.Int("pitch_number")
		if p > pitch {
			best, pitch = row, p
		}
	}
	return best, best != nil
}

// VideoCandidates lists the URLs Savant may serve the play video from, most
// specific first. Rows without sv_id only get the at-bat URL.
func VideoCandidates(base string, gamePK int64, row Row) []string {
	base = strings.TrimRight(base, "/")
	svID := row.Get("sv_id")
	ab := row.Get("at_bat_number")
	pk := strconv.FormatInt(gamePK, 10)

	var out []string
	if svID != "" {
		out = append(out, fmt.Sprintf("%s/sporty-videos/%s/%s.mp4", base, pk, url.PathEscape(svID)))
	}
	if ab != "" {
		out = append(out, fmt.Sprintf("%s/videos/%s/%s.mp4", base, pk, url.PathEscape(ab)))
	}
	if svID != "" {
		q := url.Values{}
		q.Set("game_pk", pk)
		q.Set("sv_id", svID)
		out = append(out, base+"/illustrator/download?"+q.Encode())
	}
	return out
}
