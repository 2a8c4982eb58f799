package savant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"impactwatch/internal/plays"
)

const sampleCSV = "\ufeffpitch_type,game_date,player_name,events,inning,at_bat_number,pitch_number,delta_home_win_exp,sv_id\n" +
	"FF,2025-07-04,\"Alonso, Pete\",,9,62,1,0,250704_231501\n" +
	"SL,2025-07-04,\"Alonso, Pete\",home_run,9,62,2,0.384,250704_231530\n" +
	"CH,2025-07-04,\"Olson, Matt\",single,9,61,3,0.021,250704_231200\n" +
	"CU,2025-07-04,\"Nimmo, Brandon\",field_out,3,20,4,-0.005,\n"

func homeRun() plays.RawEvent {
	return plays.RawEvent{
		Game:       plays.GameRef{GamePK: 745001},
		AtBatIndex: 61,
		Inning:     9,
		HalfInning: "bottom",
		Event:      "Home Run",
		Batter:     "Pete Alonso",
	}
}

func TestParseCSV(t *testing.T) {
	t.Parallel()
	rows, err := ParseCSV(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d", len(rows))
	}
	if rows[0].Get("pitch_type") != "FF" {
		t.Fatalf("BOM not stripped from header: %v", rows[0])
	}
	if rows[1].Get("player_name") != "Alonso, Pete" {
		t.Fatalf("quoted field = %q", rows[1].Get("player_name"))
	}
	if _, ok := rows[3].Float("sv_id"); ok {
		t.Fatal("empty field parsed as float")
	}

	empty, err := ParseCSV(strings.NewReader(""))
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty: %v, %v", empty, err)
	}
}

func TestMatchWinExpDelta(t *testing.T) {
	t.Parallel()
	rows, _ := ParseCSV(strings.NewReader(sampleCSV))

	m, ok := MatchWinExpDelta(rows, homeRun())
	if !ok {
		t.Fatal("no match")
	}
	if m.Delta != 0.384 {
		t.Fatalf("delta = %v", m.Delta)
	}
	// inning 30 + contains 50 + equal 100 + batter 40 + at-bat 30 + delta 20
	if m.Score != 270 {
		t.Fatalf("score = %d", m.Score)
	}

	// Only the trivial-delta row describes this play; nothing qualifies.
	out := plays.RawEvent{AtBatIndex: 19, Inning: 3, Event: "Flyout", Batter: "Brandon Nimmo"}
	if _, ok := MatchWinExpDelta(rows, out); ok {
		t.Fatal("matched a row with |delta| <= 0.01")
	}

	// Weak candidates below the confidence floor.
	weak := plays.RawEvent{AtBatIndex: 500, Inning: 1, Event: "Walk", Batter: "Nobody"}
	if m, ok := MatchWinExpDelta(rows, weak); ok {
		t.Fatalf("weak match accepted: %+v", m)
	}
}

func TestFindAtBatAndVideos(t *testing.T) {
	t.Parallel()
	rows, _ := ParseCSV(strings.NewReader(sampleCSV))
	row, ok := FindAtBat(rows, homeRun())
	if !ok || row.Get("pitch_number") != "2" {
		t.Fatalf("row = %v, %v", row, ok)
	}

	urls := VideoCandidates("https://savant.test/", 745001, row)
	want := []string{
		"https://savant.test/sporty-videos/745001/250704_231530.mp4",
		"https://savant.test/videos/745001/62.mp4",
		"https://savant.test/illustrator/download?game_pk=745001&sv_id=250704_231530",
	}
	if fmt.Sprint(urls) != fmt.Sprint(want) {
		t.Fatalf("urls = %v", urls)
	}

	noSV := VideoCandidates("https://savant.test", 1, Row{"at_bat_number": "3"})
	if len(noSV) != 1 {
		t.Fatalf("urls without sv_id = %v", noSV)
	}

	if _, ok := FindAtBat(rows, plays.RawEvent{AtBatIndex: 99}); ok {
		t.Fatal("found missing at-bat")
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/statcast_search/csv" || q.Get("game_pk") != "745001" || q.Get("hfSea") != "2025|" || q.Get("type") != "details" {
			http.Error(w, "bad query", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, sampleCSV)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, srv.Client())
	rows, err := c.Search(context.Background(), 745001, "2025-07-04")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d", len(rows))
	}
	m, ok := MatchWinExpDelta(rows, homeRun())
	if !ok || math.Abs(m.Delta-0.384) > 1e-9 {
		t.Fatalf("match = %+v", m)
	}

	if _, err := c.Search(context.Background(), 1, "2025-07-04"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
