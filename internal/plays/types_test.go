package plays

import (
	"reflect"
	"testing"
)

func TestRawEventID(t *testing.T) {
	t.Parallel()
	e := RawEvent{Game: GameRef{GamePK: 745123}, AtBatIndex: 57, Inning: 9, HalfInning: "bottom"}
	if got, want := e.ID(), "745123_57_9_bottom"; got != want {
		t.Fatalf("ID() = %q, want %q", got, want)
	}
	if got := e.InningTag(); got != "B9" {
		t.Fatalf("InningTag() = %q, want B9", got)
	}
}

func TestScorelineDefaults(t *testing.T) {
	t.Parallel()
	e := RawEvent{HomeScore: 4, AwayScore: 3}
	if got, want := e.Scoreline(), "AWAY 3 - 4 HOME"; got != want {
		t.Fatalf("Scoreline() = %q, want %q", got, want)
	}
}

func TestIsHomeRun(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		ev   RawEvent
		want bool
	}{
		{name: "event type", ev: RawEvent{EventType: "home_run"}, want: true},
		{name: "display name only", ev: RawEvent{Event: "Home Run"}, want: true},
		{name: "double", ev: RawEvent{EventType: "double", Event: "Double"}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.ev.IsHomeRun(); got != tt.want {
				t.Fatalf("IsHomeRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashtags(t *testing.T) {
	t.Parallel()
	if got, want := Hashtags(GameRef{AwayAbbr: "NYM", HomeAbbr: "ATL"}), []string{"#Mets", "#Braves"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Hashtags = %v, want %v", got, want)
	}
	if got, want := Hashtags(GameRef{AwayAbbr: "XXX"}), []string{"#MLB"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Hashtags = %v, want %v", got, want)
	}
}
