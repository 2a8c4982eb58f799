package mlb

import (
	"strings"
	"time"
)

// Wire models for the statsapi endpoints. Only the fields the pipeline
// reads are declared.

type scheduleResponse struct {
	Dates []struct {
		Date  string         `json:"date"`
		Games []scheduleGame `json:"games"`
	} `json:"dates"`
}

type scheduleGame struct {
	GamePK   int64   `json:"gamePk"`
	GameDate apiTime `json:"gameDate"`
	Official string  `json:"officialDate"`
	Status   struct {
		StatusCode    string `json:"statusCode"`
		AbstractCode  string `json:"abstractGameCode"`
		DetailedState string `json:"detailedState"`
	} `json:"status"`
	Teams struct {
		Home scheduleSide `json:"home"`
		Away scheduleSide `json:"away"`
	} `json:"teams"`
}

type scheduleSide struct {
	Team struct {
		ID           int    `json:"id"`
		Name         string `json:"name"`
		Abbreviation string `json:"abbreviation"`
	} `json:"team"`
}

type liveFeed struct {
	GameData struct {
		Teams struct {
			Home feedTeam `json:"home"`
			Away feedTeam `json:"away"`
		} `json:"teams"`
	} `json:"gameData"`
	LiveData struct {
		Plays struct {
			AllPlays []feedPlay `json:"allPlays"`
		} `json:"plays"`
	} `json:"liveData"`
}

type feedTeam struct {
	ID           int    `json:"id"`
	Abbreviation string `json:"abbreviation"`
}

type feedPlay struct {
	Result struct {
		Event       string   `json:"event"`
		EventType   string   `json:"eventType"`
		Description string   `json:"description"`
		HomeScore   int      `json:"homeScore"`
		AwayScore   int      `json:"awayScore"`
		WPA         *float64 `json:"wpa"`
	} `json:"result"`
	About struct {
		AtBatIndex        int      `json:"atBatIndex"`
		HalfInning        string   `json:"halfInning"`
		Inning            int      `json:"inning"`
		IsComplete        bool     `json:"isComplete"`
		StartTime         apiTime  `json:"startTime"`
		LeverageIndex     *float64 `json:"leverageIndex"`
		HomeWinExpectancy *float64 `json:"homeWinExpectancy"`
	} `json:"about"`
	Matchup struct {
		Batter struct {
			ID       int    `json:"id"`
			FullName string `json:"fullName"`
		} `json:"batter"`
		Pitcher struct {
			ID       int    `json:"id"`
			FullName string `json:"fullName"`
		} `json:"pitcher"`
	} `json:"matchup"`
}

// apiTime accepts RFC3339 timestamps with or without seconds or fractional
// seconds. Empty or unparseable values decode to the zero time.
type apiTime struct {
	time.Time
}

var apiTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
}

func (t *apiTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range apiTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	// The schedule is still usable without a start time.
	return nil
}

func deref(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
