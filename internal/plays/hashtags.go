package plays

var teamHashtags = map[string]string{
	"LAA": "#Angels", "HOU": "#Astros", "OAK": "#Athletics", "ATH": "#Athletics", "TOR": "#BlueJays",
	"ATL": "#Braves", "MIL": "#Brewers", "STL": "#Cardinals", "CHC": "#Cubs",
	"ARI": "#Dbacks", "AZ": "#Dbacks", "LAD": "#Dodgers", "SF": "#SFGiants", "CLE": "#Guardians",
	"SEA": "#Mariners", "MIA": "#Marlins", "NYM": "#Mets", "WSH": "#Nationals",
	"BAL": "#Orioles", "SD": "#Padres", "PHI": "#Phillies", "PIT": "#Pirates",
	"TEX": "#Rangers", "TB": "#Rays", "BOS": "#RedSox", "CIN": "#Reds",
	"COL": "#Rockies", "KC": "#Royals", "DET": "#Tigers", "MIN": "#Twins",
	"CWS": "#WhiteSox", "NYY": "#Yankees",
}

// Hashtags returns the club hashtags for a game, away team first.
// Unknown clubs collapse to "#MLB".
func Hashtags(g GameRef) []string {
	out := make([]string, 0, 2)
	for _, abbr := range []string{g.AwayAbbr, g.HomeAbbr} {
		if tag, ok := teamHashtags[abbr]; ok {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		out = append(out, "#MLB")
	}
	return out
}
