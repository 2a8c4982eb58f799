package classify

import (
	"fmt"
	"strings"

	"impactwatch/internal/plays"
)

const (
	StrategyImpact       = "impact"
	StrategyTeamHomeRuns = "team_homeruns"
)

// Decision is the outcome of a strategy for one play.
type Decision struct {
	Notable bool
	Impact  float64
	Reason  string
}

// Strategy is a filter policy. Implementations must be pure.
type Strategy interface {
	Name() string
	Decide(e plays.RawEvent) Decision
}

// NewStrategy builds the named strategy.
func NewStrategy(name string, t Thresholds, teamID int) (Strategy, error) {
	c := New(t)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", StrategyImpact:
		return impactStrategy{c: c}, nil
	case StrategyTeamHomeRuns:
		if teamID <= 0 {
			return nil, fmt.Errorf("strategy %s requires a team id", StrategyTeamHomeRuns)
		}
		return teamHomeRuns{teamID: teamID}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

type impactStrategy struct{ c Classifier }

func (impactStrategy) Name() string { return StrategyImpact }

func (s impactStrategy) Decide(e plays.RawEvent) Decision {
	impact := EstimateImpact(e)
	lev := e.Leverage
	if lev <= 0 {
		lev = 1.0
	}
	r := s.c.Match(impact, lev)
	return Decision{Notable: r != RuleNone, Impact: impact, Reason: r.String()}
}

type teamHomeRuns struct{ teamID int }

func (teamHomeRuns) Name() string { return StrategyTeamHomeRuns }

func (s teamHomeRuns) Decide(e plays.RawEvent) Decision {
	d := Decision{Impact: EstimateImpact(e), Reason: "not a team home run"}
	if e.IsHomeRun() && e.BatterTeamID == s.teamID {
		d.Notable = true
		d.Reason = "team home run"
	}
	return d
}
