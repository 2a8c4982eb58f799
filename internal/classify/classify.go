// Package classify decides which plays are notable.
//
// The threshold rules are pure functions of (impact, leverage). Strategies
// wrap them so one pipeline can run league-wide or for a single team.
package classify

// Thresholds are the rule cut-offs, evaluated high to low.
type Thresholds struct {
	High         float64
	Mid          float64
	Low          float64
	HighLeverage float64
	MidLeverage  float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.40, Mid: 0.30, Low: 0.25, HighLeverage: 3.0, MidLeverage: 2.5}
}

// Rule identifies which threshold rule matched.
type Rule int

const (
	RuleNone Rule = iota
	RuleHigh
	RuleMidLeverage
	RuleLowLeverage
)

func (r Rule) String() string {
	switch r {
	case RuleHigh:
		return "impact>=high"
	case RuleMidLeverage:
		return "impact>=mid,leverage>=high_leverage"
	case RuleLowLeverage:
		return "impact>=low,leverage>=mid_leverage"
	default:
		return "none"
	}
}

// Classifier applies Thresholds. The zero value uses DefaultThresholds.
type Classifier struct {
	T Thresholds
}

func New(t Thresholds) Classifier { return Classifier{T: t} }

func (c Classifier) thresholds() Thresholds {
	if c.T == (Thresholds{}) {
		return DefaultThresholds()
	}
	return c.T
}

// Match returns the first rule that fires for (impact, leverage).
func (c Classifier) Match(impact, leverage float64) Rule {
	t := c.thresholds()
	switch {
	case impact >= t.High:
		return RuleHigh
	case impact >= t.Mid && leverage >= t.HighLeverage:
		return RuleMidLeverage
	case impact >= t.Low && leverage >= t.MidLeverage:
		return RuleLowLeverage
	default:
		return RuleNone
	}
}

// Notable reports whether any rule fires.
func (c Classifier) Notable(impact, leverage float64) bool {
	return c.Match(impact, leverage) != RuleNone
}
