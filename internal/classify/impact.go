package classify

import (
	"math"
	"strings"

	"impactwatch/internal/plays"
)

// EstimateImpact returns the magnitude of the win-probability swing for e.
//
// Measured values win: |delta_home_win_exp| (statcast), then |wpa| (live
// feed). Without either, the swing is estimated from the play type alone,
// scaled by the leverage index and the inning.
func EstimateImpact(e plays.RawEvent) float64 {
	if e.DeltaHomeWinExp != 0 {
		return math.Abs(e.DeltaHomeWinExp)
	}
	if e.WPA != 0 {
		return math.Abs(e.WPA)
	}

	lev := e.Leverage
	if lev <= 0 {
		lev = 1.0
	}
	kind := eventKind(e)

	// First match wins, so a walk-off or grand-slam homer scores as a homer
	// and a "walk_off" kind as a walk.
	var wp float64
	switch {
	case strings.Contains(kind, "home_run"):
		if e.Inning >= 9 {
			wp = 0.25 * lev
		} else {
			wp = 0.15 * lev
		}
	case strings.Contains(kind, "triple"):
		wp = 0.12 * lev
	case strings.Contains(kind, "double"):
		wp = 0.08 * lev
	case strings.Contains(kind, "single"):
		wp = 0.06 * lev
	case strings.Contains(kind, "walk"), strings.Contains(kind, "base_on_balls"):
		wp = 0.04 * lev
	case strings.Contains(kind, "strikeout"):
		wp = -0.05 * lev
	case strings.Contains(kind, "out"):
		wp = -0.03 * lev
	case strings.Contains(kind, "grand_slam"):
		wp = 0.40 * lev
	}

	switch {
	case e.Inning >= 9:
		wp *= 1.5
	case e.Inning >= 7:
		wp *= 1.2
	}
	return math.Round(math.Abs(wp)*10000) / 10000
}

// eventKind normalizes the play type to machine form ("home_run").
func eventKind(e plays.RawEvent) string {
	if k := strings.TrimSpace(e.EventType); k != "" {
		return strings.ToLower(k)
	}
	k := strings.ToLower(strings.TrimSpace(e.Event))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}
