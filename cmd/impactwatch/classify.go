package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"impactwatch/internal/classify"
	"impactwatch/internal/plays"
)

var classifyOpts struct {
	impact   float64
	leverage float64
	event    string
	strategy string
	team     int
}

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Print the classifier decision for one play",
	Example: `  impactwatch classify --impact 0.32 --leverage 2.7
  impactwatch classify --strategy team_homeruns --team 121 --event "Home Run"`,
	RunE: runClassify,
}

func init() {
	f := classifyCmd.Flags()
	f.Float64Var(&classifyOpts.impact, "impact", 0, "win-probability change (0..1)")
	f.Float64Var(&classifyOpts.leverage, "leverage", 1, "leverage index")
	f.StringVar(&classifyOpts.event, "event", "Single", "event name")
	f.StringVar(&classifyOpts.strategy, "strategy", classify.StrategyImpact, "impact | team_homeruns")
	f.IntVar(&classifyOpts.team, "team", 0, "batting team id (team_homeruns)")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	o := classifyOpts
	st, err := classify.NewStrategy(o.strategy, classify.DefaultThresholds(), o.team)
	if err != nil {
		return err
	}
	e := plays.RawEvent{
		Event:           o.event,
		EventType:       strings.ReplaceAll(strings.ToLower(strings.TrimSpace(o.event)), " ", "_"),
		Leverage:        o.leverage,
		DeltaHomeWinExp: o.impact,
		BatterTeamID:    o.team,
		Complete:        true,
	}
	d := st.Decide(e)
	verdict := "skip"
	if d.Notable {
		verdict = "notable"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: impact=%.1f%% leverage=%.2f (%s)\n", verdict, d.Impact*100, o.leverage, d.Reason)
	return nil
}
