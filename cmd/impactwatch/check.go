package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"impactwatch/internal/app"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the startup health check and exit",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := app.New(cfgPath, envPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	failed := 0
	out := cmd.OutOrStdout()
	for _, r := range a.Check(ctx) {
		mark := "✅"
		if !r.OK {
			mark = "❌"
			failed++
		}
		fmt.Fprintf(out, "%s %-15s %s\n", mark, r.Name, r.Detail)
	}
	if failed > 0 {
		return errors.New("health check failed")
	}
	return nil
}
