package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"impactwatch/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor until SIGINT/SIGTERM",
	RunE:  runMonitor,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.New(cfgPath, envPath)
	if err != nil {
		return err
	}
	if err := a.Start(context.Background()); err != nil {
		_ = a.Stop(context.Background(), app.StopFatalError)
		return err
	}

	reason := app.StopFatalError
	select {
	case sig := <-sigs:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}
