package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgPath string
	envPath string
)

var rootCmd = &cobra.Command{
	Use:           "impactwatch",
	Short:         "Watch live MLB games and post high-impact plays",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "path to config (yaml or json)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "optional .env file with credentials")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
