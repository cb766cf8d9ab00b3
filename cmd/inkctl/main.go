package main

import (
	"fmt"
	"os"

	"inkbook/internal/app"
	"inkbook/internal/config"
	"inkbook/internal/logger"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "inkctl",
		Short:         "inkctl - operator tooling for the tour booking backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(gapsCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(validateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openCore loads the environment and connects to the database.
func openCore() (*app.Core, error) {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, "text")
	return app.Open(cfg)
}
