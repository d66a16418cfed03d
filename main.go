package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"finance-push-go/internal/config"
	"finance-push-go/pkg/logger"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "finpush",
	Short: "Web Push notifications for the finance app",
	Long: `finpush delivers budget and expense reminders to users' browsers over Web Push.
It serves the subscription API and runs the time-of-day notification scheduler.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read underneath the process environment")
}

// loadConfig reads configuration and installs the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
