package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"finance-push-go/internal/scheduler"
	"finance-push-go/pkg/logger"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler tick at the current time and exit",
	Long: `tick evaluates every subscribed user once and dispatches whatever is due.
Use it when an external cron drives the cadence instead of serve.`,
	RunE: runTick,
}

func init() {
	rootCmd.AddCommand(tickCmd)
}

func runTick(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.runner().RunOnce(cmd.Context())
	if errors.Is(err, scheduler.ErrLeaseHeld) {
		logger.WithModule("scheduler").Info("another instance is ticking; nothing to do")
		return nil
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
