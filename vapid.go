package main

import (
	"fmt"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"finance-push-go/internal/push"
	"finance-push-go/pkg/logger"
)

var vapidCmd = &cobra.Command{
	Use:   "vapid",
	Short: "Manage the VAPID application server key pair",
}

var vapidGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Print a new VAPID key pair in .env form",
	Long: `generate prints a fresh P-256 key pair. Rotating keys invalidates every
existing browser subscription, so only do this for a new deployment.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return fmt.Errorf("generate vapid keys: %w", err)
		}
		// Round-trip through the loader so we never print a pair it would reject.
		if _, err := push.LoadVAPIDKeys(publicKey, privateKey, "mailto:placeholder@example.com", nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", publicKey, privateKey)
		return nil
	},
}

var vapidCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configured VAPID keys and subject",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		keys, err := push.LoadVAPIDKeys(cfg.VAPID.PublicKey, cfg.VAPID.PrivateKey, cfg.VAPID.Subject, logger.WithModule("push"))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "public key: %s\nsubject:    %s\n", keys.PublicKeyString(), keys.Subject())
		return nil
	},
}

func init() {
	vapidCmd.AddCommand(vapidGenerateCmd, vapidCheckCmd)
	rootCmd.AddCommand(vapidCmd)
}
