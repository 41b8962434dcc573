package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmehdipour/loyalty-gateway/internal/app"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Google Wallet maintenance",
}

var walletInitClassCmd = &cobra.Command{
	Use:   "init-class",
	Short: "Create the loyalty class passes are issued under",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.Wallet.IssuerID == "" {
			return fmt.Errorf("wallet.issuer_id is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		wc, err := app.Wallet(ctx, cfg)
		if err != nil {
			return err
		}
		created, err := wc.EnsureClass(ctx, app.Program(cfg))
		if err != nil {
			return fmt.Errorf("create class %s: %w", cfg.Wallet.ClassID(), err)
		}
		if created {
			fmt.Fprintf(cmd.OutOrStdout(), "class %s created\n", cfg.Wallet.ClassID())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "class %s already exists\n", cfg.Wallet.ClassID())
		}
		return nil
	},
}

func init() {
	walletCmd.AddCommand(walletInitClassCmd)
}
