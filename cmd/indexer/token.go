package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"orderScope/internal/api"
)

func newAdminTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Mint an admin token for the force-sync endpoint",
		RunE:  runAdminToken,
	}
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().String("subject", "admin", "token subject")
	return cmd
}

func runAdminToken(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ttl, _ := cmd.Flags().GetDuration("ttl")
	subject, _ := cmd.Flags().GetString("subject")

	token, err := api.NewAuthenticator(cfg.AdminSecret).IssueToken(subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
