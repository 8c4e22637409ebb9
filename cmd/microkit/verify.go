package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mbwilding/microkit/auth"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <token>",
		Short: "verify validates a bearer token",
		Long:  `Validate a token against the configured provider and print the resulting principal as JSON.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, args[0])
		},
	}
	addProviderFlags(cmd)
	return cmd
}

func runVerify(cmd *cobra.Command, token string) error {
	ctx := cmd.Context()
	authCfg, logger, err := loadProvider(ctx, cmd)
	if logger != nil {
		defer logger.Sync()
	}
	if err != nil {
		return err
	}

	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	principal, err := authCfg.Authenticate(ctx, token)
	if err != nil {
		return fmt.Errorf("token rejected (%s): %w", auth.Kind(err), err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(principal)
}
