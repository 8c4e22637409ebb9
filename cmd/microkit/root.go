package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/mbwilding/microkit/auth"
	"github.com/mbwilding/microkit/config"
	"github.com/mbwilding/microkit/observability"
	"github.com/mbwilding/microkit/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "microkit",
		Short:         "microkit is an OIDC-protected HTTP service",
		Long:          `Serve the API or inspect the configured identity provider. Settings come from config.yml, config-private.yml and the environment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd(), newKeysCmd(), newVerifyCmd())
	return rootCmd
}

// addProviderFlags registers the flags that override the configured provider
func addProviderFlags(cmd *cobra.Command) {
	cmd.Flags().String("issuer", "", "OIDC issuer URL (overrides AUTH_ISSUER)")
	cmd.Flags().String("jwks-url", "", "JWKS URL (overrides AUTH_JWKS_URL, discovered from the issuer when empty)")
	cmd.Flags().String("audience", "", "expected audience (overrides AUTH_AUDIENCE)")
}

// loadProvider builds the provider configuration for the operator commands.
// Logs go to stderr so stdout carries only command output.
func loadProvider(ctx context.Context, cmd *cobra.Command) (*auth.AuthConfig, *zap.Logger, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, configError(cmd.ErrOrStderr(), err)
	}

	if v, _ := cmd.Flags().GetString("issuer"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v, _ := cmd.Flags().GetString("jwks-url"); v != "" {
		cfg.Auth.JWKSURL = v
	}
	if v, _ := cmd.Flags().GetString("audience"); v != "" {
		cfg.Auth.Audience = v
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, "console")
	if err != nil {
		return nil, nil, err
	}

	authCfg, err := cfg.AuthConfig(ctx, logger, nil)
	if err != nil {
		return nil, logger, err
	}
	if authCfg == nil {
		return nil, logger, fmt.Errorf("auth issuer not configured: set AUTH_ISSUER or pass --issuer")
	}
	return authCfg, logger, nil
}

// configError lists each rejected field on w. Other load errors pass through.
func configError(w io.Writer, err error) error {
	if !utils.IsValidationError(err) {
		return err
	}

	fields := utils.GetValidationFields(err)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "invalid configuration:")
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %s\n", name, fields[name])
	}
	return fmt.Errorf("invalid configuration: %d field(s) rejected", len(fields))
}
