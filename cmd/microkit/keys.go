package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "keys fetches the provider's signing keys",
		Long:  `Fetch the JWKS once and list every usable key with its algorithm and type.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeys(cmd)
		},
	}
	addProviderFlags(cmd)
	return cmd
}

func runKeys(cmd *cobra.Command) error {
	ctx := cmd.Context()
	authCfg, logger, err := loadProvider(ctx, cmd)
	if logger != nil {
		defer logger.Sync()
	}
	if err != nil {
		return err
	}

	if err := authCfg.RefreshKeys(ctx); err != nil {
		return err
	}

	snapshot := authCfg.Keys().Snapshot()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "JWKS %s fetched at %s\n\n", authCfg.JWKSURL(), snapshot.FetchedAt.UTC().Format(time.RFC3339))

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KID\tALG\tTYPE\tUSE")
	for _, key := range snapshot.Keys() {
		use := key.Use
		if use == "" {
			use = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", key.ID, key.Algorithm, key.Type, use)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(snapshot.Skipped) > 0 {
		fmt.Fprintf(out, "\nskipped:\n")
		for _, reason := range snapshot.Skipped {
			fmt.Fprintf(out, "  %s\n", reason)
		}
	}
	return nil
}
