package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"CareFollow/pkg/token"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <service>",
		Short: "Issue a service token for an internal caller (discharge flow, message router)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sync, err := loadConfig()
			if err != nil {
				return err
			}
			defer sync()

			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.TokenTTL()
			}

			issuer, err := token.NewIssuer(cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			signed, expiresAt, err := issuer.Issue(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), signed)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "Token lifetime, defaults to JWT_EXPIRE_MINUTES")
	return cmd
}
