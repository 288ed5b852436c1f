// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/auth"
	"github.com/keyward/keyward/internal/config"
)

// NewPruneCmd creates the prune subcommand.
func NewPruneCmd() *cobra.Command {
	return newPruneCmdWithOpener(nil)
}

func newPruneCmdWithOpener(opener StoreOpener) *cobra.Command {
	if opener == nil {
		opener = openStore
	}

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete expired access keys",
		Long: `Delete confirmation and password reset keys whose lifetime has ended.
Consumed keys are kept until they expire.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return oops.With("operation", "validate configuration").Wrap(err)
			}
			logger, err := setupLogging(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			credStore, closeStore, err := opener(cmd.Context(), cfg, logger)
			if err != nil {
				return oops.With("operation", "open credential store").Wrap(err)
			}
			defer closeStore()

			issuer, err := auth.NewAccessKeyIssuer(credStore, auth.IssuerConfig{
				PublicURL:       cfg.Auth.PublicURL,
				ConfirmationTTL: cfg.Auth.ConfirmationTTL,
				ResetTTL:        cfg.Auth.ResetTTL,
			})
			if err != nil {
				return err
			}

			n, err := issuer.Prune(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Pruned %d expired access key(s)\n", n)
			return nil
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}
