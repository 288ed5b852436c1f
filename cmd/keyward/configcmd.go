// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration that serve would use, after merging defaults,
the config file, and flags. Secrets from the environment are never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			cmd.Print(string(out))

			if check {
				if err := cfg.Validate(); err != nil {
					return oops.With("operation", "validate configuration").Wrap(err)
				}
				cmd.PrintErrln("configuration is valid")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "validate the configuration and exit non-zero if invalid")
	config.RegisterFlags(cmd.Flags())
	return cmd
}
