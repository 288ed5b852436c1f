// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/keyward/keyward/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the keyward CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyward",
		Short: "Keyward - credential and session lifecycle service",
		Long: `Keyward registers accounts, confirms email addresses, resets and
changes passwords, and issues rotating session keys with at most one
active session per user.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file path (YAML, default $XDG_CONFIG_HOME/keyward/config.yaml if present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewPruneCmd())
	cmd.AddCommand(NewSchemaCmd())
	cmd.AddCommand(NewConfigCmd())

	return cmd
}

// loadConfig reads the config file named by --config, or the default file
// when the flag is empty, and applies the explicitly set flags in fs.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = config.DefaultFile(); err != nil {
			return nil, err
		}
	}
	return config.Load(path, fs)
}
