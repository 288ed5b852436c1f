// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal/web"
)

// NewSchemaCmd creates the schema subcommand.
func NewSchemaCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Write the JSON Schemas of the API request bodies",
		Long: `Write one JSON Schema file per API operation. The same schemas are
used by the server to validate request bodies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeSchemas(cmd, outDir)
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "schemas", "output directory")
	return cmd
}

func writeSchemas(cmd *cobra.Command, outDir string) error {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return oops.Code("SCHEMA_WRITE_FAILED").With("dir", outDir).Wrap(err)
	}

	for _, op := range web.Operations() {
		schema, err := web.GenerateSchema(op)
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, op+".request.schema.json")
		if err := os.WriteFile(outPath, schema, 0o600); err != nil {
			return oops.Code("SCHEMA_WRITE_FAILED").With("path", outPath).Wrap(err)
		}
		cmd.Printf("Generated %s\n", outPath)
	}
	return nil
}
