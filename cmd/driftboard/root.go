// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Driftboard Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Driftboard CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "driftboard",
		Short: "Driftboard - session-based authentication service",
		Long: `Driftboard is a standalone authentication service: password and
OAuth accounts, sliding sessions, email verification, and password resets,
backed by PostgreSQL.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}
