// SPDX-License-Identifier: MIT

// Command cachectl is the operator CLI for the StagelinQ metadata
// cache: serve the background worker pool, queue ad-hoc fetches, query
// cached entries, and verify the on-disk database. Subcommand shape
// follows the teacher's cobra.Command{RunE: ...} idiom (cmd/daemon's
// report/status subcommands).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sl-cache/stagelinq-cache/internal/log"
	"github.com/sl-cache/stagelinq-cache/internal/version"
)

var configPath string

func main() {
	log.Configure(log.Config{Level: "info", Service: "cachectl", Version: version.Version})

	root := &cobra.Command{
		Use:   "cachectl",
		Short: "Operate the StagelinQ metadata/data cache",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")

	root.AddCommand(serveCmd())
	root.AddCommand(queueCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(verifyCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("cachectl " + version.String())
			return nil
		},
	}
}
