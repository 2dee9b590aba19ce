// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sl-cache/stagelinq-cache/internal/cache/storage"
	"github.com/sl-cache/stagelinq-cache/internal/config"
)

func verifyCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run a SQLite integrity check against the cache database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(configPath).Load()
			if err != nil {
				return err
			}
			mode := "quick"
			if full {
				mode = "full"
			}
			issues, err := storage.VerifyIntegrity(cfg.Cache.DBPath(), mode)
			if err != nil {
				return err
			}
			if len(issues) == 0 {
				fmt.Println("ok")
				return nil
			}
			for _, issue := range issues {
				fmt.Println(issue)
			}
			return fmt.Errorf("cachectl verify: %d integrity issue(s) found", len(issues))
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "run PRAGMA integrity_check instead of quick_check")
	return cmd
}
