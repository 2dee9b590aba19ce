// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sl-cache/stagelinq-cache/internal/cache/storage"
	"github.com/sl-cache/stagelinq-cache/internal/config"
)

func queryCmd() *cobra.Command {
	var (
		url        string
		identifier string
		dataType   string
		provider   string
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Look up a cached entry by URL or identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(configPath).Load()
			if err != nil {
				return err
			}
			db, err := storage.Open(cfg.Cache.DBPath(), cfg.Cache.StorageConfig())
			if err != nil {
				return err
			}
			defer db.Close()
			store := storage.New(db)

			if url != "" {
				entry, err := store.RetrieveByURL(url)
				if err != nil {
					return err
				}
				return printJSON(entry)
			}

			if identifier == "" {
				return fmt.Errorf("cachectl query: one of --url or --identifier is required")
			}
			matches, err := store.RetrieveByIdentifier(identifier, dataType, provider, false)
			if err != nil {
				return err
			}
			return printJSON(matches)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "exact cached URL")
	cmd.Flags().StringVar(&identifier, "identifier", "", "cache identifier")
	cmd.Flags().StringVar(&dataType, "data-type", "", "data type filter")
	cmd.Flags().StringVar(&provider, "provider", "", "provider filter")

	return cmd
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
