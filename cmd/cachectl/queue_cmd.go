// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sl-cache/stagelinq-cache/internal/cache/fetcher"
	"github.com/sl-cache/stagelinq-cache/internal/cache/storage"
	"github.com/sl-cache/stagelinq-cache/internal/config"
)

func queueCmd() *cobra.Command {
	var (
		url        string
		identifier string
		dataType   string
		provider   string
		priority   int
		retries    int
	)

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Enqueue a fetch_url request for the background workers",
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

			requestID, err := store.QueueRequest(provider, "fetch_url", fetcher.Params{
				URL: url, Identifier: identifier, DataType: dataType, Provider: provider,
				Timeout: config.DefaultFetcherTimeout, Retries: retries,
			}, priority)
			if err != nil {
				return err
			}
			fmt.Println(requestID)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "URL to fetch")
	cmd.Flags().StringVar(&identifier, "identifier", "", "cache identifier (e.g. artist MBID)")
	cmd.Flags().StringVar(&dataType, "data-type", "", "data type tag (e.g. artist_details)")
	cmd.Flags().StringVar(&provider, "provider", "", "provider name (e.g. musicbrainz)")
	cmd.Flags().IntVar(&priority, "priority", 2, "queue priority, lower drains first")
	cmd.Flags().IntVar(&retries, "retries", 3, "retry attempts once a worker claims this request")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("identifier")
	_ = cmd.MarkFlagRequired("data-type")
	_ = cmd.MarkFlagRequired("provider")

	return cmd
}
