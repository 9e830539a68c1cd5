package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/siteassist/internal/ingest"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Populate the article index",
}

var indexImportCmd = &cobra.Command{
	Use:   "import [file.yaml]",
	Short: "Import articles from a YAML file (upsert by slug)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		result, err := ingest.ImportFile(context.Background(), db, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d articles, skipped %d\n", result.Imported, result.Skipped)
		return nil
	},
}

var indexFeedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Rebuild the index from the site's feeds: collect -> fetch -> link -> store",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var feeds []ingest.FeedConfig
		for _, f := range cfg.Index.Feeds {
			feeds = append(feeds, ingest.FeedConfig{URL: f.URL, Name: f.Name})
		}
		if len(feeds) == 0 && cfg.Index.SiteURL != "" {
			feeds = append(feeds, ingest.FeedConfig{URL: strings.TrimSuffix(cfg.Index.SiteURL, "/") + "/feed.xml"})
		}
		if len(feeds) == 0 {
			return fmt.Errorf("no feeds configured: set index.feeds or index.site_url")
		}

		indexer := ingest.NewIndexer(db, feeds, cfg.Index.Featured, cfg.FetchTimeout(), log)
		result := indexer.Run(cmd.Context())

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d/4: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}
		return result.Err()
	},
}

func init() {
	indexCmd.AddCommand(indexImportCmd)
	indexCmd.AddCommand(indexFeedCmd)
}
