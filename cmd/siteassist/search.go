package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/siteassist/internal/database"
	"github.com/TobiSchelling/siteassist/internal/search"
)

// --- search command ---

var (
	searchLimit  int
	searchRecord bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the article index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		engine := newSearchEngine(db, log)
		query := strings.Join(args, " ")

		res, err := engine.Search(ctx, query, searchLimit)
		if err != nil {
			return err
		}

		if len(res.Terms) > 1 {
			fmt.Printf("Expanded terms: %s\n\n", strings.Join(res.Terms, ", "))
		}
		if len(res.Hits) == 0 {
			fmt.Println("No results.")
		}
		if res.Fallback {
			fmt.Println("No match. Featured fallback:")
		}
		for i, h := range res.Hits {
			if h.Fallback {
				fmt.Printf("  %d. %s\n", i+1, h.Article.Title)
			} else {
				fmt.Printf("  %d. %s (%.2f)\n", i+1, h.Article.Title, h.Score)
			}
			fmt.Printf("     %s\n", h.Article.URL)
		}

		if searchRecord && !res.Ranked() {
			if err := engine.RecordMiss(ctx, query); err != nil {
				return err
			}
			fmt.Printf("\nRecorded miss for %q\n", search.Normalize(query))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum results (default from config)")
	searchCmd.Flags().BoolVar(&searchRecord, "record", false, "Record a miss when nothing matches")
}

// --- misses command ---

var (
	missStatus string
	missLimit  int
	missAdds   []string
)

var missesCmd = &cobra.Command{
	Use:   "misses",
	Short: "Review queries that found nothing",
}

var missesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List search misses, most frequent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		status := missStatus
		if status == "all" {
			status = ""
		}
		misses, err := db.ListMisses(context.Background(), status, missLimit)
		if err != nil {
			return err
		}

		if len(misses) == 0 {
			fmt.Println("No misses recorded.")
			return nil
		}
		for _, m := range misses {
			fmt.Printf("  %4d  %-9s %s  %s\n", m.Count, m.Status, m.LastHappened.Local().Format("2006-01-02 15:04"), m.Query)
		}
		return nil
	},
}

var missesResolveCmd = &cobra.Command{
	Use:   "resolve [query]",
	Short: "Mark a miss resolved, optionally adding a synonym rule with --add",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := search.Normalize(strings.Join(args, " "))
		if err := setMissStatus(query, database.MissResolved); err != nil {
			return err
		}
		if len(missAdds) == 0 {
			return nil
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.InsertSynonymRule(context.Background(), query, missAdds, database.SourceManual)
		if err != nil {
			return err
		}
		fmt.Printf("Added synonym rule [%d]: %s -> %s\n", id, query, strings.Join(missAdds, ", "))
		return nil
	},
}

var missesIgnoreCmd = &cobra.Command{
	Use:   "ignore [query]",
	Short: "Mark a miss ignored",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMissStatus(search.Normalize(strings.Join(args, " ")), database.MissIgnored)
	},
}

var missesReopenCmd = &cobra.Command{
	Use:   "reopen [query]",
	Short: "Mark a miss pending again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMissStatus(search.Normalize(strings.Join(args, " ")), database.MissPending)
	},
}

func setMissStatus(normalized, status string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	found, err := db.SetMissStatus(context.Background(), normalized, status)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no miss recorded for %q", normalized)
	}
	fmt.Printf("Miss %q: %s\n", normalized, status)
	return nil
}

func init() {
	missesListCmd.Flags().StringVar(&missStatus, "status", database.MissPending, "Filter by status (pending, resolved, ignored, all)")
	missesListCmd.Flags().IntVarP(&missLimit, "limit", "n", 50, "Maximum rows")
	missesResolveCmd.Flags().StringSliceVar(&missAdds, "add", nil, "Terms to add as a synonym rule for this query")

	missesCmd.AddCommand(missesListCmd)
	missesCmd.AddCommand(missesResolveCmd)
	missesCmd.AddCommand(missesIgnoreCmd)
	missesCmd.AddCommand(missesReopenCmd)
}

// --- synonyms command ---

var synonymsCmd = &cobra.Command{
	Use:   "synonyms",
	Short: "Manage synonym rules",
}

var synonymsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all synonym rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rules, err := db.GetAllSynonymRules(context.Background())
		if err != nil {
			return err
		}

		if len(rules) == 0 {
			fmt.Println("No synonym rules defined. Add one with: siteassist synonyms add")
			return nil
		}

		fmt.Println("Synonym Rules:")
		fmt.Println()
		for _, r := range rules {
			icon := " "
			if r.Enabled {
				icon = "*"
			}
			fmt.Printf("  [%d] %s %s -> %s (%s)\n", r.ID, icon, r.Trigger, strings.Join(r.Adds, ", "), r.Source)
		}
		return nil
	},
}

var synonymsAddCmd = &cobra.Command{
	Use:   "add [trigger] [term...]",
	Short: "Add a synonym rule",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.InsertSynonymRule(context.Background(), args[0], args[1:], database.SourceManual)
		if err != nil {
			return err
		}
		fmt.Printf("Added synonym rule [%d]: %s -> %s\n", id, args[0], strings.Join(args[1:], ", "))
		return nil
	},
}

var synonymsToggleCmd = &cobra.Command{
	Use:   "toggle [id]",
	Short: "Toggle a synonym rule on or off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rule, err := lookupRule(db, args[0])
		if err != nil {
			return err
		}
		if err := db.ToggleSynonymRule(context.Background(), rule.ID); err != nil {
			return err
		}
		newState := "disabled"
		if !rule.Enabled {
			newState = "enabled"
		}
		fmt.Printf("Synonym rule [%d] %s: %s\n", rule.ID, rule.Trigger, newState)
		return nil
	},
}

var synonymsRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a synonym rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		rule, err := lookupRule(db, args[0])
		if err != nil {
			return err
		}
		if err := db.DeleteSynonymRule(context.Background(), rule.ID); err != nil {
			return err
		}
		fmt.Printf("Removed synonym rule [%d]: %s\n", rule.ID, rule.Trigger)
		return nil
	},
}

func lookupRule(db *database.DB, raw string) (*database.SynonymRule, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid rule ID: %s", raw)
	}
	rule, err := db.GetSynonymRule(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("synonym rule %d not found", id)
	}
	return rule, nil
}

func init() {
	synonymsCmd.AddCommand(synonymsListCmd)
	synonymsCmd.AddCommand(synonymsAddCmd)
	synonymsCmd.AddCommand(synonymsToggleCmd)
	synonymsCmd.AddCommand(synonymsRemoveCmd)
}
