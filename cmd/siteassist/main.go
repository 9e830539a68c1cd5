package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/siteassist/internal/config"
	"github.com/TobiSchelling/siteassist/internal/database"
	"github.com/TobiSchelling/siteassist/internal/logger"
	"github.com/TobiSchelling/siteassist/internal/quiz"
	"github.com/TobiSchelling/siteassist/internal/search"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	log        = logger.Nop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "siteassist",
	Short:   "Site search assistant and quiz engine",
	Long:    "siteassist answers site search queries with synonym-expanded scoring, logs misses, and serves quiz sessions.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		l, err := logger.New(cfg.Logging.Mode, level)
		if err != nil {
			return err
		}
		log = l
		log.Debugw("config loaded", "path", path)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(missesCmd)
	rootCmd.AddCommand(synonymsCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(quizCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("siteassist", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/siteassist/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure site feeds, featured articles, and quiz limits.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats(context.Background())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Article index:")
		fmt.Printf("  Articles: %d\n", stats.Articles)
		fmt.Printf("  Featured: %d\n", stats.FeaturedArticles)
		fmt.Println("\nSearch:")
		fmt.Printf("  Synonym rules: %d (%d enabled)\n", stats.SynonymRules, stats.EnabledRules)
		fmt.Printf("  Misses: %d (%d pending)\n", stats.Misses, stats.PendingMisses)
		fmt.Println("\nQuiz:")
		fmt.Printf("  Questions: %d (%d published)\n", stats.Questions, stats.PublishedQuestions)
		fmt.Printf("  Sessions: %d\n", stats.Sessions)
		fmt.Printf("  Answers: %d\n", stats.Answers)
		return nil
	},
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "siteassist.db")
	return database.Open(dbPath)
}

func newSearchEngine(db *database.DB, l *zap.SugaredLogger) *search.Engine {
	return search.NewEngine(db, db, db, l,
		search.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit))
}

func newQuizEngine(db *database.DB, l *zap.SugaredLogger) *quiz.Engine {
	return quiz.NewEngine(db, l,
		quiz.WithRecentWindow(cfg.Quiz.RecentWindow),
		quiz.WithDailyLimit(cfg.Quiz.DailyLimit),
		quiz.WithLocation(cfg.Location()),
		quiz.WithDefaultMode(cfg.Quiz.DefaultMode),
	)
}
