package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/siteassist/internal/ratelimit"
	"github.com/TobiSchelling/siteassist/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server and JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var limiter ratelimit.Limiter
		if cfg.Redis.Enabled {
			client, err := ratelimit.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				log.Warnw("rate limiting disabled", "error", err)
			} else {
				defer client.Close()
				limiter = ratelimit.NewRedisLimiter(client, cfg.Redis.RateLimitPerMinute, time.Minute)
				log.Infow("rate limiting enabled", "addr", cfg.Redis.Addr, "per_minute", cfg.Redis.RateLimitPerMinute)
			}
		}

		srv, err := server.New(db, newSearchEngine(db, log), newQuizEngine(db, log), limiter, log)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}
		addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(port))
		fmt.Printf("Starting server at http://%s\n", addr)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(ctx, srv.Handler(), addr, log)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}
