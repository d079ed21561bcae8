package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sinisterchilll/cs-analytics/internal/chatapi"
	"github.com/Sinisterchilll/cs-analytics/internal/events"
	"github.com/Sinisterchilll/cs-analytics/internal/ingest"
	"github.com/Sinisterchilll/cs-analytics/internal/ratelimit"
	"github.com/Sinisterchilll/cs-analytics/internal/store"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull recently updated conversations into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		if err := cfg.RequireChatAPI(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		pub, err := events.Connect(cfg.NatsURL, slog.Default())
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer pub.Close()

		limiter := ratelimit.PerMinute(cfg.Chat.RateLimitPerMin)
		client := chatapi.NewClient(cfg.Chat.BaseURL, cfg.Chat.APIKey, limiter, slog.Default())

		lookback := time.Duration(cfg.Sync.LookbackHours) * time.Hour
		engine := ingest.New(client, db, lookback, slog.Default())

		started := time.Now()
		sum, err := engine.Run(ctx)
		if err != nil {
			return fmt.Errorf("sync run: %w", err)
		}

		slog.Info("sync completed",
			"window_from", sum.WindowFrom,
			"window_to", sum.WindowTo,
			"accounts", sum.Accounts,
			"conversations", sum.Conversations,
			"messages", sum.Messages,
			"skipped_out_of_window", sum.SkippedOutOfWindow,
			"skipped_no_bot", sum.SkippedNoBot,
			"errors", sum.Errors)

		if err := pub.RunCompleted("sync", started, sum); err != nil {
			slog.Warn("failed to publish run event", "error", err)
		}
		return nil
	},
}
