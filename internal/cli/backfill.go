package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sinisterchilll/cs-analytics/internal/backfill"
	"github.com/Sinisterchilll/cs-analytics/internal/chatapi"
	"github.com/Sinisterchilll/cs-analytics/internal/events"
	"github.com/Sinisterchilll/cs-analytics/internal/ratelimit"
	"github.com/Sinisterchilll/cs-analytics/internal/store"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch full message history for every stored conversation",
	Long: "backfill walks all stored conversations oldest-first and pulls any\n" +
		"messages the windowed sync missed. It is safe to interrupt and re-run;\n" +
		"already stored messages are skipped.",
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

		runner := backfill.NewRunner(backfill.Config{
			BatchSize:  cfg.Backfill.BatchSize,
			ConvDelay:  time.Duration(cfg.Backfill.ConvDelayMS) * time.Millisecond,
			ChunkDelay: time.Duration(cfg.Backfill.ChunkDelayMS) * time.Millisecond,
		}, client, db, slog.Default())

		started := time.Now()
		sum, err := runner.Run(ctx)
		if err != nil {
			return fmt.Errorf("backfill run: %w", err)
		}

		slog.Info("backfill completed",
			"conversations", sum.Conversations,
			"new_messages", sum.NewMessages,
			"skipped_existing", sum.Skipped,
			"errors", sum.Errors)

		if err := pub.RunCompleted("backfill", started, sum); err != nil {
			slog.Warn("failed to publish run event", "error", err)
		}
		return nil
	},
}
