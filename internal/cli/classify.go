package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sinisterchilll/cs-analytics/internal/classifier"
	"github.com/Sinisterchilll/cs-analytics/internal/classify"
	"github.com/Sinisterchilll/cs-analytics/internal/events"
	"github.com/Sinisterchilll/cs-analytics/internal/store"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify unanalyzed customer messages by language and category",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		if err := cfg.RequireOpenAI(); err != nil {
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

		llm := classifier.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.Model, slog.Default())
		engine := classify.New(db, llm, cfg.OpenAI.Model, cfg.Classify.MaxConversations, slog.Default())

		started := time.Now()
		sum, err := engine.Run(ctx)
		if err != nil {
			return fmt.Errorf("classify run: %w", err)
		}

		slog.Info("classify completed",
			"retried_messages", sum.RetriedMessages,
			"classified_messages", sum.ClassifiedMessages,
			"failed_messages", sum.FailedMessages,
			"conversations", sum.Conversations,
			"skipped_short", sum.SkippedShort)

		if err := pub.RunCompleted("classify", started, sum); err != nil {
			slog.Warn("failed to publish run event", "error", err)
		}
		return nil
	},
}
