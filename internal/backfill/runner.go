// Package backfill walks every stored conversation and pulls its full
// message history, filling gaps the windowed sync never covered. It runs
// in fixed-size chunks with deliberate pauses to stay under the external
// API's rate limits.
package backfill

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Sinisterchilll/cs-analytics/internal/chatapi"
	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

// Config tunes throughput against API pressure.
type Config struct {
	BatchSize  int           // conversations per chunk
	ConvDelay  time.Duration // pause between conversations
	ChunkDelay time.Duration // pause between chunks
}

// DefaultConfig matches the operational defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:  50,
		ConvDelay:  time.Second,
		ChunkDelay: 5 * time.Second,
	}
}

type ChatAPI interface {
	ListMessages(ctx context.Context, conversationID string, from time.Time) ([]chatapi.Message, error)
}

type Store interface {
	AllConversations(ctx context.Context) ([]models.Conversation, error)
	MessageIDs(ctx context.Context, conversationID string) (map[string]struct{}, error)
	UpsertMessage(ctx context.Context, m models.Message) error
}

// Runner orchestrates one backfill pass.
type Runner struct {
	cfg    Config
	api    ChatAPI
	store  Store
	logger *slog.Logger

	sleep func(time.Duration)
}

// Summary is one backfill run's outcome.
type Summary struct {
	Conversations int `json:"conversations"`
	NewMessages   int `json:"new_messages"`
	Skipped       int `json:"skipped_existing"`
	Errors        int `json:"errors"`
}

func NewRunner(cfg Config, api ChatAPI, store Store, logger *slog.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Runner{
		cfg:    cfg,
		api:    api,
		store:  store,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Run walks all stored conversations oldest-first. Per-conversation
// failures are counted and the run continues; ctx cancellation stops at
// the next conversation boundary.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	convs, err := r.store.AllConversations(ctx)
	if err != nil {
		return sum, err
	}
	r.logger.Info("backfill starting",
		"conversations", len(convs),
		"batch_size", r.cfg.BatchSize,
	)

	for i, conv := range convs {
		select {
		case <-ctx.Done():
			r.logger.Info("backfill interrupted", "processed", sum.Conversations)
			return sum, ctx.Err()
		default:
		}

		if i > 0 {
			if i%r.cfg.BatchSize == 0 {
				r.logger.Info("backfill chunk complete",
					"processed", i,
					"new_messages", sum.NewMessages,
					"errors", sum.Errors,
				)
				r.sleep(r.cfg.ChunkDelay)
			} else {
				r.sleep(r.cfg.ConvDelay)
			}
		}

		if err := r.backfillConversation(ctx, conv.ID, &sum); err != nil {
			r.logger.Warn("conversation backfill failed",
				"conversation_id", conv.ID,
				"error", err,
			)
			sum.Errors++
			continue
		}
		sum.Conversations++
	}

	r.logger.Info("backfill complete",
		"conversations", sum.Conversations,
		"new_messages", sum.NewMessages,
		"skipped_existing", sum.Skipped,
		"errors", sum.Errors,
	)
	return sum, nil
}

func (r *Runner) backfillConversation(ctx context.Context, conversationID string, sum *Summary) error {
	existing, err := r.store.MessageIDs(ctx, conversationID)
	if err != nil {
		return err
	}

	// Full history: no window restriction.
	wireMsgs, err := r.api.ListMessages(ctx, conversationID, time.Time{})
	if err != nil {
		return err
	}

	fresh := make([]models.Message, 0, len(wireMsgs))
	for _, wm := range wireMsgs {
		m := chatapi.ToMessage(wm)
		if m.Role == models.RoleSystem {
			continue
		}
		if _, ok := existing[m.ID]; ok {
			sum.Skipped++
			continue
		}
		fresh = append(fresh, m)
	}

	sort.Slice(fresh, func(i, j int) bool {
		return fresh[i].CreatedTime.Before(fresh[j].CreatedTime)
	})

	for _, m := range fresh {
		if err := r.store.UpsertMessage(ctx, m); err != nil {
			return err
		}
		sum.NewMessages++
	}
	return nil
}
