// Package reconcile refreshes the terminal state of previously stored
// open conversations: a secondary pass that catches resolutions the
// incremental window missed.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sinisterchilll/cs-analytics/internal/chatapi"
	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

// horizon bounds the scan: unresolved conversations older than this are
// presumed abandoned.
const horizon = 30 * 24 * time.Hour

const progressEvery = 50

type ChatAPI interface {
	GetConversation(ctx context.Context, id string) (*chatapi.Conversation, error)
}

type Store interface {
	UnresolvedConversations(ctx context.Context, since time.Time) ([]models.Conversation, error)
	UpsertConversation(ctx context.Context, c models.Conversation) error
}

type Engine struct {
	api    ChatAPI
	store  Store
	logger *slog.Logger

	convDelay  time.Duration
	errorDelay time.Duration
	sleep      func(time.Duration)
	now        func() time.Time
}

// Summary is one reconciliation run's outcome.
type Summary struct {
	Scanned   int `json:"scanned"`
	Refreshed int `json:"refreshed"`
	Resolved  int `json:"resolved"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
}

func New(api ChatAPI, store Store, logger *slog.Logger) *Engine {
	return &Engine{
		api:        api,
		store:      store,
		logger:     logger,
		convDelay:  300 * time.Millisecond,
		errorDelay: 500 * time.Millisecond,
		sleep:      time.Sleep,
		now:        time.Now,
	}
}

// Run scans unresolved conversations oldest-updated-first and upserts any
// whose remote status or updated time moved on. Individual fetch failures
// are counted, not fatal.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	since := e.now().Add(-horizon)
	convs, err := e.store.UnresolvedConversations(ctx, since)
	if err != nil {
		return sum, err
	}
	e.logger.Info("reconciliation scan starting", "unresolved", len(convs), "since", since)

	for _, stored := range convs {
		sum.Scanned++
		if sum.Scanned%progressEvery == 0 {
			e.logger.Info("reconciliation progress",
				"scanned", sum.Scanned,
				"refreshed", sum.Refreshed,
				"resolved", sum.Resolved,
				"errors", sum.Errors,
			)
		}

		detail, err := e.api.GetConversation(ctx, stored.ID)
		if err != nil {
			e.logger.Warn("failed to refresh conversation",
				"conversation_id", stored.ID,
				"error", err,
			)
			sum.Errors++
			e.sleep(e.errorDelay)
			continue
		}

		if detail.Status == stored.Status && detail.UpdatedTime.Equal(stored.UpdatedTime) {
			sum.Unchanged++
			e.sleep(e.convDelay)
			continue
		}

		refreshed := chatapi.ToConversation(*detail)
		if err := e.store.UpsertConversation(ctx, refreshed); err != nil {
			e.logger.Error("failed to upsert refreshed conversation",
				"conversation_id", stored.ID,
				"error", err,
			)
			sum.Errors++
			e.sleep(e.errorDelay)
			continue
		}
		sum.Refreshed++
		if refreshed.Resolved() && !stored.Resolved() {
			sum.Resolved++
		}
		e.sleep(e.convDelay)
	}

	e.logger.Info("reconciliation run complete",
		"scanned", sum.Scanned,
		"refreshed", sum.Refreshed,
		"resolved", sum.Resolved,
		"unchanged", sum.Unchanged,
		"errors", sum.Errors,
	)
	return sum, nil
}
