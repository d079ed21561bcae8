// Package ingest is the incremental sync engine: one run computes a time
// window, walks accounts → conversations → messages through the chat API
// and upserts everything that passes the window and bot-involvement
// filters. Entity-level failures are logged and counted, never fatal.
package ingest

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Sinisterchilll/cs-analytics/internal/chatapi"
	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

// ChatAPI is the slice of the chat client the engine consumes.
type ChatAPI interface {
	ListUsers(ctx context.Context, from, to time.Time) ([]chatapi.User, error)
	ListUserConversations(ctx context.Context, userID string) ([]chatapi.ConversationRef, error)
	GetConversation(ctx context.Context, id string) (*chatapi.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, from time.Time) ([]chatapi.Message, error)
}

// Store is the persistence surface the engine needs.
type Store interface {
	UpsertAccount(ctx context.Context, a models.Account) error
	UpsertConversation(ctx context.Context, c models.Conversation) error
	UpsertMessage(ctx context.Context, m models.Message) error
}

const defaultLookback = 2 * time.Hour

// Self-throttle delays after external calls, scaled by call weight.
const (
	messageDelay      = 200 * time.Millisecond
	conversationDelay = 500 * time.Millisecond
	accountDelay      = time.Second
)

type Engine struct {
	api    ChatAPI
	store  Store
	logger *slog.Logger

	lookback time.Duration
	sleep    func(time.Duration)
	now      func() time.Time
}

// Summary is one sync run's outcome.
type Summary struct {
	WindowFrom         time.Time `json:"window_from"`
	WindowTo           time.Time `json:"window_to"`
	Accounts           int       `json:"accounts"`
	Conversations      int       `json:"conversations"`
	Messages           int       `json:"messages"`
	SkippedOutOfWindow int       `json:"skipped_out_of_window"`
	SkippedNoBot       int       `json:"skipped_no_bot"`
	Errors             int       `json:"errors"`
}

func New(api ChatAPI, store Store, lookback time.Duration, logger *slog.Logger) *Engine {
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &Engine{
		api:      api,
		store:    store,
		logger:   logger,
		lookback: lookback,
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// Run executes one incremental pass. Per-account and per-conversation
// failures are absorbed; only a failure to list accounts aborts the run.
// Writes already committed stay committed either way.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	to := e.now()
	from := to.Add(-e.lookback)
	sum := Summary{WindowFrom: from, WindowTo: to}

	e.logger.Info("sync window computed", "from", from, "to", to)

	users, err := e.api.ListUsers(ctx, from, to)
	if err != nil {
		return sum, err
	}
	e.logger.Info("accounts in window", "count", len(users))

	for _, u := range users {
		if err := e.syncAccount(ctx, u, from, to, &sum); err != nil {
			e.logger.Error("account sync failed", "account_id", u.ID, "error", err)
			sum.Errors++
		}
		e.sleep(accountDelay)
	}

	e.logger.Info("sync run complete",
		"accounts", sum.Accounts,
		"conversations", sum.Conversations,
		"messages", sum.Messages,
		"skipped_out_of_window", sum.SkippedOutOfWindow,
		"skipped_no_bot", sum.SkippedNoBot,
		"errors", sum.Errors,
	)
	return sum, nil
}

func (e *Engine) syncAccount(ctx context.Context, u chatapi.User, from, to time.Time, sum *Summary) error {
	if err := e.store.UpsertAccount(ctx, chatapi.ToAccount(u)); err != nil {
		return err
	}
	sum.Accounts++

	// The conversation listing has no window filter; the per-conversation
	// detail check below applies it.
	refs, err := e.api.ListUserConversations(ctx, u.ID)
	if err != nil {
		return err
	}

	for _, ref := range refs {
		if err := e.syncConversation(ctx, ref.ID, from, to, sum); err != nil {
			e.logger.Error("conversation sync failed",
				"conversation_id", ref.ID,
				"account_id", u.ID,
				"error", err,
			)
			sum.Errors++
		}
		e.sleep(conversationDelay)
	}
	return nil
}

func (e *Engine) syncConversation(ctx context.Context, id string, from, to time.Time, sum *Summary) error {
	detail, err := e.api.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	if !inWindow(detail.CreatedTime, from, to) && !inWindow(detail.UpdatedTime, from, to) {
		e.logger.Debug("conversation out of window", "conversation_id", id)
		sum.SkippedOutOfWindow++
		return nil
	}

	conv := chatapi.ToConversation(*detail)
	if err := e.store.UpsertConversation(ctx, conv); err != nil {
		return err
	}
	sum.Conversations++

	wireMsgs, err := e.api.ListMessages(ctx, id, from)
	if err != nil {
		return err
	}
	e.sleep(messageDelay)

	msgs := make([]models.Message, 0, len(wireMsgs))
	botInvolved := conv.BotAssigned
	for _, wm := range wireMsgs {
		m := chatapi.ToMessage(wm)
		if m.Role == models.RoleSystem {
			continue
		}
		if m.Role == models.RoleBot {
			botInvolved = true
		}
		msgs = append(msgs, m)
	}

	// Business rule for this deployment: only bot-handled conversations
	// get their messages stored.
	if !botInvolved {
		e.logger.Debug("conversation has no bot involvement", "conversation_id", id)
		sum.SkippedNoBot++
		return nil
	}

	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].CreatedTime.Before(msgs[j].CreatedTime)
	})

	for _, m := range msgs {
		if err := e.store.UpsertMessage(ctx, m); err != nil {
			return err
		}
		sum.Messages++
	}
	return nil
}

// inWindow reports whether t falls inside [from, to]. Unknown timestamps
// never qualify.
func inWindow(t, from, to time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(from) && !t.After(to)
}
