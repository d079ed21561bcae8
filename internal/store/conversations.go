package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

// UpsertConversation inserts or refreshes a conversation keyed by its
// external ID. Last writer wins on every mutable field.
func (s *Store) UpsertConversation(ctx context.Context, c models.Conversation) error {
	var props []byte
	if c.Properties != nil {
		var err error
		props, err = json.Marshal(c.Properties)
		if err != nil {
			return fmt.Errorf("marshal conversation %s properties: %w", c.ID, err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations
			(id, account_id, status, channel_id, assignee_id, bot_assigned, created_time, updated_time, properties, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			status = EXCLUDED.status,
			channel_id = EXCLUDED.channel_id,
			assignee_id = EXCLUDED.assignee_id,
			bot_assigned = EXCLUDED.bot_assigned,
			created_time = EXCLUDED.created_time,
			updated_time = EXCLUDED.updated_time,
			properties = EXCLUDED.properties,
			synced_at = now()`,
		c.ID, c.AccountID, c.Status, c.ChannelID, c.AssigneeID, c.BotAssigned,
		nullTime(c.CreatedTime), nullTime(c.UpdatedTime), props,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation %s: %w", c.ID, err)
	}
	return nil
}

// UnresolvedConversations returns conversations whose status is not
// terminal and whose creation time falls after since, oldest-updated
// first. Conversations older than the horizon are presumed abandoned.
func (s *Store) UnresolvedConversations(ctx context.Context, since time.Time) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, status, channel_id, assignee_id, bot_assigned,
		       COALESCE(created_time, 'epoch'::timestamptz),
		       COALESCE(updated_time, 'epoch'::timestamptz)
		FROM conversations
		WHERE status <> $1 AND created_time >= $2
		ORDER BY updated_time ASC NULLS FIRST`,
		models.StatusResolved, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list unresolved conversations: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// AllConversations returns every stored conversation, oldest first.
func (s *Store) AllConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, status, channel_id, assignee_id, bot_assigned,
		       COALESCE(created_time, 'epoch'::timestamptz),
		       COALESCE(updated_time, 'epoch'::timestamptz)
		FROM conversations
		ORDER BY created_time ASC NULLS FIRST`,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

// ConversationsByAccount returns an account's conversations, newest first.
func (s *Store) ConversationsByAccount(ctx context.Context, accountID string) ([]models.Conversation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, status, channel_id, assignee_id, bot_assigned,
		       COALESCE(created_time, 'epoch'::timestamptz),
		       COALESCE(updated_time, 'epoch'::timestamptz)
		FROM conversations
		WHERE account_id = $1
		ORDER BY updated_time DESC NULLS LAST`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations for account %s: %w", accountID, err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanConversations(rows rowScanner) ([]models.Conversation, error) {
	var out []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Status, &c.ChannelID, &c.AssigneeID,
			&c.BotAssigned, &c.CreatedTime, &c.UpdatedTime); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
