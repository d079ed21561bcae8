package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

// UpsertMessage inserts or refreshes a message keyed by its external (or
// synthesized) ID.
func (s *Store) UpsertMessage(ctx context.Context, m models.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, actor_type, content, created_time, rating, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (id) DO UPDATE SET
			conversation_id = EXCLUDED.conversation_id,
			actor_type = EXCLUDED.actor_type,
			content = EXCLUDED.content,
			created_time = EXCLUDED.created_time,
			rating = EXCLUDED.rating,
			synced_at = now()`,
		m.ID, m.ConversationID, m.Role, m.Content, nullTime(m.CreatedTime), m.Rating,
	)
	if err != nil {
		return fmt.Errorf("upsert message %s: %w", m.ID, err)
	}
	return nil
}

// MessageIDs returns the set of message IDs already stored for a
// conversation. Backfill uses it to skip redundant upserts at the source.
func (s *Store) MessageIDs(ctx context.Context, conversationID string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list message ids for %s: %w", conversationID, err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// UnanalyzedMessages returns end-user messages eligible for first-time
// classification: no analysis row yet and no failure row at or past the
// attempt cutoff. Ordered by conversation then creation time so callers
// can batch per conversation. The coarse length filter here is refined by
// the engine's word-count rule.
func (s *Store) UnanalyzedMessages(ctx context.Context, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.conversation_id, m.actor_type, m.content,
		       COALESCE(m.created_time, 'epoch'::timestamptz), m.rating
		FROM messages m
		LEFT JOIN message_analyses a ON a.message_id = m.id
		LEFT JOIN analysis_failures f ON f.message_id = m.id
		WHERE m.actor_type = $1
		  AND a.message_id IS NULL
		  AND char_length(m.content) > 10
		  AND (f.message_id IS NULL OR f.attempts < $2)
		ORDER BY m.conversation_id, m.created_time ASC
		LIMIT $3`,
		models.RoleUser, models.MaxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unanalyzed messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MessageWithAnalysis pairs a message with its classification, when one
// exists.
type MessageWithAnalysis struct {
	Message  models.Message
	Analysis *models.MessageAnalysis
}

// ConversationMessages returns a conversation's messages in creation
// order, each joined with its analysis row if present.
func (s *Store) ConversationMessages(ctx context.Context, conversationID string) ([]MessageWithAnalysis, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.conversation_id, m.actor_type, m.content,
		       COALESCE(m.created_time, 'epoch'::timestamptz), m.rating,
		       a.message_id, a.language, a.category, a.tag, a.confidence, a.model, a.analyzed_at
		FROM messages m
		LEFT JOIN message_analyses a ON a.message_id = m.id
		WHERE m.conversation_id = $1
		ORDER BY m.created_time ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", conversationID, err)
	}
	defer rows.Close()

	var out []MessageWithAnalysis
	for rows.Next() {
		var item MessageWithAnalysis
		var a struct {
			MessageID  *string
			Language   *string
			Category   *string
			Tag        *string
			Confidence *float64
			Model      *string
			AnalyzedAt *time.Time
		}
		if err := rows.Scan(&item.Message.ID, &item.Message.ConversationID,
			&item.Message.Role, &item.Message.Content, &item.Message.CreatedTime,
			&item.Message.Rating,
			&a.MessageID, &a.Language, &a.Category, &a.Tag, &a.Confidence, &a.Model, &a.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if a.MessageID != nil {
			item.Analysis = &models.MessageAnalysis{
				MessageID:  *a.MessageID,
				Language:   *a.Language,
				Category:   *a.Category,
				Tag:        *a.Tag,
				Confidence: *a.Confidence,
				Model:      *a.Model,
				AnalyzedAt: *a.AnalyzedAt,
			}
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanMessages(rows rowScanner) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content,
			&m.CreatedTime, &m.Rating); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
