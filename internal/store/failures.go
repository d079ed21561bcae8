package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

// RecordFailure writes one retry-ledger entry for a failed classification.
// A first failure inserts with attempts=1; repeats increment the counter
// and push the next retry out. Attempts only ever grow.
func (s *Store) RecordFailure(ctx context.Context, f models.AnalysisFailure) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_failures
			(message_id, conversation_id, last_error, kind, attempts, last_attempt_at, next_retry_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
		ON CONFLICT (message_id) DO UPDATE SET
			conversation_id = EXCLUDED.conversation_id,
			last_error = EXCLUDED.last_error,
			kind = EXCLUDED.kind,
			attempts = analysis_failures.attempts + 1,
			last_attempt_at = EXCLUDED.last_attempt_at,
			next_retry_at = EXCLUDED.next_retry_at`,
		f.MessageID, f.ConversationID, f.LastError, string(f.Kind), f.LastAttemptAt, f.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("record failure for message %s: %w", f.MessageID, err)
	}
	return nil
}

// RetryableMessages returns messages whose ledger entry is due for retry:
// next retry at or before now and attempts below the poison-pill cutoff.
// Short messages are excluded here too: a ledger entry for one would
// otherwise be returned forever, since the engine skips it without
// advancing its due time. Ordered by due time so the oldest failures go
// first.
func (s *Store) RetryableMessages(ctx context.Context, now time.Time, limit int) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.id, m.conversation_id, m.actor_type, m.content,
		       COALESCE(m.created_time, 'epoch'::timestamptz), m.rating
		FROM analysis_failures f
		JOIN messages m ON m.id = f.message_id
		LEFT JOIN message_analyses a ON a.message_id = m.id
		WHERE f.next_retry_at <= $1
		  AND f.attempts < $2
		  AND a.message_id IS NULL
		  AND char_length(m.content) > 10
		ORDER BY f.next_retry_at ASC
		LIMIT $3`,
		now, models.MaxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list retryable messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// FailureAttempts returns the current attempt count for a message, or 0
// when no ledger entry exists.
func (s *Store) FailureAttempts(ctx context.Context, messageID string) (int, error) {
	var attempts int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT attempts FROM analysis_failures WHERE message_id = $1), 0)`,
		messageID,
	).Scan(&attempts)
	if err != nil {
		return 0, fmt.Errorf("failure attempts for %s: %w", messageID, err)
	}
	return attempts, nil
}
