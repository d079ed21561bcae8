package store

import (
	"context"
	"fmt"

	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

// UpsertAnalysis writes the classification result for a message. Unique
// on message ID; last write wins.
func (s *Store) UpsertAnalysis(ctx context.Context, a models.MessageAnalysis) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO message_analyses (message_id, language, category, tag, confidence, model, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (message_id) DO UPDATE SET
			language = EXCLUDED.language,
			category = EXCLUDED.category,
			tag = EXCLUDED.tag,
			confidence = EXCLUDED.confidence,
			model = EXCLUDED.model,
			analyzed_at = EXCLUDED.analyzed_at`,
		a.MessageID, a.Language, a.Category, a.Tag, a.Confidence, a.Model, a.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert analysis for message %s: %w", a.MessageID, err)
	}
	return nil
}
