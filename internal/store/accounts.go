package store

import (
	"context"
	"fmt"

	"github.com/Sinisterchilll/cs-analytics/internal/models"
)

// UpsertAccount inserts or refreshes an account keyed by its external ID.
func (s *Store) UpsertAccount(ctx context.Context, a models.Account) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO accounts (id, phone, created_time, synced_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET
			phone = EXCLUDED.phone,
			created_time = EXCLUDED.created_time,
			synced_at = now()`,
		a.ID, a.Phone, nullTime(a.CreatedTime),
	)
	if err != nil {
		return fmt.Errorf("upsert account %s: %w", a.ID, err)
	}
	return nil
}

// SearchAccounts returns accounts whose phone contains the given fragment,
// or all accounts (bounded) when the fragment is empty.
func (s *Store) SearchAccounts(ctx context.Context, phone string, limit int) ([]models.Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, phone, COALESCE(created_time, 'epoch'::timestamptz)
		FROM accounts
		WHERE $1 = '' OR phone LIKE '%' || $1 || '%'
		ORDER BY created_time DESC NULLS LAST
		LIMIT $2`,
		phone, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	defer rows.Close()

	var out []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Phone, &a.CreatedTime); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
