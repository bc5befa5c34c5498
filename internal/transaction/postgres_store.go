package transaction

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okanzdmr/fraudgate/internal/retry"
)

// PostgresHistoryStore persists account history in PostgreSQL.
type PostgresHistoryStore struct {
	db *sql.DB
}

// NewPostgresHistoryStore creates a PostgreSQL-backed history store.
func NewPostgresHistoryStore(db *sql.DB) *PostgresHistoryStore {
	return &PostgresHistoryStore{db: db}
}

// Migrate creates the account_history table if it doesn't exist.
func (s *PostgresHistoryStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS account_history (
			id                BIGSERIAL PRIMARY KEY,
			account_id        VARCHAR(64) NOT NULL,
			counterparty      VARCHAR(128) NOT NULL,
			amount            NUMERIC(12,2) NOT NULL,
			merchant_category VARCHAR(64) NOT NULL DEFAULT '',
			location          VARCHAR(2) NOT NULL DEFAULT '',
			channel           VARCHAR(10) NOT NULL DEFAULT '',
			occurred_at       TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_account_history_window
			ON account_history (account_id, occurred_at DESC);
	`)
	return err
}

func (s *PostgresHistoryStore) Append(ctx context.Context, accountID string, entry HistoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_history (account_id, counterparty, amount, merchant_category, location, channel, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		accountID,
		entry.Counterparty,
		entry.Amount,
		entry.MerchantCategory,
		entry.Location,
		string(entry.Channel),
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (s *PostgresHistoryStore) Window(ctx context.Context, accountID string, now time.Time) ([]HistoryEntry, error) {
	cutoff := now.Add(-WindowDuration)

	var result []HistoryEntry
	err := retry.Do(ctx, 3, 50*time.Millisecond, func() error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT counterparty, amount, merchant_category, location, channel, occurred_at
			FROM account_history
			WHERE account_id = $1 AND occurred_at > $2
			ORDER BY occurred_at ASC
			LIMIT $3
		`, accountID, cutoff, MaxWindowSize)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		result = nil
		for rows.Next() {
			var e HistoryEntry
			var channel string
			if err := rows.Scan(&e.Counterparty, &e.Amount, &e.MerchantCategory, &e.Location, &channel, &e.Timestamp); err != nil {
				return err
			}
			e.Channel = Channel(channel)
			result = append(result, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load history window: %w", err)
	}
	return result, nil
}
