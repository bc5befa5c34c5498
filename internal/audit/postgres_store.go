package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okanzdmr/fraudgate/internal/retry"
)

// PostgresStore persists audit records in PostgreSQL. The primary key on
// sequence makes concurrent appends of the same link fail loudly instead
// of forking the chain.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the audit_records table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_records (
			sequence       BIGINT PRIMARY KEY,
			audit_id       VARCHAR(40) NOT NULL UNIQUE,
			transaction_id VARCHAR(64) NOT NULL,
			decision_id    VARCHAR(40) NOT NULL,
			action         VARCHAR(10) NOT NULL,
			score          NUMERIC(5,4) NOT NULL,
			payload        JSONB NOT NULL,
			prev_hash      CHAR(64) NOT NULL,
			hash           CHAR(64) NOT NULL,
			recorded_at    TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_records_transaction
			ON audit_records (transaction_id);
	`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, rec *Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_records (sequence, audit_id, transaction_id, decision_id, action, score, payload, prev_hash, hash, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		rec.Sequence,
		rec.ID,
		rec.TransactionID,
		rec.DecisionID,
		rec.Action,
		rec.Score,
		[]byte(rec.Payload),
		rec.PrevHash,
		rec.Hash,
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

const recordColumns = `sequence, audit_id, transaction_id, decision_id, action, score, payload, prev_hash, hash, recorded_at`

func (s *PostgresStore) Last(ctx context.Context) (*Record, error) {
	var rec *Record
	err := retry.Do(ctx, 3, 50*time.Millisecond, func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM audit_records ORDER BY sequence DESC LIMIT 1`)
		r, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			rec = nil
			return nil
		}
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read chain head: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ByTransaction(ctx context.Context, transactionID string) (*Record, error) {
	var rec *Record
	err := retry.Do(ctx, 3, 50*time.Millisecond, func() error {
		row := s.db.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM audit_records WHERE transaction_id = $1 ORDER BY sequence DESC LIMIT 1`,
			transactionID)
		r, err := scanRecord(row)
		if errors.Is(err, sql.ErrNoRows) {
			return retry.Permanent(ErrNotFound)
		}
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load audit record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Range(ctx context.Context, from, to uint64) ([]*Record, error) {
	return s.query(ctx,
		`SELECT `+recordColumns+` FROM audit_records WHERE sequence >= $1 AND sequence <= $2 ORDER BY sequence ASC`,
		from, to)
}

func (s *PostgresStore) List(ctx context.Context, afterSeq uint64, limit int) ([]*Record, error) {
	return s.query(ctx,
		`SELECT `+recordColumns+` FROM audit_records WHERE sequence > $1 ORDER BY sequence ASC LIMIT $2`,
		afterSeq, limit)
}

func (s *PostgresStore) LastSequence(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	err := retry.Do(ctx, 3, 50*time.Millisecond, func() error {
		return s.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM audit_records`).Scan(&seq)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read chain length: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Record, error) {
	var result []*Record
	err := retry.Do(ctx, 3, 50*time.Millisecond, func() error {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()

		result = nil
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			result = append(result, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load audit records: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var payload []byte
	if err := row.Scan(
		&rec.Sequence,
		&rec.ID,
		&rec.TransactionID,
		&rec.DecisionID,
		&rec.Action,
		&rec.Score,
		&payload,
		&rec.PrevHash,
		&rec.Hash,
		&rec.RecordedAt,
	); err != nil {
		return nil, err
	}
	rec.Payload = payload
	return &rec, nil
}
