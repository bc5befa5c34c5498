//go:build integration

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	store := NewPostgresStore(db)
	ctx := context.Background()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		db.ExecContext(ctx, "DELETE FROM audit_records")
		db.Close()
	}

	return store, cleanup
}

func testRecord(seq uint64, prevHash string) *Record {
	payload, _ := json.Marshal(map[string]any{"decisionId": "dec_1", "action": "allow"})
	hash, _ := ChainHash(seq, prevHash, payload)
	return &Record{
		Sequence:      seq,
		ID:            "aud_" + string(rune('a'+seq)),
		TransactionID: "txn_pg_" + string(rune('a'+seq)),
		DecisionID:    "dec_1",
		Action:        "allow",
		Score:         0.1,
		Payload:       payload,
		PrevHash:      prevHash,
		Hash:          hash,
		RecordedAt:    time.Now().UTC(),
	}
}

func TestPostgres_AppendAndLast(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	last, err := store.Last(ctx)
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if last != nil {
		t.Fatalf("Expected empty chain, got sequence %d", last.Sequence)
	}

	rec := testRecord(1, GenesisHash)
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	last, err = store.Last(ctx)
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if last == nil || last.Sequence != 1 {
		t.Fatalf("Expected head at sequence 1, got %v", last)
	}
	if last.Hash != rec.Hash {
		t.Errorf("Expected hash %s, got %s", rec.Hash, last.Hash)
	}
}

func TestPostgres_ByTransaction(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	rec := testRecord(1, GenesisHash)
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := store.ByTransaction(ctx, rec.TransactionID)
	if err != nil {
		t.Fatalf("ByTransaction failed: %v", err)
	}
	if got.Sequence != 1 {
		t.Errorf("Expected sequence 1, got %d", got.Sequence)
	}

	_, err = store.ByTransaction(ctx, "txn_nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPostgres_RangeAndList(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	prev := GenesisHash
	for seq := uint64(1); seq <= 5; seq++ {
		rec := testRecord(seq, prev)
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append %d failed: %v", seq, err)
		}
		prev = rec.Hash
	}

	recs, err := store.Range(ctx, 2, 4)
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(recs))
	}
	if recs[0].Sequence != 2 || recs[2].Sequence != 4 {
		t.Errorf("Expected sequences 2..4, got %d..%d", recs[0].Sequence, recs[2].Sequence)
	}

	page, err := store.List(ctx, 3, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("Expected 2 records after sequence 3, got %d", len(page))
	}

	seq, err := store.LastSequence(ctx)
	if err != nil {
		t.Fatalf("LastSequence failed: %v", err)
	}
	if seq != 5 {
		t.Errorf("Expected head sequence 5, got %d", seq)
	}
}

func TestPostgres_LedgerOverStore(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	ledger := NewLedger(store)

	for i := 0; i < 3; i++ {
		d := testDecision("txn_chain_"+string(rune('a'+i)), "allow", 0.1)
		if _, err := ledger.Append(ctx, d); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	result, err := ledger.VerifyChain(ctx, 0, 0)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if !result.Valid {
		t.Errorf("Expected valid chain, broken at %d", result.BrokenAt)
	}
	if result.Checked != 3 {
		t.Errorf("Expected 3 checked, got %d", result.Checked)
	}
}
