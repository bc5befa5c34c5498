// Package audit implements the hash-chained decision ledger. Every
// released decision is recorded as an append-only Record whose hash
// covers the previous record's hash, so any later mutation breaks the
// chain and is detectable by verification.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okanzdmr/fraudgate/internal/decision"
	"github.com/okanzdmr/fraudgate/internal/idgen"
	"github.com/okanzdmr/fraudgate/internal/metrics"
	"github.com/okanzdmr/fraudgate/internal/syncutil"
)

var (
	// ErrAppendFailed means the audit record could not be made durable.
	// No decision may be released when this is returned.
	ErrAppendFailed = errors.New("audit: append failed")

	// ErrNotFound means no audit record exists for the lookup key.
	ErrNotFound = errors.New("audit: record not found")
)

// GenesisHash is the prev-hash of the first record in a chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Record is one link in the audit chain.
type Record struct {
	Sequence      uint64          `json:"sequence"`
	ID            string          `json:"auditId"`
	TransactionID string          `json:"transactionId"`
	DecisionID    string          `json:"decisionId"`
	Action        string          `json:"action"`
	Score         float64         `json:"score"`
	Payload       json.RawMessage `json:"payload"`
	PrevHash      string          `json:"prevHash"`
	Hash          string          `json:"hash"`
	RecordedAt    time.Time       `json:"recordedAt"`
}

// Store persists audit records. Append must reject duplicate sequences.
type Store interface {
	Append(ctx context.Context, rec *Record) error
	Last(ctx context.Context) (*Record, error) // nil, nil when empty
	ByTransaction(ctx context.Context, transactionID string) (*Record, error)
	Range(ctx context.Context, from, to uint64) ([]*Record, error)
	List(ctx context.Context, afterSeq uint64, limit int) ([]*Record, error)
	LastSequence(ctx context.Context) (uint64, error) // 0 when empty
}

// hashEnvelope is the exact byte layout the chain hash covers.
type hashEnvelope struct {
	Sequence uint64          `json:"sequence"`
	PrevHash string          `json:"prevHash"`
	Payload  json.RawMessage `json:"payload"`
}

// ChainHash computes the SHA-256 hex digest linking a record to its
// predecessor.
func ChainHash(sequence uint64, prevHash string, payload json.RawMessage) (string, error) {
	data, err := json.Marshal(hashEnvelope{Sequence: sequence, PrevHash: prevHash, Payload: payload})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Ledger appends decisions to a Store behind a single-writer lock so
// sequence numbers and hash links never interleave.
type Ledger struct {
	store Store
	locks *syncutil.ContextShardedMutex
	name  string
	now   func() time.Time
}

// NewLedger creates a ledger over the given store.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		store: store,
		locks: syncutil.NewContextShardedMutex(),
		name:  "decisions",
		now:   time.Now,
	}
}

// Append records a decision as the next link in the chain. The returned
// record carries the assigned sequence and hash. Any failure is wrapped
// in ErrAppendFailed.
func (l *Ledger) Append(ctx context.Context, d *decision.Decision) (*Record, error) {
	unlock, err := l.locks.LockContext(ctx, l.name)
	if err != nil {
		metrics.AuditAppendsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	defer unlock()

	last, err := l.store.Last(ctx)
	if err != nil {
		metrics.AuditAppendsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: reading chain head: %v", ErrAppendFailed, err)
	}

	seq := uint64(1)
	prevHash := GenesisHash
	if last != nil {
		seq = last.Sequence + 1
		prevHash = last.Hash
	}

	payload, err := json.Marshal(d)
	if err != nil {
		metrics.AuditAppendsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: encoding decision: %v", ErrAppendFailed, err)
	}

	hash, err := ChainHash(seq, prevHash, payload)
	if err != nil {
		metrics.AuditAppendsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: hashing record: %v", ErrAppendFailed, err)
	}

	rec := &Record{
		Sequence:      seq,
		ID:            idgen.WithPrefix("aud_"),
		TransactionID: d.TransactionID,
		DecisionID:    d.ID,
		Action:        string(d.Action),
		Score:         d.Score,
		Payload:       payload,
		PrevHash:      prevHash,
		Hash:          hash,
		RecordedAt:    l.now().UTC(),
	}

	if err := l.store.Append(ctx, rec); err != nil {
		metrics.AuditAppendsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}
	metrics.AuditAppendsTotal.WithLabelValues("ok").Inc()
	return rec, nil
}

// ByTransaction returns the audit record for a transaction.
func (l *Ledger) ByTransaction(ctx context.Context, transactionID string) (*Record, error) {
	return l.store.ByTransaction(ctx, transactionID)
}

// List returns up to limit records with sequence greater than afterSeq.
func (l *Ledger) List(ctx context.Context, afterSeq uint64, limit int) ([]*Record, error) {
	return l.store.List(ctx, afterSeq, limit)
}

// LastSequence returns the chain head sequence, 0 for an empty chain.
func (l *Ledger) LastSequence(ctx context.Context) (uint64, error) {
	return l.store.LastSequence(ctx)
}

// VerifyResult reports a chain verification outcome. BrokenAt is the
// sequence of the first record whose hash or link failed to verify;
// it is 0 when the chain is valid.
type VerifyResult struct {
	Valid    bool   `json:"valid"`
	BrokenAt uint64 `json:"brokenAt,omitempty"`
	From     uint64 `json:"from"`
	To       uint64 `json:"to"`
	Checked  int    `json:"checked"`
}

// VerifyChain recomputes hashes over [from, to] and checks every link.
// from=0 means the chain start; to=0 means the current head.
func (l *Ledger) VerifyChain(ctx context.Context, from, to uint64) (*VerifyResult, error) {
	if from == 0 {
		from = 1
	}
	if to == 0 {
		head, err := l.store.LastSequence(ctx)
		if err != nil {
			metrics.ChainVerificationsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		to = head
	}
	if to < from {
		return &VerifyResult{Valid: true, From: from, To: to}, nil
	}

	// Include the predecessor so the first record's link is checked too.
	loadFrom := from
	if loadFrom > 1 {
		loadFrom--
	}
	records, err := l.store.Range(ctx, loadFrom, to)
	if err != nil {
		metrics.ChainVerificationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result := &VerifyResult{Valid: true, From: from, To: to}
	var prev *Record
	for _, rec := range records {
		if rec.Sequence < from {
			prev = rec
			continue
		}
		if !l.verifyLink(prev, rec) {
			result.Valid = false
			result.BrokenAt = rec.Sequence
			break
		}
		result.Checked++
		prev = rec
	}

	if result.Valid {
		metrics.ChainVerificationsTotal.WithLabelValues("valid").Inc()
	} else {
		metrics.ChainVerificationsTotal.WithLabelValues("broken").Inc()
	}
	return result, nil
}

// verifyLink checks a single record's hash and its link to prev. A nil
// prev is only legal for sequence 1, which must link to the genesis hash.
func (l *Ledger) verifyLink(prev, rec *Record) bool {
	if prev == nil {
		if rec.Sequence == 1 && rec.PrevHash != GenesisHash {
			return false
		}
	} else {
		if rec.Sequence != prev.Sequence+1 {
			return false
		}
		if rec.PrevHash != prev.Hash {
			return false
		}
	}
	expected, err := ChainHash(rec.Sequence, rec.PrevHash, rec.Payload)
	if err != nil {
		return false
	}
	return expected == rec.Hash
}
