package transaction

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func validTransaction() *Transaction {
	return &Transaction{
		ID:               "txn_001",
		AccountID:        "acct_42",
		Counterparty:     "merchant_9",
		Amount:           "125.50",
		Currency:         "USD",
		Type:             TypePurchase,
		Channel:          ChannelOnline,
		MerchantCategory: "grocery",
		Location:         "US",
		Timestamp:        time.Now(),
	}
}

func TestValidate_ValidTransaction(t *testing.T) {
	tx := validTransaction()
	if errs := tx.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid, got %v", errs)
	}
}

func TestValidate_RejectsBadFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Transaction)
		field  string
	}{
		{"missing id", func(tx *Transaction) { tx.ID = "" }, "transactionId"},
		{"missing account", func(tx *Transaction) { tx.AccountID = "" }, "accountId"},
		{"lowercase currency", func(tx *Transaction) { tx.Currency = "usd" }, "currency"},
		{"negative amount", func(tx *Transaction) { tx.Amount = "-5" }, "amount"},
		{"zero amount", func(tx *Transaction) { tx.Amount = "0" }, "amount"},
		{"non-numeric amount", func(tx *Transaction) { tx.Amount = "ten" }, "amount"},
		{"amount over ceiling", func(tx *Transaction) { tx.Amount = "100001" }, "amount"},
		{"unknown type", func(tx *Transaction) { tx.Type = "chargeback" }, "type"},
		{"unknown channel", func(tx *Transaction) { tx.Channel = "fax" }, "channel"},
		{"bad category code", func(tx *Transaction) { tx.MerchantCategoryCode = "79b5" }, "merchantCategoryCode"},
		{"bad location", func(tx *Transaction) { tx.Location = "USA" }, "location"},
		{"zero timestamp", func(tx *Transaction) { tx.Timestamp = time.Time{} }, "timestamp"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tx := validTransaction()
			tc.mutate(tx)
			errs := tx.Validate()
			if len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}
			found := false
			for _, e := range errs {
				if e.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected error on field %q, got %v", tc.field, errs)
			}
		})
	}
}

func TestValidate_AmountCeilingBoundary(t *testing.T) {
	tx := validTransaction()
	tx.Amount = "100000"
	if errs := tx.Validate(); len(errs) != 0 {
		t.Fatalf("amount at the ceiling should be valid, got %v", errs)
	}
}

func TestMemoryHistoryStore_WindowPrunesOldEntries(t *testing.T) {
	s := NewMemoryHistoryStore()
	ctx := context.Background()
	now := time.Now()

	old := HistoryEntry{Counterparty: "m1", Amount: 10, Timestamp: now.Add(-25 * time.Hour)}
	recent := HistoryEntry{Counterparty: "m2", Amount: 20, Timestamp: now.Add(-time.Hour)}

	if err := s.Append(ctx, "acct_1", old); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "acct_1", recent); err != nil {
		t.Fatal(err)
	}

	window, err := s.Window(ctx, "acct_1", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 1 {
		t.Fatalf("expected 1 entry in window, got %d", len(window))
	}
	if window[0].Counterparty != "m2" {
		t.Fatalf("expected recent entry, got %+v", window[0])
	}
}

func TestMemoryHistoryStore_UnknownAccount(t *testing.T) {
	s := NewMemoryHistoryStore()
	window, err := s.Window(context.Background(), "nobody", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if window != nil {
		t.Fatalf("expected nil window for unknown account, got %v", window)
	}
}

func TestMemoryHistoryStore_CapsWindowSize(t *testing.T) {
	s := NewMemoryHistoryStore()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < MaxWindowSize+50; i++ {
		e := HistoryEntry{
			Counterparty: fmt.Sprintf("m%d", i),
			Amount:       1,
			Timestamp:    now.Add(-time.Duration(MaxWindowSize+50-i) * time.Second),
		}
		if err := s.Append(ctx, "acct_1", e); err != nil {
			t.Fatal(err)
		}
	}

	window, err := s.Window(ctx, "acct_1", now)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != MaxWindowSize {
		t.Fatalf("expected window capped at %d, got %d", MaxWindowSize, len(window))
	}
	// Newest entries survive the cap.
	if window[len(window)-1].Counterparty != fmt.Sprintf("m%d", MaxWindowSize+49) {
		t.Fatalf("expected newest entry last, got %+v", window[len(window)-1])
	}
}

func TestMemoryHistoryStore_IndependentAccounts(t *testing.T) {
	s := NewMemoryHistoryStore()
	ctx := context.Background()
	now := time.Now()

	_ = s.Append(ctx, "acct_1", HistoryEntry{Counterparty: "m1", Amount: 10, Timestamp: now})
	window, err := s.Window(ctx, "acct_2", now)
	if err != nil {
		t.Fatal(err)
	}
	if window != nil {
		t.Fatalf("acct_2 should have no history, got %v", window)
	}
}

func TestAmountValue(t *testing.T) {
	tx := &Transaction{Amount: "99.95"}
	v, err := tx.AmountValue()
	if err != nil {
		t.Fatal(err)
	}
	if v != 99.95 {
		t.Fatalf("expected 99.95, got %v", v)
	}

	tx.Amount = "abc"
	if _, err := tx.AmountValue(); err == nil {
		t.Fatal("expected parse error")
	}
}
