// Package transaction defines the immutable transaction input and the
// per-account history window that feeds velocity and novelty features.
package transaction

import (
	"context"
	"strconv"
	"time"

	"github.com/okanzdmr/fraudgate/internal/validation"
)

// Type classifies a transaction.
type Type string

const (
	TypePurchase   Type = "purchase"
	TypeWithdrawal Type = "withdrawal"
	TypeTransfer   Type = "transfer"
	TypeDeposit    Type = "deposit"
	TypePayment    Type = "payment"
	TypeRefund     Type = "refund"
)

// Channel is the payment channel a transaction arrived through.
type Channel string

const (
	ChannelOnline Channel = "online"
	ChannelPOS    Channel = "pos"
	ChannelATM    Channel = "atm"
	ChannelMobile Channel = "mobile"
)

// MaxAmount is the hard ceiling on a single transaction amount.
const MaxAmount = 100000

// Transaction is the immutable scoring input. Amounts travel as decimal
// strings on the wire; use AmountValue for math.
type Transaction struct {
	ID                   string    `json:"transactionId"`
	AccountID            string    `json:"accountId"`
	Counterparty         string    `json:"counterparty"`
	DeviceFingerprint    string    `json:"deviceFingerprint,omitempty"`
	Amount               string    `json:"amount"`
	Currency             string    `json:"currency"`
	Type                 Type      `json:"type"`
	Channel              Channel   `json:"channel"`
	MerchantID           string    `json:"merchantId,omitempty"`
	MerchantCategory     string    `json:"merchantCategory"`
	MerchantCategoryCode string    `json:"merchantCategoryCode,omitempty"`
	Location             string    `json:"location,omitempty"` // ISO 3166-1 alpha-2
	IPAddress            string    `json:"ipAddress,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

// AmountValue parses the decimal amount string.
func (t *Transaction) AmountValue() (float64, error) {
	return strconv.ParseFloat(t.Amount, 64)
}

// Validate checks the transaction against the input schema.
func (t *Transaction) Validate() validation.ValidationErrors {
	amount, amountErr := t.AmountValue()

	errs := validation.Validate(
		validation.Required("transactionId", t.ID),
		validation.Required("accountId", t.AccountID),
		validation.Required("counterparty", t.Counterparty),
		validation.Required("amount", t.Amount),
		validation.Required("currency", t.Currency),
		validation.ValidCurrency("currency", t.Currency),
		validation.OneOf("type", string(t.Type),
			string(TypePurchase), string(TypeWithdrawal), string(TypeTransfer),
			string(TypeDeposit), string(TypePayment), string(TypeRefund)),
		validation.OneOf("channel", string(t.Channel),
			string(ChannelOnline), string(ChannelPOS), string(ChannelATM), string(ChannelMobile)),
		validation.ValidMerchantCategory("merchantCategoryCode", t.MerchantCategoryCode),
		validation.ValidCountry("location", t.Location),
		validation.MaxLength("transactionId", t.ID, 64),
		validation.MaxLength("accountId", t.AccountID, 64),
		validation.MaxLength("counterparty", t.Counterparty, 128),
	)

	if t.Amount != "" {
		if amountErr != nil {
			errs = append(errs, validation.ValidationError{Field: "amount", Message: "must be a decimal number"})
		} else {
			errs = append(errs,
				validation.Validate(
					validation.PositiveAmount("amount", amount),
					validation.MaxAmount("amount", amount, MaxAmount),
				)...)
		}
	}
	if t.Timestamp.IsZero() {
		errs = append(errs, validation.ValidationError{Field: "timestamp", Message: "is required"})
	}
	return errs
}

// HistoryEntry is one prior transaction in an account's sliding window.
type HistoryEntry struct {
	Counterparty     string    `json:"counterparty"`
	Amount           float64   `json:"amount"`
	MerchantCategory string    `json:"merchantCategory"`
	Location         string    `json:"location"`
	Channel          Channel   `json:"channel"`
	Timestamp        time.Time `json:"timestamp"`
}

// History window bounds.
const (
	WindowDuration = 24 * time.Hour
	MaxWindowSize  = 1000
)

// HistoryStore holds per-account sliding windows of recent activity.
type HistoryStore interface {
	Append(ctx context.Context, accountID string, entry HistoryEntry) error
	// Window returns entries newer than now-WindowDuration, oldest first,
	// capped at MaxWindowSize. A nil slice means no history is known.
	Window(ctx context.Context, accountID string, now time.Time) ([]HistoryEntry, error)
}
