package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionWalletFunding TransactionType = "WALLET_FUNDING"
	TransactionBillPayment   TransactionType = "BILL_PAYMENT"
	TransactionRefund        TransactionType = "REFUND"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionWalletFunding, TransactionBillPayment, TransactionRefund:
		return true
	default:
		return false
	}
}

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "PENDING"
	TransactionProcessing TransactionStatus = "PROCESSING"
	TransactionCompleted  TransactionStatus = "COMPLETED"
	TransactionFailed     TransactionStatus = "FAILED"
	TransactionReversed   TransactionStatus = "REVERSED"
)

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionPending:    {TransactionProcessing, TransactionCompleted, TransactionFailed, TransactionReversed},
	TransactionProcessing: {TransactionCompleted, TransactionFailed, TransactionReversed},
	TransactionFailed:     {TransactionReversed},
}

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionPending, TransactionProcessing, TransactionCompleted, TransactionFailed, TransactionReversed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether s may move to next. Same-status moves are
// allowed and treated as no-ops by callers.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s == next {
		return true
	}

	for _, allowed := range transactionTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

func (s TransactionStatus) Terminal() bool {
	return s == TransactionCompleted || s == TransactionReversed
}

// Metadata is the free-form JSONB payload attached to a transaction.
type Metadata struct {
	Description           string           `json:"description,omitempty"`
	PreviousBalance       *decimal.Decimal `json:"previousBalance,omitempty"`
	OriginalTransactionID *uuid.UUID       `json:"originalTransactionId,omitempty"`
	BillType              BillType         `json:"billType,omitempty"`
	BillReference         string           `json:"billReference,omitempty"`
	Reason                string           `json:"reason,omitempty"`
}

func (m Metadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return b, nil
}

func (m *Metadata) Scan(src any) error {
	var b []byte

	switch v := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("scan metadata: unsupported type %T", src)
	}

	if len(b) == 0 {
		*m = Metadata{}
		return nil
	}

	return json.Unmarshal(b, m)
}

// Transaction is a ledger entry. Amount is always positive; Type decides the
// direction of the balance effect.
type Transaction struct {
	ID                     uuid.UUID         `json:"id"`
	WalletID               uuid.UUID         `json:"walletId"`
	Type                   TransactionType   `json:"type"`
	Amount                 decimal.Decimal   `json:"amount"`
	Status                 TransactionStatus `json:"status"`
	ReferenceTransactionID *uuid.UUID        `json:"referenceTransactionId,omitempty"`
	FailureReason          string            `json:"failureReason,omitempty"`
	Metadata               Metadata          `json:"metadata"`
	CreatedAt              time.Time         `json:"createdAt"`
	UpdatedAt              time.Time         `json:"updatedAt"`
}

// SignedAmount is the transaction's effect on its wallet balance.
func (t Transaction) SignedAmount() decimal.Decimal {
	switch t.Type {
	case TransactionBillPayment:
		return t.Amount.Neg()
	default:
		return t.Amount
	}
}

const RefundDescription = "Refund for failed transaction"

// NewReversal builds the PENDING REFUND entry that compensates a debit.
// previousBalance is the wallet balance before the refund is credited.
func NewReversal(original Transaction, previousBalance decimal.Decimal, reason string) (Transaction, error) {
	if original.Type != TransactionBillPayment {
		return Transaction{}, fmt.Errorf("reverse %s transaction %s: %w", original.Type, original.ID, ErrInvalidArgument)
	}

	if original.Status == TransactionReversed {
		return Transaction{}, fmt.Errorf("reverse %s: %w", original.ID, ErrAlreadyReversed)
	}

	if !original.Status.CanTransitionTo(TransactionReversed) {
		return Transaction{}, fmt.Errorf("reverse %s in status %s: %w", original.ID, original.Status, ErrNotReversible)
	}

	origID := original.ID
	prev := previousBalance

	return Transaction{
		ID:                     uuid.New(),
		WalletID:               original.WalletID,
		Type:                   TransactionRefund,
		Amount:                 original.Amount,
		Status:                 TransactionPending,
		ReferenceTransactionID: &origID,
		Metadata: Metadata{
			Description:           RefundDescription,
			OriginalTransactionID: &origID,
			PreviousBalance:       &prev,
			Reason:                reason,
		},
	}, nil
}

var errAmountPrecision = errors.New("amount must have at most 2 decimal places")

// ValidateAmount enforces a positive amount with at most two decimals.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %w", ErrInvalidArgument)
	}

	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: %w", errAmountPrecision, ErrInvalidArgument)
	}

	return nil
}
