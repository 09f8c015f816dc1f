package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BillType string

const (
	BillElectricity BillType = "ELECTRICITY"
	BillWater       BillType = "WATER"
	BillInternet    BillType = "INTERNET"
	BillCableTV     BillType = "CABLE_TV"
)

func (b BillType) Valid() bool {
	switch b {
	case BillElectricity, BillWater, BillInternet, BillCableTV:
		return true
	default:
		return false
	}
}

type BillPaymentStatus string

const (
	BillPaymentPending    BillPaymentStatus = "PENDING"
	BillPaymentProcessing BillPaymentStatus = "PROCESSING"
	BillPaymentCompleted  BillPaymentStatus = "COMPLETED"
	BillPaymentFailed     BillPaymentStatus = "FAILED"
)

var billPaymentTransitions = map[BillPaymentStatus][]BillPaymentStatus{
	BillPaymentPending:    {BillPaymentProcessing, BillPaymentCompleted, BillPaymentFailed},
	BillPaymentProcessing: {BillPaymentCompleted, BillPaymentFailed},
}

func (s BillPaymentStatus) CanTransitionTo(next BillPaymentStatus) bool {
	if s == next {
		return true
	}

	for _, allowed := range billPaymentTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

func (s BillPaymentStatus) Terminal() bool {
	return s == BillPaymentCompleted || s == BillPaymentFailed
}

// ProviderData holds whatever extra fields the provider returned.
type ProviderData map[string]any

func (p ProviderData) Value() (driver.Value, error) {
	if p == nil {
		return []byte("{}"), nil
	}

	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal provider data: %w", err)
	}

	return b, nil
}

func (p *ProviderData) Scan(src any) error {
	var b []byte

	switch v := src.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("scan provider data: unsupported type %T", src)
	}

	if len(b) == 0 {
		*p = nil
		return nil
	}

	return json.Unmarshal(b, p)
}

type BillPayment struct {
	ID                uuid.UUID         `json:"id"`
	TransactionID     uuid.UUID         `json:"transactionId"`
	BillType          BillType          `json:"billType"`
	BillReference     string            `json:"billReference"`
	MeterNumber       string            `json:"meterNumber"`
	CustomerName      string            `json:"customerName"`
	Status            BillPaymentStatus `json:"status"`
	ExternalReference string            `json:"externalReference,omitempty"`
	Token             string            `json:"token,omitempty"`
	FailureReason     string            `json:"failureReason,omitempty"`
	AdditionalData    ProviderData      `json:"additionalData,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`

	// Joined from the linked transaction and wallet.
	Amount decimal.Decimal `json:"amount"`
	UserID uuid.UUID       `json:"userId"`
}

type CreateBillPayment struct {
	BillType      BillType        `json:"billType"`
	BillReference string          `json:"billReference"`
	Amount        decimal.Decimal `json:"amount"`
	CustomerName  string          `json:"customerName"`
	MeterNumber   string          `json:"meterNumber"`
}

// Validate normalizes string fields in place and checks the request.
func (c *CreateBillPayment) Validate() error {
	c.BillReference = strings.TrimSpace(c.BillReference)
	c.CustomerName = strings.TrimSpace(c.CustomerName)
	c.MeterNumber = strings.TrimSpace(c.MeterNumber)

	if !c.BillType.Valid() {
		return fmt.Errorf("unknown bill type %q: %w", c.BillType, ErrInvalidArgument)
	}

	if len(c.BillReference) < 3 {
		return fmt.Errorf("billReference must be at least 3 characters: %w", ErrInvalidArgument)
	}

	if c.CustomerName == "" {
		return fmt.Errorf("customerName is required: %w", ErrInvalidArgument)
	}

	if c.MeterNumber == "" {
		return fmt.Errorf("meterNumber is required: %w", ErrInvalidArgument)
	}

	return ValidateAmount(c.Amount)
}

// ProviderResult is a successful settlement as reported by the provider.
type ProviderResult struct {
	Reference string
	Token     string
	Data      ProviderData
}
