package queue

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProcessBillPayment struct {
	BillPaymentID uuid.UUID       `json:"billPaymentId"`
	TransactionID uuid.UUID       `json:"transactionId"`
	UserID        uuid.UUID       `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
}

type RollbackTransaction struct {
	TransactionID uuid.UUID       `json:"transactionId"`
	UserID        uuid.UUID       `json:"userId"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
}

func NewProcessJob(p ProcessBillPayment) (Job, error) {
	return NewJob(KindProcessBillPayment, p)
}

func NewRollbackJob(p RollbackTransaction) (Job, error) {
	return NewJob(KindRollbackTransaction, p)
}
