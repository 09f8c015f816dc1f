package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by repositories, services and the HTTP layer.
// Callers match with errors.Is; more specific sentinels wrap these.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConflict            = errors.New("conflict")
	ErrExternalService     = errors.New("external service failure")
	ErrRollbackExhausted   = errors.New("rollback retries exhausted")
)

var (
	ErrAlreadyReversed = fmt.Errorf("transaction already reversed: %w", ErrConflict)
	ErrNotReversible   = fmt.Errorf("transaction cannot be reversed: %w", ErrConflict)
)
