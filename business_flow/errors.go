// Package businessflow contains the core business logic and use cases for the
// notification scheduling workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Fixture and ledger errors
	ErrFixtureNotFound     = errors.New("fixture not found")
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")

	// Webhook errors
	ErrWebhookBatchEmpty = errors.New("webhook batch contains no events")

	// Run trigger errors
	ErrUnknownRunName     = errors.New("unknown run name")
	ErrRecipientsRequired = errors.New("at least one recipient is required")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsFixtureNotFound(err error) bool {
	return errors.Is(err, ErrFixtureNotFound)
}

func IsLedgerEntryNotFound(err error) bool {
	return errors.Is(err, ErrLedgerEntryNotFound)
}

func IsUnknownRunName(err error) bool {
	return errors.Is(err, ErrUnknownRunName)
}
