package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or missing input. Nothing was written.
	ErrValidation = errors.New("validation failed")
	// ErrIllegalTransition occurs when a command is not allowed in the document's current status.
	ErrIllegalTransition = errors.New("illegal state transition")
	// ErrNegativeStock occurs when a movement would leave a negative quantity.
	ErrNegativeStock = errors.New("negative stock not allowed")
	// ErrInsufficientStock occurs when a request exceeds the available quantity at the source.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrentModification signals a lost update; the caller should retry with fresh data.
	ErrConcurrentModification = errors.New("concurrent modification, reload and retry")
	// ErrPersistence wraps failures of the underlying store.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TransitionError reports a command attempted against a document whose status forbids it.
type TransitionError struct {
	Document string
	Action   string
	Status   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s while status is %s", e.Document, e.Action, e.Status)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// StockError carries the quantities behind ErrNegativeStock and ErrInsufficientStock.
type StockError struct {
	Kind      error
	StoreID   int64
	ProductID int64
	Product   string
	Available int64
	Requested int64
}

func (e *StockError) Error() string {
	name := e.Product
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("%v: %s at store %d has %d, requested %d", e.Kind, name, e.StoreID, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error { return e.Kind }

// PersistenceError wraps a store failure. The enclosing transaction was rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }

// UserSafeMessage returns a message that can be shown to API callers.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrPersistence):
		return "the operation could not be completed, no changes were applied"
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrIllegalTransition),
		errors.Is(err, ErrNegativeStock),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrConcurrentModification),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrIdempotencyConflict):
		return strings.TrimSpace(err.Error())
	default:
		return "unexpected error"
	}
}

// IsNotFound reports whether err is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
