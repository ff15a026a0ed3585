package repositories

import "fmt"

// StockErrorCode enumerates repository error causes for stock ledger operations.
type StockErrorCode string

const (
	// StockErrorUnknown represents an unspecified failure.
	StockErrorUnknown StockErrorCode = "stock_unknown"
	// StockErrorInsufficient indicates the requested quantity exceeds availability.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorNotFound indicates the SKU has no ledger record.
	StockErrorNotFound StockErrorCode = "stock_not_found"
	// StockErrorInvalidLine indicates a line with a blank SKU or non-positive quantity.
	StockErrorInvalidLine StockErrorCode = "stock_invalid_line"
)

// StockError wraps ledger failures with machine readable codes so services can map
// them onto their own sentinels.
type StockError struct {
	Op      string
	Code    StockErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed stock ledger error.
func NewStockError(code StockErrorCode, message string, err error) *StockError {
	if message == "" {
		message = string(code)
	}
	return &StockError{Code: code, Message: message, Err: err}
}

// ConflictErrorCode enumerates compare-and-set failures surfaced by order updates.
type ConflictErrorCode string

const (
	// ConflictErrorStatusMismatch indicates the order was not in the expected status.
	ConflictErrorStatusMismatch ConflictErrorCode = "conflict_status_mismatch"
	// ConflictErrorDuplicateEvent indicates the webhook event id was already recorded.
	ConflictErrorDuplicateEvent ConflictErrorCode = "conflict_duplicate_event"
)

// ConflictError reports a lost compare-and-set race on an order document.
type ConflictError struct {
	Code    ConflictErrorCode
	Message string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// IsNotFound implements RepositoryError.
func (e *ConflictError) IsNotFound() bool { return false }

// IsConflict implements RepositoryError.
func (e *ConflictError) IsConflict() bool { return true }

// IsUnavailable implements RepositoryError.
func (e *ConflictError) IsUnavailable() bool { return false }

// NewConflictError constructs a typed conflict error.
func NewConflictError(code ConflictErrorCode, message string) *ConflictError {
	if message == "" {
		message = string(code)
	}
	return &ConflictError{Code: code, Message: message}
}
