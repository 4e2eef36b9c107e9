/*
errors.go - Centralized error types for the credit ledger

PURPOSE:
  All error types in one place. Business outcomes (invalid code, missing
  product, insufficient credits) are sentinels or structured errors that
  callers turn into specific replies. I/O failures are wrapped in
  *StoreError and are never shown to chat users.

ERROR CATEGORIES:
  1. Business outcomes - expected, answered with a specific message
  2. Store errors - database-level failures, logged and reduced to a
     generic reply

USAGE:
    credits, err := l.RedeemCode(ctx, code)
    if errors.Is(err, ledger.ErrCodeInvalid) {
        // "Invalid or already used code!"
    }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCodeInvalid is returned when a redemption code does not exist or
	// has already been used.
	ErrCodeInvalid = errors.New("invalid or already used code")

	// ErrDuplicateCode is returned when inserting a code that already exists.
	ErrDuplicateCode = errors.New("duplicate redemption code")

	// ErrInvalidAmount is returned for non-positive credit amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidQuantity is returned for purchases of less than one item.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrProductNotFound is returned when a named product doesn't exist.
	ErrProductNotFound = errors.New("product not found")

	// ErrDuplicateProduct is returned when a product name is taken.
	ErrDuplicateProduct = errors.New("product already exists")

	// ErrDiscountInvalid is returned when a discount code is unknown,
	// expired, or has no uses left.
	ErrDiscountInvalid = errors.New("invalid or expired discount code")

	// ErrDuplicateDiscount is returned when a discount code already exists.
	ErrDuplicateDiscount = errors.New("discount code already exists")

	// ErrInsufficientCredits is returned when a purchase costs more than
	// the buyer's balance.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInsufficientStock is returned when a product has fewer stock items
	// than requested.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrPurchaseNotFound is returned when a purchase id is unknown.
	ErrPurchaseNotFound = errors.New("purchase not found")

	// ErrInvalidCount is returned when generating fewer than 1 or more than
	// MaxGeneratedCodes codes at once.
	ErrInvalidCount = errors.New("code count out of range")

	// ErrEmptyStock is returned when a restock carries no items.
	ErrEmptyStock = errors.New("no stock items given")

	// ErrInvalidDiscount is returned for malformed discount definitions.
	ErrInvalidDiscount = errors.New("invalid discount")

	// ErrStockEntryFormat is returned when a stock entry list cannot be
	// parsed.
	ErrStockEntryFormat = errors.New("invalid stock entry format")

	// ErrInvalidStockEntry is returned when stock entry numbers fall
	// outside a product's stock list.
	ErrInvalidStockEntry = errors.New("invalid stock entry")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StoreError wraps an I/O failure against the ledger store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// InsufficientCreditsError provides details about a balance shortage.
type InsufficientCreditsError struct {
	Need int64
	Have int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: need %d, have %d", e.Need, e.Have)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	Product   string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.Product, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// InvalidStockEntriesError lists entry numbers that do not exist.
type InvalidStockEntriesError struct {
	Entries   []int
	Available int
}

func (e *InvalidStockEntriesError) Error() string {
	return fmt.Sprintf("invalid stock entries %v: %d available", e.Entries, e.Available)
}

func (e *InvalidStockEntriesError) Unwrap() error {
	return ErrInvalidStockEntry
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsBusinessError returns true if the error is an expected outcome that
// deserves a specific reply rather than the generic failure message.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrCodeInvalid) ||
		errors.Is(err, ErrDuplicateCode) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrDuplicateProduct) ||
		errors.Is(err, ErrDiscountInvalid) ||
		errors.Is(err, ErrDuplicateDiscount) ||
		errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInvalidCount) ||
		errors.Is(err, ErrEmptyStock) ||
		errors.Is(err, ErrInvalidDiscount) ||
		errors.Is(err, ErrStockEntryFormat) ||
		errors.Is(err, ErrInvalidStockEntry) ||
		IsNotFound(err)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrPurchaseNotFound)
}

// IsStoreError returns true if the error came from the storage layer.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
