/*
Package ledger provides the credit ledger core of the bot.

PURPOSE:
  Holds the domain types (accounts, redemption codes, products, discounts,
  purchase records), the persistence interface, and the Ledger service that
  serializes every multi-step mutation per affected key.

KEY CONCEPTS IN THIS FILE (types.go):
  - Identity: opaque chat-platform user id
  - Account: balance + blacklist flag, created implicitly at balance 0
  - RedemptionCode: single-use token worth a fixed number of credits
  - Product / DiscountCode / Purchase: the shop side of the ledger

DESIGN PRINCIPLES:
  1. Integer credits: balances never go negative and never use floats
  2. Single-use codes: a code's value is applied at most once, ever
  3. Append-only purchases: transaction records are never edited

SEE ALSO:
  - store.go: Persistence interface
  - ledger.go: Service with per-key locking
  - store/sqlite/sqlite.go: SQLite implementation
*/
package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTITIES & ACCOUNTS
// =============================================================================

// Identity is an opaque chat-platform user id.
type Identity string

// Mention renders the identity the way the chat platform highlights users.
func (id Identity) Mention() string {
	return fmt.Sprintf("<@%s>", string(id))
}

// Account is a user's credit balance and blacklist flag.
// A missing account behaves like the zero Account.
type Account struct {
	Identity    Identity
	Balance     int64
	Blacklisted bool
}

// =============================================================================
// REDEMPTION CODES
// =============================================================================

// RedemptionCode is a single-use token redeemable for Value credits.
type RedemptionCode struct {
	Code      string
	Value     int64
	Used      bool
	UsedBy    Identity
	UsedAt    *time.Time
	CreatedAt time.Time
}

// =============================================================================
// SHOP
// =============================================================================

// Product is something that can be bought with credits.
// Stock is the number of unsold stock items.
type Product struct {
	ID       int64
	Name     string
	Price    int64
	FilePath string
	Stock    int
}

// DiscountType selects how a discount code reduces the cost of a purchase.
type DiscountType string

const (
	DiscountFixed   DiscountType = "FIXED"
	DiscountPercent DiscountType = "PERCENT"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountFixed || t == DiscountPercent
}

// DiscountCode is a reusable (up to MaxUses) purchase discount.
type DiscountCode struct {
	Code      string
	Amount    int64
	Type      DiscountType
	MaxUses   int
	UsesLeft  int
	ExpiresAt time.Time
}

// Describe renders the discount for chat output, e.g. "10% off".
func (d DiscountCode) Describe() string {
	if d.Type == DiscountPercent {
		return fmt.Sprintf("%d%% off", d.Amount)
	}
	return fmt.Sprintf("%d credits off", d.Amount)
}

// Active reports whether the code can still be applied at now.
func (d DiscountCode) Active(now time.Time) bool {
	return d.UsesLeft > 0 && now.Before(d.ExpiresAt)
}

// PurchaseOrder is the input to a purchase.
type PurchaseOrder struct {
	PurchaseID   string
	Identity     Identity
	ProductName  string
	Quantity     int
	DiscountCode string
	At           time.Time
}

// Purchase is an append-only transaction record.
type Purchase struct {
	PurchaseID     string
	Identity       Identity
	ProductID      int64
	ProductName    string
	Price          int64
	Quantity       int
	OriginalCost   int64
	DiscountAmount int64
	DiscountCode   string
	Cost           int64
	Items          []string
	Timestamp      time.Time
}

// Receipt is what a buyer gets back from a successful purchase.
type Receipt struct {
	Purchase
	Balance int64
}
