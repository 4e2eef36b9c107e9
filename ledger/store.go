/*
store.go - Persistence interface for the credit ledger

PURPOSE:
  Defines the interface between the ledger service and the database. Each
  method is a single blocking call; methods that touch more than one row
  must run in one database transaction so that a failure never leaves
  partial state behind.

ATOMIC OPERATIONS:
  RedeemCode:      verify unused + mark used + return value
  RedeemAndCredit: RedeemCode + credit the redeemer's balance
  Purchase:        discount check + stock check + debit + pop stock +
                   record transaction

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (production and tests via ":memory:")

SEE ALSO:
  - ledger.go: Service that adds per-key locking on top of Store
*/
package ledger

import (
	"context"
	"time"
)

// Store persists accounts, codes, products, discounts and purchases.
type Store interface {
	// GetAccount returns the account, or a zero Account for unknown ids.
	GetAccount(ctx context.Context, id Identity) (Account, error)

	// AdjustBalance creates the account if absent, adds delta, and returns
	// the new balance.
	AdjustBalance(ctx context.Context, id Identity, delta int64) (int64, error)

	// SetBlacklisted creates the account if absent and sets the flag
	// without touching the balance. Returns the previous flag.
	SetBlacklisted(ctx context.Context, id Identity, flag bool) (bool, error)

	// RedeemCode atomically marks an unused code as used and returns its
	// value. Returns ErrCodeInvalid for unknown or used codes.
	RedeemCode(ctx context.Context, code string, by Identity, at time.Time) (int64, error)

	// RedeemAndCredit is RedeemCode plus crediting by, in one transaction.
	// Returns the credited value and the new balance.
	RedeemAndCredit(ctx context.Context, code string, by Identity, at time.Time) (int64, int64, error)

	// InsertCodes stores new unused codes atomically.
	// Returns ErrDuplicateCode if any code already exists.
	InsertCodes(ctx context.Context, codes []RedemptionCode) error

	// CodeExists reports whether a code has been issued.
	CodeExists(ctx context.Context, code string) (bool, error)

	// ListCodes returns issued codes, newest first.
	ListCodes(ctx context.Context, includeUsed bool) ([]RedemptionCode, error)

	// SaveProduct inserts a product. Returns ErrDuplicateProduct on name clash.
	SaveProduct(ctx context.Context, p Product) (Product, error)

	// GetProduct returns the product by name. Returns ErrProductNotFound.
	GetProduct(ctx context.Context, name string) (Product, error)

	// ListProducts returns all products ordered by name, with stock counts.
	ListProducts(ctx context.Context) ([]Product, error)

	// DeleteProduct removes a product and its unsold stock.
	DeleteProduct(ctx context.Context, name string) error

	// AddStock appends stock items to the named product and returns the new
	// stock count.
	AddStock(ctx context.Context, name string, items []string) (int, error)

	// ListStock returns the unsold stock items of a product in sale order.
	// Returns ErrProductNotFound.
	ListStock(ctx context.Context, name string) ([]string, error)

	// RemoveStock deletes the stock items at the given 1-based positions of
	// ListStock order, all or nothing. Returns the number removed and the
	// remaining stock, or *InvalidStockEntriesError.
	RemoveStock(ctx context.Context, name string, entries []int) (int, int, error)

	// SaveDiscount inserts a discount code. Returns ErrDuplicateDiscount.
	SaveDiscount(ctx context.Context, d DiscountCode) error

	// ListDiscounts returns discount codes active at now.
	ListDiscounts(ctx context.Context, now time.Time) ([]DiscountCode, error)

	// DeleteDiscount removes a discount code. Returns whether it existed.
	DeleteDiscount(ctx context.Context, code string) (bool, error)

	// PurgeDiscounts deletes codes expired at now or with no uses left.
	PurgeDiscounts(ctx context.Context, now time.Time) (int, error)

	// Purchase executes an order in one transaction.
	Purchase(ctx context.Context, order PurchaseOrder) (Receipt, error)

	// PurchaseExists reports whether a purchase id is taken.
	PurchaseExists(ctx context.Context, purchaseID string) (bool, error)

	// GetPurchase returns a purchase by id. Returns ErrPurchaseNotFound.
	GetPurchase(ctx context.Context, purchaseID string) (Purchase, error)

	// ListPurchases returns the most recent purchases of id, newest first.
	ListPurchases(ctx context.Context, id Identity, limit int) ([]Purchase, error)
}
