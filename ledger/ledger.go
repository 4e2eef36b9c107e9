/*
ledger.go - Credit ledger service

PURPOSE:
  The Ledger is the only way command handlers touch credits. It validates
  inputs, serializes work per affected key, and delegates to a Store that
  runs each operation in one database transaction.

CRITICAL INVARIANTS:
  1. SINGLE USE: a redemption code is credited at most once, ever. Among N
     concurrent redeemers exactly one wins; the others get ErrCodeInvalid.
  2. NO LOST UPDATES: balance changes for one identity are serialized.
  3. NO OVERDRAFT: a purchase never leaves a negative balance.

LOCK ORDER:
  code:<code> before account:<identity>. Every method that takes more than
  one key takes them in that order.

SEE ALSO:
  - store.go: Persistence interface
  - keylock.go: Per-key mutexes
*/
package ledger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxGeneratedCodes caps a single GenerateCodes call.
	MaxGeneratedCodes = 50

	// MaxStockEntryRange caps the size of one "a-b" range in an entry list.
	MaxStockEntryRange = 1000

	maxIDAttempts = 5
)

// Ledger is the credit ledger service.
type Ledger struct {
	Store Store

	locks *KeyLock
	now   func() time.Time
}

// New creates a Ledger over store.
func New(store Store) *Ledger {
	return &Ledger{
		Store: store,
		locks: NewKeyLock(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the ledger clock. Used by tests.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// Balance returns the identity's balance, 0 if it has no account yet.
func (l *Ledger) Balance(ctx context.Context, id Identity) (int64, error) {
	acct, err := l.Store.GetAccount(ctx, id)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// Account returns the identity's account, zero-valued if absent.
func (l *Ledger) Account(ctx context.Context, id Identity) (Account, error) {
	return l.Store.GetAccount(ctx, id)
}

// AdjustBalance adds a positive delta to the identity's balance, creating
// the account if needed, and returns the new balance.
func (l *Ledger) AdjustBalance(ctx context.Context, id Identity, delta int64) (int64, error) {
	if delta <= 0 {
		return 0, ErrInvalidAmount
	}

	unlock := l.locks.Lock(accountKey(id))
	defer unlock()

	return l.Store.AdjustBalance(ctx, id, delta)
}

// IsBlacklisted reports whether the identity is blacklisted.
func (l *Ledger) IsBlacklisted(ctx context.Context, id Identity) (bool, error) {
	acct, err := l.Store.GetAccount(ctx, id)
	if err != nil {
		return false, err
	}
	return acct.Blacklisted, nil
}

// SetBlacklisted sets the blacklist flag and returns the previous value.
// The balance is left untouched.
func (l *Ledger) SetBlacklisted(ctx context.Context, id Identity, flag bool) (bool, error) {
	unlock := l.locks.Lock(accountKey(id))
	defer unlock()

	return l.Store.SetBlacklisted(ctx, id, flag)
}

// =============================================================================
// REDEMPTION CODES
// =============================================================================

// RedeemCode marks an unused code as used and returns its value.
func (l *Ledger) RedeemCode(ctx context.Context, code string) (int64, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, ErrCodeInvalid
	}

	unlock := l.locks.Lock(codeKey(code))
	defer unlock()

	return l.Store.RedeemCode(ctx, code, "", l.now())
}

// Redeem claims code for id and credits its value. Returns the credited
// value and the new balance.
func (l *Ledger) Redeem(ctx context.Context, code string, id Identity) (int64, int64, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, 0, ErrCodeInvalid
	}

	unlock := l.locks.LockAll(codeKey(code), accountKey(id))
	defer unlock()

	return l.Store.RedeemAndCredit(ctx, code, id, l.now())
}

// CreateCode issues a specific code worth value credits.
func (l *Ledger) CreateCode(ctx context.Context, code string, value int64) (RedemptionCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return RedemptionCode{}, ErrCodeInvalid
	}
	if value <= 0 {
		return RedemptionCode{}, ErrInvalidAmount
	}

	rc := RedemptionCode{Code: code, Value: value, CreatedAt: l.now()}
	if err := l.Store.InsertCodes(ctx, []RedemptionCode{rc}); err != nil {
		return RedemptionCode{}, err
	}
	return rc, nil
}

// GenerateCodes issues count random codes worth value credits each.
func (l *Ledger) GenerateCodes(ctx context.Context, value int64, count int) ([]string, error) {
	if count < 1 || count > MaxGeneratedCodes {
		return nil, ErrInvalidCount
	}
	if value <= 0 {
		return nil, ErrInvalidAmount
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		codes, err := l.freshCodes(ctx, value, count)
		if err != nil {
			return nil, err
		}

		err = l.Store.InsertCodes(ctx, codes)
		if errors.Is(err, ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, err
		}

		out := make([]string, len(codes))
		for i, c := range codes {
			out[i] = c.Code
		}
		return out, nil
	}
	return nil, fmt.Errorf("generate codes: %w", ErrDuplicateCode)
}

func (l *Ledger) freshCodes(ctx context.Context, value int64, count int) ([]RedemptionCode, error) {
	now := l.now()
	seen := make(map[string]bool, count)
	codes := make([]RedemptionCode, 0, count)

	for len(codes) < count {
		code, err := NewRedemptionCode()
		if err != nil {
			return nil, err
		}
		if seen[code] {
			continue
		}
		exists, err := l.Store.CodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		seen[code] = true
		codes = append(codes, RedemptionCode{Code: code, Value: value, CreatedAt: now})
	}
	return codes, nil
}

// Codes lists issued codes.
func (l *Ledger) Codes(ctx context.Context, includeUsed bool) ([]RedemptionCode, error) {
	return l.Store.ListCodes(ctx, includeUsed)
}

// =============================================================================
// PRODUCTS
// =============================================================================

// AddProduct creates a product. If filePath is set, its non-empty lines
// become the initial stock.
func (l *Ledger) AddProduct(ctx context.Context, name string, price int64, filePath string) (Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: empty name", ErrProductNotFound)
	}
	if price < 0 {
		return Product{}, ErrInvalidAmount
	}

	var items []string
	if filePath != "" {
		var err error
		items, err = LoadStockFile(filePath)
		if err != nil {
			return Product{}, err
		}
	}

	p, err := l.Store.SaveProduct(ctx, Product{Name: name, Price: price, FilePath: filePath})
	if err != nil {
		return Product{}, err
	}

	if len(items) > 0 {
		stock, err := l.Store.AddStock(ctx, name, items)
		if err != nil {
			return Product{}, err
		}
		p.Stock = stock
	}
	return p, nil
}

// Products lists all products with their stock counts.
func (l *Ledger) Products(ctx context.Context) ([]Product, error) {
	return l.Store.ListProducts(ctx)
}

// RemoveProduct deletes the named product and its unsold stock.
func (l *Ledger) RemoveProduct(ctx context.Context, name string) error {
	return l.Store.DeleteProduct(ctx, strings.TrimSpace(name))
}

// Restock appends items to the named product. Items are cleaned with
// CleanStockItems. Returns the new stock count.
func (l *Ledger) Restock(ctx context.Context, name string, items []string) (int, error) {
	clean := CleanStockItems(items)
	if len(clean) == 0 {
		return 0, ErrEmptyStock
	}
	return l.Store.AddStock(ctx, strings.TrimSpace(name), clean)
}

// CleanStockItems splits items on embedded line breaks, trims them, and
// drops blanks. A stock item is always a single line.
func CleanStockItems(items []string) []string {
	clean := make([]string, 0, len(items))
	for _, it := range items {
		for _, line := range strings.FieldsFunc(it, func(r rune) bool { return r == '\n' || r == '\r' }) {
			if line = strings.TrimSpace(line); line != "" {
				clean = append(clean, line)
			}
		}
	}
	return clean
}

// SplitStockItems splits a chat-supplied list on newlines and commas.
func SplitStockItems(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == ',' || r == '\r'
	})
}

// StockItems lists a product's unsold items in sale order.
func (l *Ledger) StockItems(ctx context.Context, name string) ([]string, error) {
	return l.Store.ListStock(ctx, strings.TrimSpace(name))
}

// RemoveStock deletes the stock items at the given 1-based positions.
// Returns the number removed and the remaining stock.
func (l *Ledger) RemoveStock(ctx context.Context, name string, entries []int) (int, int, error) {
	if len(entries) == 0 {
		return 0, 0, fmt.Errorf("%w: no entries", ErrStockEntryFormat)
	}
	return l.Store.RemoveStock(ctx, strings.TrimSpace(name), entries)
}

// ParseStockEntries parses entry lists such as "1,2,4-6" into sorted,
// distinct 1-based positions. Ranges span at most MaxStockEntryRange
// entries.
func ParseStockEntries(s string) ([]int, error) {
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		from, to, isRange := strings.Cut(part, "-")

		start, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrStockEntryFormat, part)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(to)); err != nil {
				return nil, fmt.Errorf("%w: %q", ErrStockEntryFormat, part)
			}
		}
		if end < start || end-start >= MaxStockEntryRange {
			return nil, fmt.Errorf("%w: %q", ErrStockEntryFormat, part)
		}
		for n := start; n <= end; n++ {
			seen[n] = true
		}
	}

	entries := make([]int, 0, len(seen))
	for n := range seen {
		entries = append(entries, n)
	}
	sort.Ints(entries)
	return entries, nil
}

// LoadStockFile reads non-empty lines from path.
func LoadStockFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stock file: %w", err)
	}
	defer f.Close()

	var items []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			items = append(items, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read stock file: %w", err)
	}
	return items, nil
}

// =============================================================================
// DISCOUNTS
// =============================================================================

// CreateDiscount issues a discount code. Codes are case-insensitive and
// stored upper-case.
func (l *Ledger) CreateDiscount(ctx context.Context, code string, amount int64, typ DiscountType, maxUses int, validFor time.Duration) (DiscountCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	typ = DiscountType(strings.ToUpper(string(typ)))

	switch {
	case code == "":
		return DiscountCode{}, fmt.Errorf("%w: empty code", ErrInvalidDiscount)
	case !typ.Valid():
		return DiscountCode{}, fmt.Errorf("%w: type must be FIXED or PERCENT", ErrInvalidDiscount)
	case typ == DiscountPercent && (amount < 1 || amount > 100):
		return DiscountCode{}, fmt.Errorf("%w: percentage must be between 1 and 100", ErrInvalidDiscount)
	case amount <= 0:
		return DiscountCode{}, ErrInvalidAmount
	case maxUses < 1:
		return DiscountCode{}, fmt.Errorf("%w: max uses must be at least 1", ErrInvalidDiscount)
	case validFor <= 0:
		return DiscountCode{}, fmt.Errorf("%w: validity must be positive", ErrInvalidDiscount)
	}

	d := DiscountCode{
		Code:      code,
		Amount:    amount,
		Type:      typ,
		MaxUses:   maxUses,
		UsesLeft:  maxUses,
		ExpiresAt: l.now().Add(validFor).Truncate(time.Second),
	}
	if err := l.Store.SaveDiscount(ctx, d); err != nil {
		return DiscountCode{}, err
	}
	return d, nil
}

// ActiveDiscounts lists unexpired discount codes with uses left.
func (l *Ledger) ActiveDiscounts(ctx context.Context) ([]DiscountCode, error) {
	return l.Store.ListDiscounts(ctx, l.now())
}

// RemoveDiscount deletes a discount code. Returns whether it existed.
func (l *Ledger) RemoveDiscount(ctx context.Context, code string) (bool, error) {
	return l.Store.DeleteDiscount(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// PurgeDiscounts removes expired and exhausted discount codes.
func (l *Ledger) PurgeDiscounts(ctx context.Context) (int, error) {
	return l.Store.PurgeDiscounts(ctx, l.now())
}

// =============================================================================
// PURCHASES
// =============================================================================

// Purchase buys quantity units of product for id, optionally applying a
// discount code.
func (l *Ledger) Purchase(ctx context.Context, id Identity, product string, quantity int, discountCode string) (Receipt, error) {
	if quantity < 1 {
		return Receipt{}, ErrInvalidQuantity
	}

	unlock := l.locks.Lock(accountKey(id))
	defer unlock()

	purchaseID, err := l.newPurchaseID(ctx)
	if err != nil {
		return Receipt{}, err
	}

	return l.Store.Purchase(ctx, PurchaseOrder{
		PurchaseID:   purchaseID,
		Identity:     id,
		ProductName:  strings.TrimSpace(product),
		Quantity:     quantity,
		DiscountCode: strings.ToUpper(strings.TrimSpace(discountCode)),
		At:           l.now(),
	})
}

func (l *Ledger) newPurchaseID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := NewPurchaseID()
		exists, err := l.Store.PurchaseExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", errors.New("could not allocate a unique purchase id")
}

// PurchaseHistory returns the identity's most recent purchases.
func (l *Ledger) PurchaseHistory(ctx context.Context, id Identity, limit int) ([]Purchase, error) {
	return l.Store.ListPurchases(ctx, id, limit)
}

// PurchaseByID looks up a single purchase.
func (l *Ledger) PurchaseByID(ctx context.Context, purchaseID string) (Purchase, error) {
	return l.Store.GetPurchase(ctx, strings.TrimSpace(purchaseID))
}
