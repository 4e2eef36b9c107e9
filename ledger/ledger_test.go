package ledger_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/credit-bot/ledger"
	"github.com/warp/credit-bot/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) *ledger.Ledger {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return ledger.New(store)
}

var fixedNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func seedProduct(t *testing.T, l *ledger.Ledger, name string, price int64, items ...string) {
	t.Helper()
	ctx := context.Background()
	_, err := l.AddProduct(ctx, name, price, "")
	require.NoError(t, err)
	if len(items) > 0 {
		_, err = l.Restock(ctx, name, items)
		require.NoError(t, err)
	}
}

// =============================================================================
// BALANCE
// =============================================================================

func TestLedger_UnknownIdentity_BalanceIsZero(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for _, id := range []ledger.Identity{"1", "never-seen", "999999999999999999"} {
		balance, err := l.Balance(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)

		blocked, err := l.IsBlacklisted(ctx, id)
		require.NoError(t, err)
		assert.False(t, blocked)
	}
}

func TestLedger_AdjustBalance_Additive(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	b, err := l.AdjustBalance(ctx, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(30), b)

	b, err = l.AdjustBalance(ctx, "u1", 12)
	require.NoError(t, err)
	assert.Equal(t, int64(42), b)

	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), balance)
}

func TestLedger_AdjustBalance_RejectsNonPositive(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AdjustBalance(ctx, "u1", 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = l.AdjustBalance(ctx, "u1", -5)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestLedger_AdjustBalance_ConcurrentNoLostUpdates(t *testing.T) {
	// GIVEN: 50 concurrent top-ups of 2 credits for the same identity
	// THEN: the final balance is exactly 100

	l := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.AdjustBalance(ctx, "u1", 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	balance, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

// =============================================================================
// BLACKLIST
// =============================================================================

func TestLedger_SetBlacklisted_KeepsBalance(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.AdjustBalance(ctx, "u1", 25)
	require.NoError(t, err)

	prev, err := l.SetBlacklisted(ctx, "u1", true)
	require.NoError(t, err)
	assert.False(t, prev)

	acct, err := l.Account(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, acct.Blacklisted)
	assert.Equal(t, int64(25), acct.Balance, "blacklisting must not reset the balance")

	prev, err = l.SetBlacklisted(ctx, "u1", false)
	require.NoError(t, err)
	assert.True(t, prev)

	acct, err = l.Account(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, acct.Blacklisted)
	assert.Equal(t, int64(25), acct.Balance)
}

func TestLedger_SetBlacklisted_CreatesAccount(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.SetBlacklisted(ctx, "fresh", true)
	require.NoError(t, err)

	acct, err := l.Account(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, acct.Blacklisted)
	assert.Equal(t, int64(0), acct.Balance)
}

// =============================================================================
// REDEMPTION CODES
// =============================================================================

func TestLedger_RedeemCode_SingleUse(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateCode(ctx, "FREE10", 10)
	require.NoError(t, err)

	value, err := l.RedeemCode(ctx, "FREE10")
	require.NoError(t, err)
	assert.Equal(t, int64(10), value)

	_, err = l.RedeemCode(ctx, "FREE10")
	assert.ErrorIs(t, err, ledger.ErrCodeInvalid)

	_, err = l.RedeemCode(ctx, "NOPE")
	assert.ErrorIs(t, err, ledger.ErrCodeInvalid)

	_, err = l.RedeemCode(ctx, "   ")
	assert.ErrorIs(t, err, ledger.ErrCodeInvalid)
}

func TestLedger_RedeemCode_ConcurrentExactlyOneWinner(t *testing.T) {
	// GIVEN: one unused code
	// WHEN: 32 goroutines redeem it at once
	// THEN: exactly one gets the value, the rest get ErrCodeInvalid

	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateCode(ctx, "RACE", 7)
	require.NoError(t, err)

	const n = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		invalid int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := l.RedeemCode(ctx, "RACE")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				assert.Equal(t, int64(7), v)
				wins++
			case errors.Is(err, ledger.ErrCodeInvalid):
				invalid++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, invalid)
}

func TestLedger_Redeem_ConcurrentDifferentUsers_CreditsOnce(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateCode(ctx, "SHARED", 50)
	require.NoError(t, err)

	users := []ledger.Identity{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u ledger.Identity) {
			defer wg.Done()
			_, _, err := l.Redeem(ctx, "SHARED", u)
			if err != nil {
				assert.ErrorIs(t, err, ledger.ErrCodeInvalid)
			}
		}(u)
	}
	wg.Wait()

	var total int64
	for _, u := range users {
		b, err := l.Balance(ctx, u)
		require.NoError(t, err)
		total += b
	}
	assert.Equal(t, int64(50), total, "code value must be credited exactly once")
}

func TestLedger_Redeem_UsedCode_NoBalanceChange(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateCode(ctx, "ONCE", 10)
	require.NoError(t, err)

	credits, balance, err := l.Redeem(ctx, "ONCE", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), credits)
	assert.Equal(t, int64(10), balance)

	_, _, err = l.Redeem(ctx, "ONCE", "u1")
	assert.ErrorIs(t, err, ledger.ErrCodeInvalid)

	b, err := l.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), b)

	codes, err := l.Codes(ctx, true)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	assert.True(t, codes[0].Used)
	assert.Equal(t, ledger.Identity("u1"), codes[0].UsedBy)
	assert.NotNil(t, codes[0].UsedAt)
}

func TestLedger_CreateCode_Duplicate(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateCode(ctx, "DUP", 5)
	require.NoError(t, err)

	_, err = l.CreateCode(ctx, "DUP", 5)
	assert.ErrorIs(t, err, ledger.ErrDuplicateCode)

	_, err = l.CreateCode(ctx, "ZERO", 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestLedger_GenerateCodes(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	codes, err := l.GenerateCodes(ctx, 25, 10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := map[string]bool{}
	for _, c := range codes {
		assert.Regexp(t, `^[A-Z0-9]{12}$`, c)
		assert.False(t, seen[c], "codes must be unique")
		seen[c] = true
	}

	unused, err := l.Codes(ctx, false)
	require.NoError(t, err)
	assert.Len(t, unused, 10)

	v, err := l.RedeemCode(ctx, codes[3])
	require.NoError(t, err)
	assert.Equal(t, int64(25), v)

	unused, err = l.Codes(ctx, false)
	require.NoError(t, err)
	assert.Len(t, unused, 9)
}

func TestLedger_GenerateCodes_Bounds(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.GenerateCodes(ctx, 10, 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidCount)

	_, err = l.GenerateCodes(ctx, 10, ledger.MaxGeneratedCodes+1)
	assert.ErrorIs(t, err, ledger.ErrInvalidCount)

	_, err = l.GenerateCodes(ctx, 0, 1)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	codes, err := l.GenerateCodes(ctx, 1, ledger.MaxGeneratedCodes)
	require.NoError(t, err)
	assert.Len(t, codes, ledger.MaxGeneratedCodes)
}

// =============================================================================
// PRODUCTS & PURCHASES
// =============================================================================

func TestLedger_AddProduct_FromFile(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "keys.txt")
	require.NoError(t, os.WriteFile(path, []byte("KEY-1\n\nKEY-2\n  KEY-3  \n"), 0o600))

	p, err := l.AddProduct(ctx, "Game Key", 15, path)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, path, p.FilePath)

	_, err = l.AddProduct(ctx, "Game Key", 15, "")
	assert.ErrorIs(t, err, ledger.ErrDuplicateProduct)

	_, err = l.AddProduct(ctx, "Other", 5, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestLedger_Restock(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	seedProduct(t, l, "Widget", 10)

	stock, err := l.Restock(ctx, "Widget", ledger.SplitStockItems("a, b\nc,,"))
	require.NoError(t, err)
	assert.Equal(t, 3, stock)

	_, err = l.Restock(ctx, "Widget", []string{" ", ""})
	assert.ErrorIs(t, err, ledger.ErrEmptyStock)

	_, err = l.Restock(ctx, "Nope", []string{"x"})
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)

	products, err := l.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 3, products[0].Stock)
}

func TestLedger_Restock_SplitsEmbeddedLineBreaks(t *testing.T) {
	// GIVEN: items that carry line breaks inside a single entry
	// WHEN: restocking and buying everything
	// THEN: each line is its own item, and the purchase record reads back
	//       exactly the items sold

	l := newTestLedger(t)
	ctx := context.Background()

	seedProduct(t, l, "Widget", 1)
	stock, err := l.Restock(ctx, "Widget", []string{"a\nb", "c\r\n", " d "})
	require.NoError(t, err)
	assert.Equal(t, 4, stock)

	_, err = l.AdjustBalance(ctx, "buyer", 10)
	require.NoError(t, err)
	receipt, err := l.Purchase(ctx, "buyer", "Widget", 4, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, receipt.Items)

	got, err := l.PurchaseByID(ctx, receipt.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity)
	assert.Equal(t, receipt.Items, got.Items)
}

func TestCleanStockItems(t *testing.T) {
	tests := []struct {
		name  string
		items []string
		want  []string
	}{
		{"plain", []string{"a", "b"}, []string{"a", "b"}},
		{"trims and drops blanks", []string{" a ", "", "  "}, []string{"a"}},
		{"splits line breaks", []string{"a\nb\r\nc", "\n\n"}, []string{"a", "b", "c"}},
		{"keeps commas", []string{"x,y"}, []string{"x,y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.CleanStockItems(tt.items))
		})
	}
}

func TestLedger_Purchase_Success(t *testing.T) {
	// GIVEN: a buyer with 100 credits and a product at 30 with 3 items
	// WHEN: buying 2
	// THEN: 60 debited, oldest 2 items delivered, record stored

	l := newTestLedger(t).WithClock(func() time.Time { return fixedNow })
	ctx := context.Background()

	seedProduct(t, l, "Widget", 30, "w1", "w2", "w3")
	_, err := l.AdjustBalance(ctx, "buyer", 100)
	require.NoError(t, err)

	receipt, err := l.Purchase(ctx, "buyer", "Widget", 2, "")
	require.NoError(t, err)

	assert.Regexp(t, `^PUR-[0-9A-F]{8}$`, receipt.PurchaseID)
	assert.Equal(t, []string{"w1", "w2"}, receipt.Items)
	assert.Equal(t, int64(60), receipt.Cost)
	assert.Equal(t, int64(60), receipt.OriginalCost)
	assert.Equal(t, int64(0), receipt.DiscountAmount)
	assert.Equal(t, int64(40), receipt.Balance)

	balance, err := l.Balance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)

	products, err := l.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, products[0].Stock)

	got, err := l.PurchaseByID(ctx, receipt.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Identity("buyer"), got.Identity)
	assert.Equal(t, "Widget", got.ProductName)
	assert.Equal(t, 2, got.Quantity)
	assert.Equal(t, []string{"w1", "w2"}, got.Items)
	assert.Equal(t, fixedNow, got.Timestamp)

	history, err := l.PurchaseHistory(ctx, "buyer", 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, receipt.PurchaseID, history[0].PurchaseID)
}

func TestLedger_Purchase_Failures_NoMutation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	seedProduct(t, l, "Widget", 30, "w1", "w2")
	_, err := l.AdjustBalance(ctx, "buyer", 50)
	require.NoError(t, err)

	_, err = l.Purchase(ctx, "buyer", "Widget", 0, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidQuantity)

	_, err = l.Purchase(ctx, "buyer", "Gadget", 1, "")
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)

	_, err = l.Purchase(ctx, "buyer", "Widget", 3, "")
	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)

	_, err = l.Purchase(ctx, "buyer", "Widget", 2, "")
	var credErr *ledger.InsufficientCreditsError
	require.ErrorAs(t, err, &credErr)
	assert.Equal(t, int64(60), credErr.Need)
	assert.Equal(t, int64(50), credErr.Have)

	_, err = l.Purchase(ctx, "buyer", "Widget", 1, "BOGUS")
	assert.ErrorIs(t, err, ledger.ErrDiscountInvalid)

	balance, err := l.Balance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(50), balance)

	products, err := l.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, products[0].Stock)

	history, err := l.PurchaseHistory(ctx, "buyer", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLedger_Purchase_CostOverflowRejected(t *testing.T) {
	// GIVEN: a product whose price times the quantity exceeds an int64
	// WHEN: buying 2
	// THEN: the order is rejected and nothing changes

	l := newTestLedger(t)
	ctx := context.Background()

	seedProduct(t, l, "big", math.MaxInt64/2+1, "a", "b")
	_, err := l.AdjustBalance(ctx, "buyer", 10)
	require.NoError(t, err)

	receipt, err := l.Purchase(ctx, "buyer", "big", 2, "")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	assert.Empty(t, receipt.PurchaseID)

	balance, err := l.Balance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	products, err := l.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 2, products[0].Stock)

	history, err := l.PurchaseHistory(ctx, "buyer", 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestComputeCost_Overflow(t *testing.T) {
	_, err := ledger.ComputeCost(math.MaxInt64, 2, nil)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	cost, err := ledger.ComputeCost(math.MaxInt64, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), cost.Final)
}

func TestLedger_Purchase_ConcurrentNeverOverdraws(t *testing.T) {
	// GIVEN: 100 credits and 10 items at 30 each
	// WHEN: 10 concurrent single-item purchases
	// THEN: exactly 3 succeed and the balance ends at 10

	l := newTestLedger(t)
	ctx := context.Background()

	seedProduct(t, l, "Widget", 30, "1", "2", "3", "4", "5", "6", "7", "8", "9", "10")
	_, err := l.AdjustBalance(ctx, "buyer", 100)
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Purchase(ctx, "buyer", "Widget", 1, "")
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	balance, err := l.Balance(ctx, "buyer")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestLedger_Purchase_WithDiscount(t *testing.T) {
	l := newTestLedger(t).WithClock(func() time.Time { return fixedNow })
	ctx := context.Background()

	seedProduct(t, l, "Widget", 33, "w1", "w2", "w3")
	_, err := l.AdjustBalance(ctx, "buyer", 200)
	require.NoError(t, err)

	d, err := l.CreateDiscount(ctx, "save10", 10, "percent", 1, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", d.Code)
	assert.Equal(t, ledger.DiscountPercent, d.Type)

	receipt, err := l.Purchase(ctx, "buyer", "Widget", 1, "save10")
	require.NoError(t, err)
	assert.Equal(t, int64(33), receipt.OriginalCost)
	assert.Equal(t, int64(3), receipt.DiscountAmount, "10% of 33 floors to 3")
	assert.Equal(t, int64(30), receipt.Cost)
	assert.Equal(t, "SAVE10", receipt.DiscountCode)

	_, err = l.Purchase(ctx, "buyer", "Widget", 1, "SAVE10")
	assert.ErrorIs(t, err, ledger.ErrDiscountInvalid, "single-use discount is exhausted")

	active, err := l.ActiveDiscounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestLedger_Discount_Expiry(t *testing.T) {
	now := fixedNow
	l := newTestLedger(t).WithClock(func() time.Time { return now })
	ctx := context.Background()

	seedProduct(t, l, "Widget", 10, "w1")
	_, err := l.AdjustBalance(ctx, "buyer", 10)
	require.NoError(t, err)

	_, err = l.CreateDiscount(ctx, "FLASH", 5, ledger.DiscountFixed, 10, time.Hour)
	require.NoError(t, err)

	active, err := l.ActiveDiscounts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "5 credits off", active[0].Describe())

	now = fixedNow.Add(2 * time.Hour)

	_, err = l.Purchase(ctx, "buyer", "Widget", 1, "FLASH")
	assert.ErrorIs(t, err, ledger.ErrDiscountInvalid)

	active, err = l.ActiveDiscounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestLedger_PurgeDiscounts(t *testing.T) {
	now := fixedNow
	l := newTestLedger(t).WithClock(func() time.Time { return now })
	ctx := context.Background()

	// GIVEN: one short-lived, one exhausted, and one healthy discount
	seedProduct(t, l, "Widget", 10, "w1")
	_, err := l.AdjustBalance(ctx, "buyer", 10)
	require.NoError(t, err)
	_, err = l.CreateDiscount(ctx, "SHORT", 1, ledger.DiscountFixed, 5, time.Hour)
	require.NoError(t, err)
	_, err = l.CreateDiscount(ctx, "ONCE", 1, ledger.DiscountFixed, 1, 48*time.Hour)
	require.NoError(t, err)
	_, err = l.CreateDiscount(ctx, "KEEP", 1, ledger.DiscountFixed, 5, 48*time.Hour)
	require.NoError(t, err)
	_, err = l.Purchase(ctx, "buyer", "Widget", 1, "ONCE")
	require.NoError(t, err)

	// WHEN: purging after the short one expired
	now = fixedNow.Add(2 * time.Hour)
	n, err := l.PurgeDiscounts(ctx)

	// THEN: only the healthy code remains
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	removed, err := l.RemoveDiscount(ctx, "SHORT")
	require.NoError(t, err)
	assert.False(t, removed)
	removed, err = l.RemoveDiscount(ctx, "keep")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestLedger_CreateDiscount_Validation(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateDiscount(ctx, "X", 10, "BOGO", 1, time.Hour)
	assert.ErrorIs(t, err, ledger.ErrInvalidDiscount)

	_, err = l.CreateDiscount(ctx, "X", 150, ledger.DiscountPercent, 1, time.Hour)
	assert.ErrorIs(t, err, ledger.ErrInvalidDiscount)

	_, err = l.CreateDiscount(ctx, "X", 10, ledger.DiscountFixed, 0, time.Hour)
	assert.ErrorIs(t, err, ledger.ErrInvalidDiscount)

	_, err = l.CreateDiscount(ctx, "X", 10, ledger.DiscountFixed, 1, time.Hour)
	require.NoError(t, err)

	_, err = l.CreateDiscount(ctx, "x", 10, ledger.DiscountFixed, 1, time.Hour)
	assert.ErrorIs(t, err, ledger.ErrDuplicateDiscount)

	removed, err := l.RemoveDiscount(ctx, "x")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = l.RemoveDiscount(ctx, "x")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestLedger_RemoveProduct(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	seedProduct(t, l, "Widget", 10, "a", "b")

	require.NoError(t, l.RemoveProduct(ctx, "Widget"))
	assert.ErrorIs(t, l.RemoveProduct(ctx, "Widget"), ledger.ErrProductNotFound)

	products, err := l.Products(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}

// =============================================================================
// STOCK MANAGEMENT
// =============================================================================

func TestLedger_StockItems(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	seedProduct(t, l, "Widget", 5, "w1", "w2", "w3")
	seedProduct(t, l, "Empty", 5)

	items, err := l.StockItems(ctx, " Widget ")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2", "w3"}, items)

	items, err = l.StockItems(ctx, "Empty")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = l.StockItems(ctx, "Nope")
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)
}

func TestLedger_RemoveStock(t *testing.T) {
	// GIVEN: six stock items
	// WHEN: removing entries 1, 2 and 4-6
	// THEN: only the third item is left

	l := newTestLedger(t)
	ctx := context.Background()

	seedProduct(t, l, "Widget", 5, "w1", "w2", "w3", "w4", "w5", "w6")

	entries, err := ledger.ParseStockEntries("1,2,4-6")
	require.NoError(t, err)
	removed, remaining, err := l.RemoveStock(ctx, "Widget", entries)
	require.NoError(t, err)
	assert.Equal(t, 5, removed)
	assert.Equal(t, 1, remaining)

	items, err := l.StockItems(ctx, "Widget")
	require.NoError(t, err)
	assert.Equal(t, []string{"w3"}, items)
}

func TestLedger_RemoveStock_InvalidEntriesRemoveNothing(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	seedProduct(t, l, "Widget", 5, "w1", "w2", "w3")

	_, _, err := l.RemoveStock(ctx, "Widget", []int{1, 4, 9})
	var invalid *ledger.InvalidStockEntriesError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []int{4, 9}, invalid.Entries)
	assert.Equal(t, 3, invalid.Available)
	assert.ErrorIs(t, err, ledger.ErrInvalidStockEntry)
	assert.True(t, ledger.IsBusinessError(err))

	items, err := l.StockItems(ctx, "Widget")
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2", "w3"}, items)

	_, _, err = l.RemoveStock(ctx, "Nope", []int{1})
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)

	_, _, err = l.RemoveStock(ctx, "Widget", nil)
	assert.ErrorIs(t, err, ledger.ErrStockEntryFormat)
}

func TestLedger_RemoveStock_AllSellsOut(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	seedProduct(t, l, "Widget", 5, "w1", "w2")

	removed, remaining, err := l.RemoveStock(ctx, "Widget", []int{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Zero(t, remaining)

	_, err = l.AdjustBalance(ctx, "buyer", 10)
	require.NoError(t, err)
	_, err = l.Purchase(ctx, "buyer", "Widget", 1, "")
	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Zero(t, stockErr.Available)
}

func TestParseStockEntries(t *testing.T) {
	tests := []struct {
		input   string
		want    []int
		wantErr bool
	}{
		{input: "3", want: []int{3}},
		{input: "1,2,3", want: []int{1, 2, 3}},
		{input: "1-3", want: []int{1, 2, 3}},
		{input: "1,2,4-6", want: []int{1, 2, 4, 5, 6}},
		{input: " 6 , 2-3 ,2", want: []int{2, 3, 6}},
		{input: "0", want: []int{0}},
		{input: "", wantErr: true},
		{input: "1,,2", wantErr: true},
		{input: "a", wantErr: true},
		{input: "3-1", wantErr: true},
		{input: "1-", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "1-2-3", wantErr: true},
		{input: "1-1000000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ledger.ParseStockEntries(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ledger.ErrStockEntryFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLedger_PurchaseByID_NotFound(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.PurchaseByID(context.Background(), "PUR-NOPE")
	assert.ErrorIs(t, err, ledger.ErrPurchaseNotFound)
	assert.True(t, ledger.IsNotFound(err))
}
