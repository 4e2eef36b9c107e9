/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists accounts, redemption codes, products, stock items, discount
  codes and purchase transactions. Every operation that touches more than
  one row runs in a single database transaction.

KEY TABLES:
  users:          Account balance and blacklist flag
  codes:          Single-use redemption codes
  products:       Shop catalogue
  product_stock:  Unsold stock items, sold FIFO by id
  discount_codes: Purchase discounts with use counters and expiry
  transactions:   Append-only purchase log

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement ever targets the transactions table.

CONCURRENCY:
  The pool is capped at one connection and transactions are opened with
  BEGIN IMMEDIATE (_txlock=immediate), so writers are serialized by SQLite
  itself. A sync.RWMutex additionally separates readers from writers inside
  the process. The ledger service layers per-key locks on top.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and a busy timeout.

USAGE:
  store, err := sqlite.New("./data/credit_system.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/ledger.go: Service using Store
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/credit-bot/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
		is_blacklisted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Redemption codes (single use)
	CREATE TABLE IF NOT EXISTS codes (
		code TEXT PRIMARY KEY,
		credits INTEGER NOT NULL CHECK (credits > 0),
		is_used INTEGER NOT NULL DEFAULT 0,
		used_by TEXT,
		used_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_codes_unused
		ON codes(is_used) WHERE is_used = 0;

	-- Products
	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		price INTEGER NOT NULL CHECK (price >= 0),
		file_path TEXT,
		created_at TEXT NOT NULL
	);

	-- Stock items, sold in insertion order
	CREATE TABLE IF NOT EXISTS product_stock (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		item TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_product_stock_product
		ON product_stock(product_id, id);

	-- Discount codes
	CREATE TABLE IF NOT EXISTS discount_codes (
		code TEXT PRIMARY KEY,
		discount_amount INTEGER NOT NULL,
		discount_type TEXT NOT NULL,
		max_uses INTEGER NOT NULL DEFAULT 1,
		uses_left INTEGER NOT NULL,
		expiry_date TEXT NOT NULL
	);

	-- Purchase transactions (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		purchase_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		product_id INTEGER NOT NULL,
		product_name TEXT NOT NULL,
		price INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		original_cost INTEGER NOT NULL,
		discount_amount INTEGER NOT NULL DEFAULT 0,
		discount_code TEXT,
		cost INTEGER NOT NULL,
		items TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_user
		ON transactions(user_id, timestamp DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction. Business errors pass through untouched;
// everything else is wrapped in *ledger.StoreError.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(op, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return storeErr(op, err)
	}
	return storeErr(op, tx.Commit())
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// GetAccount returns the account, or a zero Account for unknown ids.
func (s *Store) GetAccount(ctx context.Context, id ledger.Identity) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, err := getAccount(ctx, s.db, id)
	return acct, storeErr("get account", err)
}

// AdjustBalance creates the account if absent and adds delta.
func (s *Store) AdjustBalance(ctx context.Context, id ledger.Identity, delta int64) (int64, error) {
	var balance int64
	err := s.withTx(ctx, "adjust balance", func(tx *sql.Tx) error {
		var err error
		balance, err = credit(ctx, tx, id, delta)
		return err
	})
	return balance, err
}

// SetBlacklisted sets the flag and returns the previous value.
func (s *Store) SetBlacklisted(ctx context.Context, id ledger.Identity, flag bool) (bool, error) {
	var prev bool
	err := s.withTx(ctx, "set blacklisted", func(tx *sql.Tx) error {
		if err := ensureAccount(ctx, tx, id); err != nil {
			return err
		}
		acct, err := getAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		prev = acct.Blacklisted

		_, err = tx.ExecContext(ctx,
			"UPDATE users SET is_blacklisted = ?, updated_at = ? WHERE user_id = ?",
			flag, now(), string(id))
		return err
	})
	return prev, err
}

func getAccount(ctx context.Context, q queryer, id ledger.Identity) (ledger.Account, error) {
	acct := ledger.Account{Identity: id}
	err := q.QueryRowContext(ctx,
		"SELECT credits, is_blacklisted FROM users WHERE user_id = ?",
		string(id),
	).Scan(&acct.Balance, &acct.Blacklisted)
	if errors.Is(err, sql.ErrNoRows) {
		return acct, nil
	}
	return acct, err
}

func ensureAccount(ctx context.Context, q queryer, id ledger.Identity) error {
	ts := now()
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (user_id, credits, is_blacklisted, created_at, updated_at)
		VALUES (?, 0, 0, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, string(id), ts, ts)
	return err
}

// credit ensures the account exists, adds delta, and returns the balance.
func credit(ctx context.Context, q queryer, id ledger.Identity, delta int64) (int64, error) {
	if err := ensureAccount(ctx, q, id); err != nil {
		return 0, err
	}
	if _, err := q.ExecContext(ctx,
		"UPDATE users SET credits = credits + ?, updated_at = ? WHERE user_id = ?",
		delta, now(), string(id)); err != nil {
		return 0, err
	}

	var balance int64
	err := q.QueryRowContext(ctx,
		"SELECT credits FROM users WHERE user_id = ?", string(id)).Scan(&balance)
	return balance, err
}

// =============================================================================
// REDEMPTION CODES
// =============================================================================

// RedeemCode atomically marks an unused code as used and returns its value.
func (s *Store) RedeemCode(ctx context.Context, code string, by ledger.Identity, at time.Time) (int64, error) {
	var value int64
	err := s.withTx(ctx, "redeem code", func(tx *sql.Tx) error {
		var err error
		value, err = claimCode(ctx, tx, code, by, at)
		return err
	})
	return value, err
}

// RedeemAndCredit claims code and credits its value to by.
func (s *Store) RedeemAndCredit(ctx context.Context, code string, by ledger.Identity, at time.Time) (int64, int64, error) {
	var value, balance int64
	err := s.withTx(ctx, "redeem and credit", func(tx *sql.Tx) error {
		var err error
		if value, err = claimCode(ctx, tx, code, by, at); err != nil {
			return err
		}
		balance, err = credit(ctx, tx, by, value)
		return err
	})
	return value, balance, err
}

// claimCode flips is_used with a guarded UPDATE so only one caller can win.
func claimCode(ctx context.Context, q queryer, code string, by ledger.Identity, at time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE codes SET is_used = 1, used_by = ?, used_at = ?
		WHERE code = ? AND is_used = 0
	`, nullString(string(by)), at.UTC().Format(time.RFC3339), code)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ledger.ErrCodeInvalid
	}

	var value int64
	err = q.QueryRowContext(ctx, "SELECT credits FROM codes WHERE code = ?", code).Scan(&value)
	return value, err
}

// InsertCodes stores new unused codes atomically.
func (s *Store) InsertCodes(ctx context.Context, codes []ledger.RedemptionCode) error {
	return s.withTx(ctx, "insert codes", func(tx *sql.Tx) error {
		for _, c := range codes {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO codes (code, credits, is_used, created_at) VALUES (?, ?, 0, ?)",
				c.Code, c.Value, c.CreatedAt.UTC().Format(time.RFC3339))
			if isUniqueConstraintError(err) {
				return ledger.ErrDuplicateCode
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// CodeExists reports whether a code has been issued.
func (s *Store) CodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM codes WHERE code = ?", code).Scan(&count)
	return count > 0, storeErr("code exists", err)
}

// ListCodes returns issued codes, newest first.
func (s *Store) ListCodes(ctx context.Context, includeUsed bool) ([]ledger.RedemptionCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT code, credits, is_used, used_by, used_at, created_at
		FROM codes
	`
	if !includeUsed {
		query += " WHERE is_used = 0"
	}
	query += " ORDER BY created_at DESC, code ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storeErr("list codes", err)
	}
	defer rows.Close()

	var codes []ledger.RedemptionCode
	for rows.Next() {
		var (
			c         ledger.RedemptionCode
			usedBy    sql.NullString
			usedAt    sql.NullString
			createdAt string
		)
		if err := rows.Scan(&c.Code, &c.Value, &c.Used, &usedBy, &usedAt, &createdAt); err != nil {
			return nil, storeErr("list codes", err)
		}
		c.UsedBy = ledger.Identity(usedBy.String)
		c.UsedAt = parseNullTime(usedAt)
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		codes = append(codes, c)
	}
	return codes, storeErr("list codes", rows.Err())
}

// =============================================================================
// PRODUCTS & STOCK
// =============================================================================

const productColumns = `
	p.id, p.name, p.price, COALESCE(p.file_path, ''),
	(SELECT COUNT(*) FROM product_stock s WHERE s.product_id = p.id)
`

// SaveProduct inserts a product.
func (s *Store) SaveProduct(ctx context.Context, p ledger.Product) (ledger.Product, error) {
	err := s.withTx(ctx, "save product", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO products (name, price, file_path, created_at) VALUES (?, ?, ?, ?)",
			p.Name, p.Price, nullString(p.FilePath), now())
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateProduct
		}
		if err != nil {
			return err
		}
		p.ID, err = res.LastInsertId()
		return err
	})
	return p, err
}

// GetProduct returns the named product with its stock count.
func (s *Store) GetProduct(ctx context.Context, name string) (ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := getProduct(ctx, s.db, name)
	return p, storeErr("get product", err)
}

// ListProducts returns all products ordered by name.
func (s *Store) ListProducts(ctx context.Context) ([]ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products p ORDER BY p.name")
	if err != nil {
		return nil, storeErr("list products", err)
	}
	defer rows.Close()

	var products []ledger.Product
	for rows.Next() {
		var p ledger.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.FilePath, &p.Stock); err != nil {
			return nil, storeErr("list products", err)
		}
		products = append(products, p)
	}
	return products, storeErr("list products", rows.Err())
}

// DeleteProduct removes a product and its unsold stock.
func (s *Store) DeleteProduct(ctx context.Context, name string) error {
	return s.withTx(ctx, "delete product", func(tx *sql.Tx) error {
		p, err := getProduct(ctx, tx, name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM product_stock WHERE product_id = ?", p.ID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "DELETE FROM products WHERE id = ?", p.ID)
		return err
	})
}

// AddStock appends items to the named product.
func (s *Store) AddStock(ctx context.Context, name string, items []string) (int, error) {
	var stock int
	err := s.withTx(ctx, "add stock", func(tx *sql.Tx) error {
		p, err := getProduct(ctx, tx, name)
		if err != nil {
			return err
		}
		for _, item := range items {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO product_stock (product_id, item) VALUES (?, ?)", p.ID, item); err != nil {
				return err
			}
		}
		stock = p.Stock + len(items)
		return nil
	})
	return stock, err
}

// ListStock returns the unsold items of a product in sale order.
func (s *Store) ListStock(ctx context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := getProduct(ctx, s.db, name)
	if err != nil {
		return nil, storeErr("list stock", err)
	}
	stock, err := listStock(ctx, s.db, p.ID)
	if err != nil {
		return nil, storeErr("list stock", err)
	}
	items := make([]string, len(stock))
	for i, st := range stock {
		items[i] = st.item
	}
	return items, nil
}

// RemoveStock deletes stock items by 1-based position, all or nothing.
func (s *Store) RemoveStock(ctx context.Context, name string, entries []int) (int, int, error) {
	var removed, remaining int
	err := s.withTx(ctx, "remove stock", func(tx *sql.Tx) error {
		p, err := getProduct(ctx, tx, name)
		if err != nil {
			return err
		}
		stock, err := listStock(ctx, tx, p.ID)
		if err != nil {
			return err
		}

		var invalid []int
		for _, n := range entries {
			if n < 1 || n > len(stock) {
				invalid = append(invalid, n)
			}
		}
		if len(invalid) > 0 {
			return &ledger.InvalidStockEntriesError{Entries: invalid, Available: len(stock)}
		}

		seen := make(map[int]bool, len(entries))
		for _, n := range entries {
			if seen[n] {
				continue
			}
			seen[n] = true
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM product_stock WHERE id = ?", stock[n-1].id); err != nil {
				return err
			}
			removed++
		}
		remaining = len(stock) - removed
		return nil
	})
	return removed, remaining, err
}

type stockRow struct {
	id   int64
	item string
}

func listStock(ctx context.Context, q queryer, productID int64) ([]stockRow, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT id, item FROM product_stock WHERE product_id = ? ORDER BY id", productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stock []stockRow
	for rows.Next() {
		var st stockRow
		if err := rows.Scan(&st.id, &st.item); err != nil {
			return nil, err
		}
		stock = append(stock, st)
	}
	return stock, rows.Err()
}

func getProduct(ctx context.Context, q queryer, name string) (ledger.Product, error) {
	var p ledger.Product
	err := q.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products p WHERE p.name = ?", name,
	).Scan(&p.ID, &p.Name, &p.Price, &p.FilePath, &p.Stock)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ledger.ErrProductNotFound
	}
	return p, err
}

// =============================================================================
// DISCOUNT CODES
// =============================================================================

// SaveDiscount inserts a discount code.
func (s *Store) SaveDiscount(ctx context.Context, d ledger.DiscountCode) error {
	return s.withTx(ctx, "save discount", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO discount_codes
			(code, discount_amount, discount_type, max_uses, uses_left, expiry_date)
			VALUES (?, ?, ?, ?, ?, ?)
		`, d.Code, d.Amount, string(d.Type), d.MaxUses, d.UsesLeft, d.ExpiresAt.UTC().Format(time.RFC3339))
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateDiscount
		}
		return err
	})
}

// ListDiscounts returns discount codes active at now.
func (s *Store) ListDiscounts(ctx context.Context, at time.Time) ([]ledger.DiscountCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT code, discount_amount, discount_type, max_uses, uses_left, expiry_date
		FROM discount_codes
		WHERE expiry_date > ? AND uses_left > 0
		ORDER BY code
	`, at.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, storeErr("list discounts", err)
	}
	defer rows.Close()

	var discounts []ledger.DiscountCode
	for rows.Next() {
		d, err := scanDiscount(rows)
		if err != nil {
			return nil, storeErr("list discounts", err)
		}
		discounts = append(discounts, d)
	}
	return discounts, storeErr("list discounts", rows.Err())
}

// DeleteDiscount removes a discount code.
func (s *Store) DeleteDiscount(ctx context.Context, code string) (bool, error) {
	var existed bool
	err := s.withTx(ctx, "delete discount", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM discount_codes WHERE code = ?", code)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		existed = n > 0
		return err
	})
	return existed, err
}

// PurgeDiscounts deletes discount codes that expired or ran out of uses
// before at. Returns the number removed.
func (s *Store) PurgeDiscounts(ctx context.Context, at time.Time) (int, error) {
	var n int64
	err := s.withTx(ctx, "purge discounts", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM discount_codes WHERE expiry_date <= ? OR uses_left <= 0",
			at.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDiscount(row scanner) (ledger.DiscountCode, error) {
	var (
		d       ledger.DiscountCode
		typ     string
		expires string
	)
	if err := row.Scan(&d.Code, &d.Amount, &typ, &d.MaxUses, &d.UsesLeft, &expires); err != nil {
		return d, err
	}
	d.Type = ledger.DiscountType(typ)
	d.ExpiresAt, _ = time.Parse(time.RFC3339, expires)
	return d, nil
}

// =============================================================================
// PURCHASES
// =============================================================================

// Purchase executes an order in one transaction: discount check, stock
// check, balance check, debit, stock pop, discount use, transaction record.
func (s *Store) Purchase(ctx context.Context, order ledger.PurchaseOrder) (ledger.Receipt, error) {
	var receipt ledger.Receipt
	err := s.withTx(ctx, "purchase", func(tx *sql.Tx) error {
		p, err := getProduct(ctx, tx, order.ProductName)
		if err != nil {
			return err
		}

		var discount *ledger.DiscountCode
		if order.DiscountCode != "" {
			d, err := scanDiscount(tx.QueryRowContext(ctx, `
				SELECT code, discount_amount, discount_type, max_uses, uses_left, expiry_date
				FROM discount_codes WHERE code = ?
			`, order.DiscountCode))
			if errors.Is(err, sql.ErrNoRows) {
				return ledger.ErrDiscountInvalid
			}
			if err != nil {
				return err
			}
			if !d.Active(order.At) {
				return ledger.ErrDiscountInvalid
			}
			discount = &d
		}

		if p.Stock < order.Quantity {
			return &ledger.InsufficientStockError{
				Product:   p.Name,
				Available: p.Stock,
				Requested: order.Quantity,
			}
		}

		cost, err := ledger.ComputeCost(p.Price, order.Quantity, discount)
		if err != nil {
			return err
		}

		if err := ensureAccount(ctx, tx, order.Identity); err != nil {
			return err
		}
		acct, err := getAccount(ctx, tx, order.Identity)
		if err != nil {
			return err
		}
		if acct.Balance < cost.Final {
			return &ledger.InsufficientCreditsError{Need: cost.Final, Have: acct.Balance}
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET credits = credits - ?, updated_at = ? WHERE user_id = ?",
			cost.Final, now(), string(order.Identity)); err != nil {
			return err
		}

		items, err := popStock(ctx, tx, p.ID, order.Quantity)
		if err != nil {
			return err
		}

		if discount != nil {
			if _, err := tx.ExecContext(ctx,
				"UPDATE discount_codes SET uses_left = uses_left - 1 WHERE code = ? AND uses_left > 0",
				discount.Code); err != nil {
				return err
			}
		}

		rec := ledger.Purchase{
			PurchaseID:     order.PurchaseID,
			Identity:       order.Identity,
			ProductID:      p.ID,
			ProductName:    p.Name,
			Price:          p.Price,
			Quantity:       order.Quantity,
			OriginalCost:   cost.Original,
			DiscountAmount: cost.Discount,
			Cost:           cost.Final,
			Items:          items,
			Timestamp:      order.At.UTC().Truncate(time.Second),
		}
		if discount != nil {
			rec.DiscountCode = discount.Code
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO transactions
			(purchase_id, user_id, product_id, product_name, price, amount,
			 original_cost, discount_amount, discount_code, cost, items, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.PurchaseID, string(rec.Identity), rec.ProductID, rec.ProductName, rec.Price,
			rec.Quantity, rec.OriginalCost, rec.DiscountAmount, nullString(rec.DiscountCode),
			rec.Cost, strings.Join(items, "\n"), rec.Timestamp.Format(time.RFC3339))
		if err != nil {
			return err
		}

		receipt = ledger.Receipt{
			Purchase: rec,
			Balance:  acct.Balance - cost.Final,
		}
		return nil
	})
	return receipt, err
}

// popStock removes and returns the oldest n stock items of a product.
func popStock(ctx context.Context, tx *sql.Tx, productID int64, n int) ([]string, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, item FROM product_stock WHERE product_id = ? ORDER BY id LIMIT ?",
		productID, n)
	if err != nil {
		return nil, err
	}

	var (
		ids   []int64
		items []string
	)
	for rows.Next() {
		var (
			id   int64
			item string
		)
		if err := rows.Scan(&id, &item); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
		items = append(items, item)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, "DELETE FROM product_stock WHERE id = ?", id); err != nil {
			return nil, err
		}
	}
	return items, nil
}

const purchaseColumns = `
	purchase_id, user_id, product_id, product_name, price, amount,
	original_cost, discount_amount, COALESCE(discount_code, ''), cost, items, timestamp
`

// PurchaseExists reports whether a purchase id is taken.
func (s *Store) PurchaseExists(ctx context.Context, purchaseID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE purchase_id = ?", purchaseID).Scan(&count)
	return count > 0, storeErr("purchase exists", err)
}

// GetPurchase returns a purchase by id.
func (s *Store) GetPurchase(ctx context.Context, purchaseID string) (ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := scanPurchase(s.db.QueryRowContext(ctx,
		"SELECT "+purchaseColumns+" FROM transactions WHERE purchase_id = ?", purchaseID))
	if errors.Is(err, sql.ErrNoRows) {
		return p, ledger.ErrPurchaseNotFound
	}
	return p, storeErr("get purchase", err)
}

// ListPurchases returns the most recent purchases of id, newest first.
func (s *Store) ListPurchases(ctx context.Context, id ledger.Identity, limit int) ([]ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+purchaseColumns+` FROM transactions
		WHERE user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, string(id), limit)
	if err != nil {
		return nil, storeErr("list purchases", err)
	}
	defer rows.Close()

	var purchases []ledger.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, storeErr("list purchases", err)
		}
		purchases = append(purchases, p)
	}
	return purchases, storeErr("list purchases", rows.Err())
}

func scanPurchase(row scanner) (ledger.Purchase, error) {
	var (
		p     ledger.Purchase
		user  string
		items string
		ts    string
	)
	err := row.Scan(&p.PurchaseID, &user, &p.ProductID, &p.ProductName, &p.Price, &p.Quantity,
		&p.OriginalCost, &p.DiscountAmount, &p.DiscountCode, &p.Cost, &items, &ts)
	if err != nil {
		return p, err
	}
	p.Identity = ledger.Identity(user)
	if items != "" {
		p.Items = strings.Split(items, "\n")
	}
	p.Timestamp, _ = time.Parse(time.RFC3339, ts)
	return p, nil
}

// Helper functions

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// storeErr leaves nil, business errors and existing StoreErrors alone and
// wraps everything else.
func storeErr(op string, err error) error {
	if err == nil || ledger.IsBusinessError(err) || ledger.IsStoreError(err) {
		return err
	}
	return &ledger.StoreError{Op: op, Err: err}
}
