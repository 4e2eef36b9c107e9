package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/credit-bot/ledger"
)

const (
	myPurchasesLimit   = 5
	userPurchasesLimit = 10
	defaultDaysValid   = 30
	stockPageSize      = 10
)

func (r *Router) registerCommands() {
	user := OptionSpec{Name: "user", Description: "Target user", Type: OptionUser, Required: true}

	// User commands
	r.register(&Command{
		Name:             "balance",
		Description:      "Check your credit balance",
		AllowBlacklisted: true,
		Handle:           r.balance,
	})
	r.register(&Command{
		Name:        "redeem",
		Description: "Redeem a code for credits",
		Options: []OptionSpec{
			{Name: "code", Description: "Code to redeem", Type: OptionString, Required: true},
		},
		Handle: r.redeem,
	})
	r.register(&Command{
		Name:        "stock",
		Description: "View available products and stock",
		Handle:      r.stock,
	})
	r.register(&Command{
		Name:        "purchase",
		Description: "Purchase a product with credits",
		Options: []OptionSpec{
			{Name: "product", Description: "Product name", Type: OptionString, Required: true},
			{Name: "quantity", Description: "How many to buy", Type: OptionInteger},
			{Name: "discount_code", Description: "Discount code", Type: OptionString},
		},
		Handle: r.purchase,
	})
	r.register(&Command{
		Name:        "my_purchases",
		Description: "View your recent purchases",
		Handle:      r.myPurchases,
	})

	// Admin commands
	r.register(&Command{
		Name:        "add_credits",
		Description: "[Admin] Add credits to a user",
		Admin:       true,
		Options: []OptionSpec{
			user,
			{Name: "amount", Description: "Credits to add", Type: OptionInteger, Required: true},
		},
		Handle: r.addCredits,
	})
	r.register(&Command{
		Name:        "check_balance",
		Description: "[Admin] Check a user's balance",
		Admin:       true,
		Options:     []OptionSpec{user},
		Handle:      r.checkBalance,
	})
	r.register(&Command{
		Name:        "generate_code",
		Description: "[Admin] Generate redemption codes",
		Admin:       true,
		Options: []OptionSpec{
			{Name: "credits", Description: "Credits per code", Type: OptionInteger, Required: true},
			{Name: "amount", Description: "Number of codes (1-50)", Type: OptionInteger},
		},
		Handle: r.generateCode,
	})
	r.register(&Command{
		Name:        "blacklist",
		Description: "[Admin] Blacklist a user",
		Admin:       true,
		Options:     []OptionSpec{user},
		Handle:      r.blacklist,
	})
	r.register(&Command{
		Name:        "unblacklist",
		Description: "[Admin] Remove a user from the blacklist",
		Admin:       true,
		Options:     []OptionSpec{user},
		Handle:      r.unblacklist,
	})
	r.register(&Command{
		Name:        "blacklist_status",
		Description: "[Admin] Check whether a user is blacklisted",
		Admin:       true,
		Options:     []OptionSpec{user},
		Handle:      r.blacklistStatus,
	})
	r.register(&Command{
		Name:        "user_purchases",
		Description: "[Admin] View a user's recent purchases",
		Admin:       true,
		Options:     []OptionSpec{user},
		Handle:      r.userPurchases,
	})
	r.register(&Command{
		Name:        "purchase_info",
		Description: "[Admin] Look up a purchase by ID",
		Admin:       true,
		Options: []OptionSpec{
			{Name: "purchase_id", Description: "Purchase ID", Type: OptionString, Required: true},
		},
		Handle: r.purchaseInfo,
	})
	r.register(&Command{
		Name:        "add_product",
		Description: "[Admin] Add a product",
		Admin:       true,
		Options: []OptionSpec{
			{Name: "name", Description: "Product name", Type: OptionString, Required: true},
			{Name: "price", Description: "Price in credits", Type: OptionInteger, Required: true},
		},
		Handle: r.addProduct,
	})
	r.register(&Command{
		Name:        "restock",
		Description: "[Admin] Add stock entries to a product",
		Admin:       true,
		Options: []OptionSpec{
			{Name: "product", Description: "Product name", Type: OptionString, Required: true},
			{Name: "items", Description: "Stock entries, separated by newlines or commas", Type: OptionString, Required: true},
		},
		Handle: r.restock,
	})
	r.register(&Command{
		Name:        "manage_stock",
		Description: "[Admin] List a product's stock entries",
		Admin:       true,
		Options: []OptionSpec{
			{Name: "product", Description: "Product name", Type: OptionString, Required: true},
			{Name: "page", Description: "Page number", Type: OptionInteger},
		},
		Handle: r.manageStock,
	})
	r.register(&Command{
		Name:        "remove_stock",
		Description: "[Admin] Remove stock entries by number",
		Admin:       true,
		Options: []OptionSpec{
			{Name: "product", Description: "Product name", Type: OptionString, Required: true},
			{Name: "entries", Description: "Entry numbers, e.g. 1,2,4-6", Type: OptionString, Required: true},
		},
		Handle: r.removeStock,
	})
	r.register(&Command{
		Name:        "remove_product",
		Description: "[Admin] Remove a product and its stock",
		Admin:       true,
		Options: []OptionSpec{
			{Name: "product", Description: "Product name", Type: OptionString, Required: true},
		},
		Handle: r.removeProduct,
	})
	r.register(&Command{
		Name:        "create_discount",
		Description: "[Admin] Create a discount code",
		Admin:       true,
		Options: []OptionSpec{
			{Name: "code", Description: "Discount code", Type: OptionString, Required: true},
			{Name: "amount", Description: "Credits off, or percent off", Type: OptionInteger, Required: true},
			{Name: "discount_type", Description: "FIXED or PERCENT", Type: OptionString, Required: true},
			{Name: "max_uses", Description: "Number of uses (default 1)", Type: OptionInteger},
			{Name: "days_valid", Description: "Days until expiry (default 30)", Type: OptionInteger},
		},
		Handle: r.createDiscount,
	})
	r.register(&Command{
		Name:        "list_discounts",
		Description: "[Admin] List active discount codes",
		Admin:       true,
		Handle:      r.listDiscounts,
	})
	r.register(&Command{
		Name:        "remove_discount",
		Description: "[Admin] Remove a discount code",
		Admin:       true,
		Options: []OptionSpec{
			{Name: "code", Description: "Discount code", Type: OptionString, Required: true},
		},
		Handle: r.removeDiscount,
	})
}

// =============================================================================
// CREDITS
// =============================================================================

func (r *Router) balance(ctx context.Context, req Request) (Reply, error) {
	balance, err := r.ledger.Balance(ctx, req.Caller.Identity)
	if err != nil {
		return Reply{}, err
	}
	return private(balanceMsg(balance)), nil
}

func (r *Router) redeem(ctx context.Context, req Request) (Reply, error) {
	code, err := req.Options.String("code")
	if err != nil {
		return Reply{}, err
	}

	credits, balance, err := r.ledger.Redeem(ctx, code, req.Caller.Identity)
	if errors.Is(err, ledger.ErrCodeInvalid) {
		return private(MsgInvalidCode), nil
	}
	if err != nil {
		return Reply{}, err
	}

	r.metrics.Granted(SourceRedeem, credits)
	r.log.WithFields(logrus.Fields{
		"caller":  string(req.Caller.Identity),
		"credits": credits,
		"balance": balance,
	}).Info("code redeemed")
	return private(redeemedMsg(credits)), nil
}

func (r *Router) addCredits(ctx context.Context, req Request) (Reply, error) {
	target, err := req.Options.User("user")
	if err != nil {
		return Reply{}, err
	}
	amount, err := req.Options.Int("amount")
	if err != nil {
		return Reply{}, err
	}
	if amount <= 0 {
		return private(MsgPositiveAmount), nil
	}

	balance, err := r.ledger.AdjustBalance(ctx, target, amount)
	if err != nil {
		return Reply{}, err
	}

	r.metrics.Granted(SourceAdmin, amount)
	r.log.WithFields(logrus.Fields{
		"admin":   string(req.Caller.Identity),
		"target":  string(target),
		"amount":  amount,
		"balance": balance,
	}).Info("credits added")
	return private(addedCreditsMsg(amount, target)), nil
}

func (r *Router) checkBalance(ctx context.Context, req Request) (Reply, error) {
	target, err := req.Options.User("user")
	if err != nil {
		return Reply{}, err
	}
	balance, err := r.ledger.Balance(ctx, target)
	if err != nil {
		return Reply{}, err
	}
	return private(checkBalanceMsg(target, balance)), nil
}

func (r *Router) generateCode(ctx context.Context, req Request) (Reply, error) {
	credits, err := req.Options.Int("credits")
	if err != nil {
		return Reply{}, err
	}
	count, err := req.Options.IntOr("amount", 1)
	if err != nil {
		return Reply{}, err
	}
	if count < 1 || count > ledger.MaxGeneratedCodes {
		return private(MsgCodeCountRange), nil
	}
	if credits <= 0 {
		return private(MsgPositiveAmount), nil
	}

	codes, err := r.ledger.GenerateCodes(ctx, credits, int(count))
	if err != nil {
		return Reply{}, err
	}

	r.log.WithFields(logrus.Fields{
		"admin":   string(req.Caller.Identity),
		"count":   len(codes),
		"credits": credits,
	}).Info("codes generated")
	return private(generatedCodesMsg(codes, credits)), nil
}

// =============================================================================
// BLACKLIST
// =============================================================================

func (r *Router) blacklist(ctx context.Context, req Request) (Reply, error) {
	target, err := req.Options.User("user")
	if err != nil {
		return Reply{}, err
	}
	if _, err := r.ledger.SetBlacklisted(ctx, target, true); err != nil {
		return Reply{}, err
	}

	r.log.WithFields(logrus.Fields{
		"admin":  string(req.Caller.Identity),
		"target": string(target),
	}).Info("user blacklisted")
	return private(blacklistedMsg(target)), nil
}

func (r *Router) unblacklist(ctx context.Context, req Request) (Reply, error) {
	target, err := req.Options.User("user")
	if err != nil {
		return Reply{}, err
	}

	blocked, err := r.ledger.IsBlacklisted(ctx, target)
	if err != nil {
		return Reply{}, err
	}
	if !blocked {
		return private(notBlacklistedMsg(target)), nil
	}
	if _, err := r.ledger.SetBlacklisted(ctx, target, false); err != nil {
		return Reply{}, err
	}

	r.log.WithFields(logrus.Fields{
		"admin":  string(req.Caller.Identity),
		"target": string(target),
	}).Info("user unblacklisted")
	return private(unblacklistedMsg(target)), nil
}

func (r *Router) blacklistStatus(ctx context.Context, req Request) (Reply, error) {
	target, err := req.Options.User("user")
	if err != nil {
		return Reply{}, err
	}
	blocked, err := r.ledger.IsBlacklisted(ctx, target)
	if err != nil {
		return Reply{}, err
	}
	return private(blacklistStatusMsg(target, blocked)), nil
}

// =============================================================================
// SHOP
// =============================================================================

func (r *Router) stock(ctx context.Context, _ Request) (Reply, error) {
	products, err := r.ledger.Products(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(products) == 0 {
		return private(MsgNoProducts), nil
	}
	return private(stockMsg(products)), nil
}

func (r *Router) purchase(ctx context.Context, req Request) (Reply, error) {
	product, err := req.Options.String("product")
	if err != nil {
		return Reply{}, err
	}
	quantity, err := req.Options.IntOr("quantity", 1)
	if err != nil {
		return Reply{}, err
	}
	if quantity < 1 {
		return private(MsgQuantityTooLow), nil
	}
	discount := req.Options.StringOr("discount_code", "")

	receipt, err := r.ledger.Purchase(ctx, req.Caller.Identity, product, int(quantity), discount)
	if reply, ok := purchaseFailure(err); ok {
		return reply, nil
	}
	if err != nil {
		return Reply{}, err
	}

	log := r.log.WithFields(logrus.Fields{
		"caller":      string(req.Caller.Identity),
		"purchase_id": receipt.PurchaseID,
		"product":     receipt.ProductName,
		"quantity":    receipt.Quantity,
		"cost":        receipt.Cost,
	})
	log.Info("purchase completed")

	if p, err := r.ledger.Store.GetProduct(ctx, receipt.ProductName); err == nil && p.Stock == 0 {
		log.Warn("product out of stock")
		r.alertStockEmpty(ctx, receipt.ProductName)
	}
	return private(receiptMsg(receipt)), nil
}

// purchaseFailure maps expected purchase errors to replies.
func purchaseFailure(err error) (Reply, bool) {
	var (
		credits *ledger.InsufficientCreditsError
		stock   *ledger.InsufficientStockError
	)
	switch {
	case err == nil:
		return Reply{}, false
	case errors.Is(err, ledger.ErrInvalidQuantity):
		return private(MsgQuantityTooLow), true
	case errors.Is(err, ledger.ErrInvalidAmount):
		return private(MsgOrderTooLarge), true
	case errors.Is(err, ledger.ErrProductNotFound):
		return private(MsgProductNotFound), true
	case errors.As(err, &stock):
		return private(notEnoughStockMsg(stock.Available)), true
	case errors.Is(err, ledger.ErrDiscountInvalid):
		return private(MsgInvalidDiscount), true
	case errors.As(err, &credits):
		return private(insufficientCreditsMsg(credits.Need, credits.Have)), true
	}
	return Reply{}, false
}

func (r *Router) myPurchases(ctx context.Context, req Request) (Reply, error) {
	purchases, err := r.ledger.PurchaseHistory(ctx, req.Caller.Identity, myPurchasesLimit)
	if err != nil {
		return Reply{}, err
	}
	if len(purchases) == 0 {
		return private(MsgNoPurchases), nil
	}
	return private(purchaseListMsg("Your Recent Purchases", purchases, MsgPurchaseIDsFooter)), nil
}

func (r *Router) userPurchases(ctx context.Context, req Request) (Reply, error) {
	target, err := req.Options.User("user")
	if err != nil {
		return Reply{}, err
	}
	purchases, err := r.ledger.PurchaseHistory(ctx, target, userPurchasesLimit)
	if err != nil {
		return Reply{}, err
	}
	if len(purchases) == 0 {
		return private(noUserPurchasesMsg(target)), nil
	}
	return private(purchaseListMsg("Recent Purchases - "+target.Mention(), purchases, "")), nil
}

func (r *Router) purchaseInfo(ctx context.Context, req Request) (Reply, error) {
	id, err := req.Options.String("purchase_id")
	if err != nil {
		return Reply{}, err
	}
	p, err := r.ledger.PurchaseByID(ctx, id)
	if errors.Is(err, ledger.ErrPurchaseNotFound) {
		return private(noPurchaseMsg(strings.TrimSpace(id))), nil
	}
	if err != nil {
		return Reply{}, err
	}
	return private(purchaseInfoMsg(p)), nil
}

func (r *Router) addProduct(ctx context.Context, req Request) (Reply, error) {
	name, err := req.Options.String("name")
	if err != nil {
		return Reply{}, err
	}
	price, err := req.Options.Int("price")
	if err != nil {
		return Reply{}, err
	}
	if price < 0 {
		return private(MsgNegativePrice), nil
	}

	p, err := r.ledger.AddProduct(ctx, name, price, "")
	if errors.Is(err, ledger.ErrDuplicateProduct) {
		return private(duplicateProductMsg(strings.TrimSpace(name))), nil
	}
	if err != nil {
		return Reply{}, err
	}

	r.log.WithFields(logrus.Fields{
		"admin":   string(req.Caller.Identity),
		"product": p.Name,
		"price":   p.Price,
	}).Info("product added")
	return private(addedProductMsg(p)), nil
}

func (r *Router) restock(ctx context.Context, req Request) (Reply, error) {
	name, err := req.Options.String("product")
	if err != nil {
		return Reply{}, err
	}
	raw, err := req.Options.String("items")
	if err != nil {
		return Reply{}, err
	}

	var items []string
	for _, it := range ledger.SplitStockItems(raw) {
		if it = strings.TrimSpace(it); it != "" {
			items = append(items, it)
		}
	}

	total, err := r.ledger.Restock(ctx, name, items)
	switch {
	case errors.Is(err, ledger.ErrEmptyStock):
		return private(MsgNoStockItems), nil
	case errors.Is(err, ledger.ErrProductNotFound):
		return private(MsgProductNotFound), nil
	case err != nil:
		return Reply{}, err
	}

	name = strings.TrimSpace(name)
	r.log.WithFields(logrus.Fields{
		"admin":   string(req.Caller.Identity),
		"product": name,
		"added":   len(items),
		"stock":   total,
	}).Info("product restocked")
	return private(restockedMsg(len(items), name)), nil
}

func (r *Router) manageStock(ctx context.Context, req Request) (Reply, error) {
	name, err := req.Options.String("product")
	if err != nil {
		return Reply{}, err
	}
	page, err := req.Options.IntOr("page", 1)
	if err != nil {
		return Reply{}, err
	}

	items, err := r.ledger.StockItems(ctx, name)
	if errors.Is(err, ledger.ErrProductNotFound) {
		return private(MsgProductNotFound), nil
	}
	if err != nil {
		return Reply{}, err
	}
	if len(items) == 0 {
		return private(MsgNoStockEntries), nil
	}

	pages := (len(items) + stockPageSize - 1) / stockPageSize
	if page < 1 || page > int64(pages) {
		return private(stockPageRangeMsg(pages)), nil
	}
	first := (int(page) - 1) * stockPageSize
	last := min(first+stockPageSize, len(items))
	return private(stockPageMsg(strings.TrimSpace(name), int(page), pages, first+1, items[first:last])), nil
}

func (r *Router) removeStock(ctx context.Context, req Request) (Reply, error) {
	name, err := req.Options.String("product")
	if err != nil {
		return Reply{}, err
	}
	raw, err := req.Options.String("entries")
	if err != nil {
		return Reply{}, err
	}

	entries, err := ledger.ParseStockEntries(raw)
	if err != nil {
		return private(MsgStockEntryFormat), nil
	}

	var invalid *ledger.InvalidStockEntriesError
	removed, remaining, err := r.ledger.RemoveStock(ctx, name, entries)
	switch {
	case errors.Is(err, ledger.ErrProductNotFound):
		return private(MsgProductNotFound), nil
	case errors.As(err, &invalid):
		return private(invalidStockEntriesMsg(invalid.Entries)), nil
	case errors.Is(err, ledger.ErrStockEntryFormat):
		return private(MsgStockEntryFormat), nil
	case err != nil:
		return Reply{}, err
	}

	name = strings.TrimSpace(name)
	log := r.log.WithFields(logrus.Fields{
		"admin":     string(req.Caller.Identity),
		"product":   name,
		"removed":   removed,
		"remaining": remaining,
	})
	log.Info("stock removed")
	if remaining == 0 {
		log.Warn("product out of stock")
		r.alertStockEmpty(ctx, name)
	}
	return private(removedStockMsg(removed, name)), nil
}

func (r *Router) removeProduct(ctx context.Context, req Request) (Reply, error) {
	name, err := req.Options.String("product")
	if err != nil {
		return Reply{}, err
	}
	err = r.ledger.RemoveProduct(ctx, name)
	if errors.Is(err, ledger.ErrProductNotFound) {
		return private(MsgProductNotFound), nil
	}
	if err != nil {
		return Reply{}, err
	}

	name = strings.TrimSpace(name)
	r.log.WithFields(logrus.Fields{
		"admin":   string(req.Caller.Identity),
		"product": name,
	}).Info("product removed")
	return private(removedProductMsg(name)), nil
}

// =============================================================================
// DISCOUNTS
// =============================================================================

func (r *Router) createDiscount(ctx context.Context, req Request) (Reply, error) {
	code, err := req.Options.String("code")
	if err != nil {
		return Reply{}, err
	}
	amount, err := req.Options.Int("amount")
	if err != nil {
		return Reply{}, err
	}
	rawType, err := req.Options.String("discount_type")
	if err != nil {
		return Reply{}, err
	}
	maxUses, err := req.Options.IntOr("max_uses", 1)
	if err != nil {
		return Reply{}, err
	}
	days, err := req.Options.IntOr("days_valid", defaultDaysValid)
	if err != nil {
		return Reply{}, err
	}

	typ := ledger.DiscountType(strings.ToUpper(strings.TrimSpace(rawType)))
	switch {
	case !typ.Valid():
		return private(MsgDiscountType), nil
	case typ == ledger.DiscountPercent && (amount < 1 || amount > 100):
		return private(MsgDiscountPercent), nil
	case amount <= 0:
		return private(MsgPositiveAmount), nil
	case maxUses < 1 || days < 1:
		return private(MsgDiscountLimits), nil
	}

	d, err := r.ledger.CreateDiscount(ctx, code, amount, typ, int(maxUses), time.Duration(days)*24*time.Hour)
	if errors.Is(err, ledger.ErrDuplicateDiscount) {
		return private(MsgDuplicateDiscount), nil
	}
	if err != nil {
		return Reply{}, err
	}

	r.log.WithFields(logrus.Fields{
		"admin":    string(req.Caller.Identity),
		"code":     d.Code,
		"discount": d.Describe(),
		"max_uses": d.MaxUses,
	}).Info("discount created")
	return private(createdDiscountMsg(d)), nil
}

func (r *Router) listDiscounts(ctx context.Context, _ Request) (Reply, error) {
	discounts, err := r.ledger.ActiveDiscounts(ctx)
	if err != nil {
		return Reply{}, err
	}
	if len(discounts) == 0 {
		return private(MsgNoDiscounts), nil
	}
	return private(discountListMsg(discounts)), nil
}

func (r *Router) removeDiscount(ctx context.Context, req Request) (Reply, error) {
	code, err := req.Options.String("code")
	if err != nil {
		return Reply{}, err
	}
	removed, err := r.ledger.RemoveDiscount(ctx, code)
	if err != nil {
		return Reply{}, err
	}
	if !removed {
		return private(unknownDiscountMsg(strings.TrimSpace(code))), nil
	}
	return private(removedDiscountMsg(strings.TrimSpace(code))), nil
}
