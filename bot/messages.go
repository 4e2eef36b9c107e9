package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/warp/credit-bot/ledger"
)

// MaxReplyLength is the chat platform's message length limit in characters.
const MaxReplyLength = 2000

// Fixed replies.
const (
	MsgGenericError      = "An error occurred while executing this command."
	MsgBlacklisted       = "You are blacklisted from using this bot."
	MsgUnknownCommand    = "Unknown command."
	MsgInvalidCode       = "Invalid or already used code!"
	MsgPositiveAmount    = "Amount must be a positive number."
	MsgCodeCountRange    = "Please generate between 1 and 50 codes at a time."
	MsgNoProducts        = "No products available."
	MsgQuantityTooLow    = "Quantity must be at least 1!"
	MsgProductNotFound   = "Product not found!"
	MsgInvalidDiscount   = "Invalid or expired discount code!"
	MsgNoPurchases       = "You haven't made any purchases yet!"
	MsgNoDiscounts       = "No active discount codes found."
	MsgNoStockItems      = "No stock entries given."
	MsgPurchaseIDsFooter = "Keep your Purchase IDs for reference if you need support!"
	MsgItemsTooLong      = "Your items are too long to show here. Contact an admin with your Purchase ID to receive them."
	MsgNegativePrice     = "Price cannot be negative."
	MsgDiscountType      = "Discount type must be either 'FIXED' or 'PERCENT'"
	MsgDiscountPercent   = "Percentage discount must be between 1 and 100"
	MsgDiscountLimits    = "Max uses and days valid must be at least 1."
	MsgDuplicateDiscount = "A discount code with this name already exists!"
	MsgOrderTooLarge     = "This order is too large to process."
	MsgNoStockEntries    = "No stock entries found!"
	MsgStockEntryFormat  = "Invalid entry format! Use numbers separated by commas or ranges (e.g., '1,2,3' or '1-3' or '1,2,4-6')"

	msgPermissionDenied = "You need the '%s' role to use this command."
)

const timeLayout = "2006-01-02 03:04:05 PM"

func permissionDenied(label string) string {
	return fmt.Sprintf(msgPermissionDenied, label)
}

func optionInvalid(err *OptionError) string {
	return fmt.Sprintf("Missing or invalid option: %s.", err.Name)
}

// =============================================================================
// CREDITS
// =============================================================================

func balanceMsg(balance int64) string {
	return fmt.Sprintf("Your balance: %d credits", balance)
}

func checkBalanceMsg(id ledger.Identity, balance int64) string {
	return fmt.Sprintf("%s's balance: %d credits", id.Mention(), balance)
}

func addedCreditsMsg(amount int64, id ledger.Identity) string {
	return fmt.Sprintf("Added %d credits to %s's account!", amount, id.Mention())
}

func redeemedMsg(credits int64) string {
	return fmt.Sprintf("Successfully redeemed %d credits!", credits)
}

func generatedCodesMsg(codes []string, credits int64) string {
	if len(codes) == 1 {
		return fmt.Sprintf("Generated code: %s worth %d credits", codes[0], credits)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generated %d codes worth %d credits each:\n", len(codes), credits)
	b.WriteString(strings.Join(codes, "\n"))
	return b.String()
}

// =============================================================================
// BLACKLIST
// =============================================================================

func blacklistedMsg(id ledger.Identity) string {
	return fmt.Sprintf("%s has been blacklisted.", id.Mention())
}

func unblacklistedMsg(id ledger.Identity) string {
	return fmt.Sprintf("%s has been removed from the blacklist.", id.Mention())
}

func notBlacklistedMsg(id ledger.Identity) string {
	return fmt.Sprintf("%s is not blacklisted.", id.Mention())
}

func blacklistStatusMsg(id ledger.Identity, blocked bool) string {
	if blocked {
		return fmt.Sprintf("%s is blacklisted.", id.Mention())
	}
	return notBlacklistedMsg(id)
}

// =============================================================================
// SHOP
// =============================================================================

func stockMsg(products []ledger.Product) string {
	entries := make([]string, len(products))
	for i, p := range products {
		entries[i] = fmt.Sprintf("%s:\nStock: %d | Credits: %d", p.Name, p.Stock, p.Price)
	}
	return "Available Products:\n\n" + strings.Join(entries, "\n\n")
}

func notEnoughStockMsg(available int) string {
	return fmt.Sprintf("Not enough stock! Available: %d", available)
}

func insufficientCreditsMsg(need, have int64) string {
	return fmt.Sprintf("Insufficient credits! You need %d credits, but have %d.", need, have)
}

func receiptMsg(r ledger.Receipt) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Purchase successful! %dx %s", r.Quantity, r.ProductName)
	if r.DiscountAmount > 0 {
		fmt.Fprintf(&b, "\nOriginal cost: %d credits", r.OriginalCost)
		fmt.Fprintf(&b, "\nDiscount applied: %d credits", r.DiscountAmount)
	}
	fmt.Fprintf(&b, "\nFinal cost: %d credits", r.Cost)
	fmt.Fprintf(&b, "\nPurchase ID: `%s`", r.PurchaseID)
	fmt.Fprintf(&b, "\nRemaining balance: %d credits", r.Balance)
	if len(r.Items) == 0 {
		return b.String()
	}

	items := "\n\n```\n" + strings.Join(r.Items, "\n") + "\n```"
	if len([]rune(b.String()+items)) > MaxReplyLength {
		b.WriteString("\n\n" + MsgItemsTooLong)
		return b.String()
	}
	b.WriteString(items)
	return b.String()
}

func purchaseListMsg(title string, purchases []ledger.Purchase, footer string) string {
	var b strings.Builder
	b.WriteString(title)
	for _, p := range purchases {
		fmt.Fprintf(&b, "\n\nPurchase ID: %s\nProduct: %s\nQuantity: %d\nTotal Cost: %d credits\nTime: %s",
			p.PurchaseID, p.ProductName, p.Quantity, p.Cost, p.Timestamp.Format(timeLayout))
	}
	if footer != "" {
		b.WriteString("\n\n")
		b.WriteString(footer)
	}
	return b.String()
}

func noUserPurchasesMsg(id ledger.Identity) string {
	return fmt.Sprintf("No purchases found for %s", id.Mention())
}

func noPurchaseMsg(purchaseID string) string {
	return fmt.Sprintf("No purchase found with ID: %s", purchaseID)
}

func purchaseInfoMsg(p ledger.Purchase) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Purchase Information - %s\n", p.PurchaseID)
	fmt.Fprintf(&b, "Customer: %s\n", p.Identity.Mention())
	fmt.Fprintf(&b, "Product: %s\n", p.ProductName)
	fmt.Fprintf(&b, "Quantity: %d\n", p.Quantity)
	fmt.Fprintf(&b, "Price per Unit: %d credits\n", p.Price)
	if p.DiscountAmount > 0 {
		fmt.Fprintf(&b, "Original Cost: %d credits\n", p.OriginalCost)
		fmt.Fprintf(&b, "Discount: %d credits (%s)\n", p.DiscountAmount, p.DiscountCode)
	}
	fmt.Fprintf(&b, "Total Cost: %d credits\n", p.Cost)
	fmt.Fprintf(&b, "Purchase Time: %s", p.Timestamp.Format(timeLayout))
	return b.String()
}

func addedProductMsg(p ledger.Product) string {
	if p.Stock > 0 {
		return fmt.Sprintf("Added product %s for %d credits with %d stock!", p.Name, p.Price, p.Stock)
	}
	return fmt.Sprintf("Added product %s for %d credits!", p.Name, p.Price)
}

func duplicateProductMsg(name string) string {
	return fmt.Sprintf("A product named %s already exists!", name)
}

func restockedMsg(added int, name string) string {
	return fmt.Sprintf("Added %d stock entries to %s!", added, name)
}

func stockPageRangeMsg(pages int) string {
	return fmt.Sprintf("Invalid page number! Please choose between 1 and %d", pages)
}

// stockPageMsg numbers entries from first, which is 1-based.
func stockPageMsg(name string, page, pages, first int, entries []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Stock entries for %s (Page %d/%d):\n```\n", name, page, pages)
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", first+i, e)
	}
	b.WriteString("```\n\nTo remove specific entries, use `/remove_stock [product] [entry_numbers]`")
	return b.String()
}

func invalidStockEntriesMsg(entries []int) string {
	nums := make([]string, len(entries))
	for i, n := range entries {
		nums[i] = strconv.Itoa(n)
	}
	return "Invalid entry numbers: " + strings.Join(nums, ", ")
}

func removedStockMsg(removed int, name string) string {
	return fmt.Sprintf("Successfully removed %d stock entries from %s!", removed, name)
}

func removedProductMsg(name string) string {
	return fmt.Sprintf("Removed product %s.", name)
}

// =============================================================================
// DISCOUNTS
// =============================================================================

func createdDiscountMsg(d ledger.DiscountCode) string {
	return fmt.Sprintf("Created discount code: %s\nDiscount: %s\nMax uses: %d\nExpires: %s",
		d.Code, d.Describe(), d.MaxUses, d.ExpiresAt.Format(timeLayout))
}

func discountListMsg(discounts []ledger.DiscountCode) string {
	var b strings.Builder
	b.WriteString("Active Discount Codes")
	for _, d := range discounts {
		fmt.Fprintf(&b, "\n\n%s\nDiscount: %s\nUses left: %d\nExpires: %s",
			d.Code, d.Describe(), d.UsesLeft, d.ExpiresAt.Format(timeLayout))
	}
	return b.String()
}

func unknownDiscountMsg(code string) string {
	return fmt.Sprintf("Discount code %s not found!", strings.ToUpper(code))
}

func removedDiscountMsg(code string) string {
	return fmt.Sprintf("Removed discount code: %s", strings.ToUpper(code))
}

// truncate caps s at MaxReplyLength characters.
func truncate(s string) string {
	r := []rune(s)
	if len(r) <= MaxReplyLength {
		return s
	}
	return string(r[:MaxReplyLength-3]) + "..."
}
