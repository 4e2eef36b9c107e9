package ledger

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	maxCost = decimal.NewFromInt(math.MaxInt64)
)

// Cost is the price breakdown of an order.
type Cost struct {
	Original int64
	Discount int64
	Final    int64
}

// ComputeCost prices quantity units at price, applying d if non-nil.
// Percent discounts round down to whole credits; the discount never
// exceeds the original cost, so Final is never negative. Orders whose
// original cost does not fit in an int64 fail with ErrInvalidAmount.
func ComputeCost(price int64, quantity int, d *DiscountCode) (Cost, error) {
	original := decimal.NewFromInt(price).Mul(decimal.NewFromInt(int64(quantity)))
	if original.IsNegative() || original.GreaterThan(maxCost) {
		return Cost{}, fmt.Errorf("%w: order cost %s is out of range", ErrInvalidAmount, original)
	}
	discount := decimal.Zero

	if d != nil {
		switch d.Type {
		case DiscountPercent:
			discount = original.Mul(decimal.NewFromInt(d.Amount)).Div(hundred).Floor()
		case DiscountFixed:
			discount = decimal.NewFromInt(d.Amount)
		}
		if discount.GreaterThan(original) {
			discount = original
		}
		if discount.IsNegative() {
			discount = decimal.Zero
		}
	}

	return Cost{
		Original: original.IntPart(),
		Discount: discount.IntPart(),
		Final:    original.Sub(discount).IntPart(),
	}, nil
}
