package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply computes the discount rule grants on items. The amount is rounded to
// 2 places and lies in [0, subtotal].
func Apply(rule *Rule, items []Item) (Discount, error) {
	var (
		subtotal = decimal.Zero
		units    = 0
	)
	for _, it := range items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		units += it.Quantity
	}
	if rule.MinItems > 0 && units < rule.MinItems {
		return Discount{}, ErrInvalidCoupon
	}

	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
		if rule.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, rule.MaxDiscount)
		}
	case DiscountFixed:
		amount = rule.Value
	case DiscountFreeLowest:
		amount = lowestUnitPrice(items)
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	amount = decimal.Max(decimal.Zero, decimal.Min(amount, subtotal)).Round(2)
	return Discount{
		Code:        rule.Code,
		Amount:      amount,
		Description: rule.Description,
	}, nil
}

func lowestUnitPrice(items []Item) decimal.Decimal {
	var (
		lowest = decimal.Zero
		found  bool
	)
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if !found || it.Price.LessThan(lowest) {
			lowest = it.Price
			found = true
		}
	}
	return lowest
}
