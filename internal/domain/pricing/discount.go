// Package pricing computes discount fractions and validates order monetary
// breakdowns. Everything here is pure and safe for concurrent use.
package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// fractionPlaces is the stored precision of a discount fraction (basis points).
const fractionPlaces = 4

// PricedItem is a price pair with its derived discount fraction. It applies to
// a top-level product as well as to a single variant.
type PricedItem struct {
	Price    decimal.Decimal
	OldPrice decimal.NullDecimal
	Discount decimal.Decimal
}

// DiscountPercentage returns the markdown from oldPrice to price as a fraction
// in [0, 1] rounded to 4 decimal places. Non-positive inputs and price
// increases yield zero.
func DiscountPercentage(price, oldPrice decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() || !oldPrice.IsPositive() {
		return zero
	}
	if price.GreaterThanOrEqual(oldPrice) {
		return zero
	}
	return oldPrice.Sub(price).Div(oldPrice).Round(fractionPlaces)
}

// DisplayDiscount renders a stored fraction as a whole percentage, e.g. 0.1502
// becomes "15".
func DisplayDiscount(fraction decimal.Decimal) string {
	if !fraction.IsPositive() {
		return "0"
	}
	return fraction.Mul(hundred).Round(0).String()
}

// Price validates a price pair and derives its discount. An absent old price
// is normal and produces a zero discount.
func Price(price decimal.Decimal, oldPrice decimal.NullDecimal) (PricedItem, FieldErrors) {
	var errs FieldErrors
	if !price.IsPositive() {
		errs = errs.add("price", "must be greater than 0")
	}
	if oldPrice.Valid && !oldPrice.Decimal.IsPositive() {
		errs = errs.add("oldPrice", "must be greater than 0")
	}
	if len(errs) > 0 {
		return PricedItem{}, errs
	}

	item := PricedItem{Price: price, OldPrice: oldPrice, Discount: zero}
	if oldPrice.Valid {
		item.Discount = DiscountPercentage(price, oldPrice.Decimal)
	}
	return item, nil
}
