package pricing

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Mode selects how a breakdown is treated by ValidateBreakdown.
type Mode string

const (
	// ModeAuto derives tax and final total from the other three fields.
	ModeAuto Mode = "auto"
	// ModeManual takes all five fields as entered and cross-checks the sum.
	ModeManual Mode = "manual"
)

// ParseMode converts a transport value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeAuto, ModeManual:
		return m, nil
	default:
		return "", errors.Errorf("unknown pricing mode %q", s)
	}
}

// Field names reported in FieldError. They match the order attributes.
const (
	FieldSubtotal   = "subtotal"
	FieldDiscount   = "totalDiscount"
	FieldShipping   = "shippingCost"
	FieldTax        = "tax"
	FieldFinalTotal = "finalTotal"
)

var (
	// TaxRate is the flat rate applied in auto mode.
	TaxRate = decimal.RequireFromString("0.18")
	// Tolerance is the largest accepted gap between the expected and the
	// entered final total in manual mode.
	Tolerance = decimal.RequireFromString("0.01")
)

// Breakdown is the monetary part of an order.
type Breakdown struct {
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	FinalTotal decimal.Decimal
}

// Expected returns subtotal - discount + shipping + tax.
func (b Breakdown) Expected() decimal.Decimal {
	return b.Subtotal.Sub(b.Discount).Add(b.Shipping).Add(b.Tax)
}

// ValidateBreakdown checks b and returns every violation found. In auto mode
// the returned breakdown carries the derived tax and final total; the values
// supplied for those two fields are ignored. In manual mode b is returned as is.
func ValidateBreakdown(b Breakdown, mode Mode) (Breakdown, FieldErrors) {
	if mode == ModeAuto {
		taxable := decimal.Max(zero, b.Subtotal.Sub(b.Discount))
		b.Tax = taxable.Mul(TaxRate).Round(0)
		b.FinalTotal = b.Expected()
	}

	var errs FieldErrors
	errs = errs.nonNegative(FieldSubtotal, b.Subtotal)
	errs = errs.nonNegative(FieldDiscount, b.Discount)
	if b.Discount.GreaterThan(b.Subtotal) {
		errs = errs.add(FieldDiscount, "discount exceeds subtotal")
	}
	errs = errs.nonNegative(FieldShipping, b.Shipping)
	errs = errs.nonNegative(FieldTax, b.Tax)
	errs = errs.nonNegative(FieldFinalTotal, b.FinalTotal)

	// Auto-mode totals balance by construction.
	if mode != ModeAuto {
		expected := b.Expected()
		if expected.Sub(b.FinalTotal).Abs().GreaterThan(Tolerance) {
			errs = errs.add(FieldFinalTotal, fmt.Sprintf(
				"final total does not match breakdown: expected %s, got %s",
				expected.StringFixed(2), b.FinalTotal.StringFixed(2),
			))
		}
	}

	return b, errs
}
