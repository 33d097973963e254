package order

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
)

// RestoreError explains why an externally produced order was refused.
type RestoreError struct {
	OrderID string
	Reason  string
	Err     error
}

func (e *RestoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order %s: %s: %v", e.OrderID, e.Reason, e.Err)
	}
	return fmt.Sprintf("order %s: %s", e.OrderID, e.Reason)
}

func (e *RestoreError) Unwrap() error { return e.Err }

// Restore checks an order that was built outside the service, for example
// from an export, and fills the derived fields. The history must replay
// legally from PENDING and end in o.Status, the subtotal must equal the sum
// of the item lines, and the stored breakdown must balance. Lifecycle timestamps are recomputed from the history, CreatedAt
// defaults to the first entry.
func Restore(o *Order) error {
	fail := func(reason string, err error) error {
		return &RestoreError{OrderID: o.ID, Reason: reason, Err: err}
	}

	if o.ID == "" {
		return fail("missing id", nil)
	}
	if !o.Status.Valid() {
		return fail("unknown status", errors.Errorf("%q", o.Status))
	}
	if len(o.Items) == 0 {
		return fail("no items", ErrEmptyItems)
	}
	sum := decimal.Zero
	for _, it := range o.Items {
		if it.Quantity <= 0 {
			return fail("bad item", &InvalidQuantityError{ProductID: it.ProductID})
		}
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !sum.Equal(o.Subtotal) {
		return fail("subtotal does not match items",
			errors.Errorf("items sum to %s, subtotal is %s", sum.StringFixed(2), o.Subtotal.StringFixed(2)))
	}
	if len(o.History) == 0 {
		return fail("empty history", nil)
	}
	if err := ReplayHistory(o.History); err != nil {
		return fail("illegal history", err)
	}

	history := sortedHistory(o.History)
	if last := history[len(history)-1].Status; last != o.Status {
		return fail("status does not match history", errors.Errorf("history ends at %s", last))
	}
	if _, errs := pricing.ValidateBreakdown(o.Breakdown(), pricing.ModeManual); len(errs) > 0 {
		return fail("unbalanced breakdown", &pricing.ValidationError{Fields: errs})
	}

	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}
	if o.PaymentMethod == "" {
		o.PaymentMethod = PaymentCashOnDelivery
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = history[0].Timestamp
	}
	o.ConfirmedAt, o.ShippedAt, o.DeliveredAt, o.CancelledAt = nil, nil, nil, nil
	for _, e := range history {
		o.stamp(e.Status, e.Timestamp)
	}
	o.History = history
	return nil
}
