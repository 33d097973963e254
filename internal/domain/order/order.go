package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned when the stored status moved on between the
	// read and the status write.
	ErrConflict = errors.New("order status changed concurrently")
)

// Order is a customer order with its monetary breakdown and status history.
type Order struct {
	ID            string
	Status        Status
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	Items         []OrderItem
	CouponCode    string

	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	ShippingCost  decimal.Decimal
	Tax           decimal.Decimal
	FinalTotal    decimal.Decimal

	CreatedAt   time.Time
	ConfirmedAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time

	History []StatusEntry
}

// OrderItem is a single line item. UnitPrice is captured at checkout.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	VariantID string          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Breakdown returns the monetary fields of o.
func (o *Order) Breakdown() pricing.Breakdown {
	return pricing.Breakdown{
		Subtotal:   o.Subtotal,
		Discount:   o.TotalDiscount,
		Shipping:   o.ShippingCost,
		Tax:        o.Tax,
		FinalTotal: o.FinalTotal,
	}
}

func (o *Order) setBreakdown(b pricing.Breakdown) {
	o.Subtotal = b.Subtotal
	o.TotalDiscount = b.Discount
	o.ShippingCost = b.Shipping
	o.Tax = b.Tax
	o.FinalTotal = b.FinalTotal
}

// stamp records the lifecycle timestamp that belongs to s, if any.
func (o *Order) stamp(s Status, at time.Time) {
	switch s {
	case StatusConfirmed:
		o.ConfirmedAt = &at
	case StatusShipped:
		o.ShippedAt = &at
	case StatusDelivered:
		o.DeliveredAt = &at
	case StatusCancelled:
		o.CancelledAt = &at
	}
}

// ListFilter narrows an order listing.
type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, error)
	// UpdateStatus stores the status, lifecycle timestamps and the new
	// history entry as one atomic unit. It returns ErrConflict when the
	// stored status is no longer the one o was read with.
	UpdateStatus(ctx context.Context, o *Order, entry StatusEntry) error
	// Update stores monetary and payment fields.
	Update(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id string) error
}
