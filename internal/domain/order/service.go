package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// Sentinel errors for order operations.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrNotCancellable  = errors.New("order can no longer be cancelled")
	ErrNotDeletable    = errors.New("only pending or cancelled orders can be deleted")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// VariantNotFoundError indicates a product has no such variant.
type VariantNotFoundError struct {
	ProductID string
	VariantID string
}

func (e *VariantNotFoundError) Error() string {
	return fmt.Sprintf("variant %s of product %s not found", e.VariantID, e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Items         []ItemRequest
	CouponCode    string
	ShippingCost  decimal.Decimal
	PaymentMethod PaymentMethod
}

// ItemRequest references a product, and optionally one of its variants.
type ItemRequest struct {
	ProductID string
	VariantID string
	Quantity  int
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
	Coupon   *coupon.Discount
}

// Service runs order workflows on top of the lifecycle and pricing rules.
type Service struct {
	products product.Repository
	coupons  coupon.Validator
	orders   Repository
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	coupons coupon.Validator,
	orders Repository,
) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		now:      time.Now,
	}
}

// PlaceOrder prices the cart, applies the coupon, derives tax and total in
// auto mode and stores a new PENDING order.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	var (
		items       = make([]OrderItem, len(req.Items))
		couponItems = make([]coupon.Item, len(req.Items))
		products    = make([]product.Product, 0, len(req.Items))
		subtotal    = decimal.Zero
	)
	for i, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		price := p.Price
		if item.VariantID != "" {
			v, ok := p.Variant(item.VariantID)
			if !ok {
				return nil, &VariantNotFoundError{ProductID: item.ProductID, VariantID: item.VariantID}
			}
			price = v.Price
		}
		products = append(products, p)

		items[i] = OrderItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: price,
		}
		couponItems[i] = coupon.Item{ProductID: item.ProductID, Price: price, Quantity: item.Quantity}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	var applied *coupon.Discount
	discount := decimal.Zero
	if req.CouponCode != "" {
		applied, err = s.coupons.Quote(ctx, req.CouponCode, couponItems)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		discount = applied.Amount
	}

	b, errs := pricing.ValidateBreakdown(pricing.Breakdown{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: req.ShippingCost,
	}, pricing.ModeAuto)
	if len(errs) > 0 {
		return nil, &pricing.ValidationError{Fields: errs}
	}

	method := req.PaymentMethod
	if method == "" {
		method = PaymentCashOnDelivery
	}

	now := s.now()
	o := &Order{
		ID:            uuid.New().String(),
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		PaymentMethod: method,
		Items:         items,
		CouponCode:    req.CouponCode,
		CreatedAt:     now,
		History: []StatusEntry{{
			Status:    StatusPending,
			Timestamp: now,
			Notes:     Describe(StatusPending),
		}},
	}
	o.setBreakdown(b)

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	if applied != nil {
		if err := s.coupons.Redeem(ctx, applied.Code); err != nil {
			// The order must not outlive a failed redemption.
			if delErr := s.orders.Delete(ctx, o.ID); delErr != nil {
				return nil, errors.Wrapf(err, "redeem coupon (remove order %s: %v)", o.ID, delErr)
			}
			return nil, errors.Wrap(err, "redeem coupon")
		}
	}

	return &PlaceOrderResult{
		Order:    o,
		Products: products,
		Coupon:   applied,
	}, nil
}

// Get returns a single order with its history.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.Get(ctx, id)
}

// List returns orders matching f.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	return s.orders.List(ctx, f)
}

// Timeline returns the chronological status timeline of an order.
func (s *Service) Timeline(ctx context.Context, id string) ([]TimelineEntry, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return BuildTimeline(o.History), nil
}

// UpdateStatus moves an order to target. An empty notes falls back to the
// status description.
func (s *Service) UpdateStatus(ctx context.Context, id string, target Status, notes string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, target, notes)
}

// Cancel cancels an order while the cancellation policy still allows it.
func (s *Service) Cancel(ctx context.Context, id, notes string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanCancel(o.Status) {
		return nil, ErrNotCancellable
	}
	return s.transition(ctx, o, StatusCancelled, notes)
}

func (s *Service) transition(ctx context.Context, o *Order, target Status, notes string) (*Order, error) {
	if !IsValidTransition(o.Status, target) {
		return nil, &InvalidTransitionError{From: o.Status, To: target}
	}
	if notes == "" {
		notes = Describe(target)
	}

	now := s.now()
	entry := StatusEntry{Status: target, Timestamp: now, Notes: notes}

	next := *o
	next.Status = target
	next.stamp(target, now)
	next.History = append(append([]StatusEntry(nil), o.History...), entry)

	if err := s.orders.UpdateStatus(ctx, &next, entry); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return &next, nil
}

// Reprice replaces the monetary breakdown of an order. Every violation is
// returned at once in a *pricing.ValidationError.
func (s *Service) Reprice(ctx context.Context, id string, b pricing.Breakdown, mode pricing.Mode) (*Order, error) {
	checked, errs := pricing.ValidateBreakdown(b, mode)
	if len(errs) > 0 {
		return nil, &pricing.ValidationError{Fields: errs}
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	o.setBreakdown(checked)
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order pricing")
	}
	return o, nil
}

// UpdatePayment sets the payment status. It is independent of the order status.
func (s *Service) UpdatePayment(ctx context.Context, id string, ps PaymentStatus) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	o.PaymentStatus = ps
	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update payment status")
	}
	return o, nil
}

// Deletable reports whether an order in s may be removed.
func Deletable(s Status) bool {
	return s == StatusPending || s == StatusCancelled
}

// Delete removes a PENDING or CANCELLED order.
func (s *Service) Delete(ctx context.Context, id string) error {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if !Deletable(o.Status) {
		return ErrNotDeletable
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete order")
	}
	return nil
}
