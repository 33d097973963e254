package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID   map[string]product.Product
	getErr error
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) UpdatePrice(context.Context, string, product.PriceUpdate) error {
	return nil
}

func (m *mockProductRepo) UpdateVariantPrice(context.Context, string, string, product.PriceUpdate) error {
	return nil
}

type mockCouponValidator struct {
	discount  *coupon.Discount
	err       error
	redeemErr error
	redeemed  []string
}

func (m *mockCouponValidator) Quote(_ context.Context, _ string, _ []coupon.Item) (*coupon.Discount, error) {
	return m.discount, m.err
}

func (m *mockCouponValidator) Redeem(_ context.Context, code string) error {
	if m.redeemErr != nil {
		return m.redeemErr
	}
	m.redeemed = append(m.redeemed, code)
	return nil
}

type mockOrderRepo struct {
	orders    map[string]*Order
	lastEntry *StatusEntry
	updated   *Order
	deleted   string
	err       error
}

func newOrderRepo(orders ...*Order) *mockOrderRepo {
	m := &mockOrderRepo{orders: make(map[string]*Order)}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.err != nil {
		return m.err
	}
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, _ ListFilter) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, o *Order, entry StatusEntry) error {
	if m.err != nil {
		return m.err
	}
	m.orders[o.ID] = o
	m.lastEntry = &entry
	return nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order) error {
	if m.err != nil {
		return m.err
	}
	m.orders[o.ID] = o
	m.updated = o
	return nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	delete(m.orders, id)
	m.deleted = id
	return nil
}

// --- Helpers ---

var fixedNow = time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newProductRepo(products ...product.Product) *mockProductRepo {
	byID := make(map[string]product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{byID: byID}
}

func newTestService(products *mockProductRepo, coupons *mockCouponValidator, orders *mockOrderRepo) *Service {
	svc := NewService(products, coupons, orders)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func orderIn(id string, s Status) *Order {
	created := fixedNow.Add(-time.Hour)
	return &Order{
		ID:            id,
		Status:        s,
		PaymentStatus: PaymentPending,
		PaymentMethod: PaymentUPI,
		Subtotal:      dec("1000"),
		TotalDiscount: dec("100"),
		ShippingCost:  dec("50"),
		Tax:           dec("162"),
		FinalTotal:    dec("1112"),
		CreatedAt:     created,
		History:       []StatusEntry{{Status: StatusPending, Timestamp: created}},
	}
}

// --- PlaceOrder ---

func TestPlaceOrder_EmptyItems(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, newOrderRepo())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestPlaceOrder_InvalidQuantity(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, newOrderRepo())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []ItemRequest{{ProductID: "p1", Quantity: 0}},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, newOrderRepo())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []ItemRequest{{ProductID: "missing", Quantity: 1}},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "missing", pnfErr.ProductID)
}

func TestPlaceOrder_VariantNotFound(t *testing.T) {
	p := product.Product{ID: "p1", Price: dec("100")}
	svc := newTestService(newProductRepo(p), &mockCouponValidator{}, newOrderRepo())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []ItemRequest{{ProductID: "p1", VariantID: "xl", Quantity: 1}},
	})

	var vErr *VariantNotFoundError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "xl", vErr.VariantID)
}

func TestPlaceOrder_AutoBreakdown(t *testing.T) {
	shirt := product.Product{
		ID:    "p1",
		Price: dec("400"),
		Variants: []product.Variant{
			{ID: "xl", ProductID: "p1", Price: dec("450")},
		},
	}
	mug := product.Product{ID: "p2", Price: dec("100")}
	coupons := &mockCouponValidator{discount: &coupon.Discount{Code: "SAVE100", Amount: dec("100")}}
	orders := newOrderRepo()
	svc := newTestService(newProductRepo(shirt, mug), coupons, orders)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []ItemRequest{
			{ProductID: "p1", VariantID: "xl", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
		CouponCode:   "SAVE100",
		ShippingCost: dec("50"),
	})
	require.NoError(t, err)

	o := result.Order
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, PaymentCashOnDelivery, o.PaymentMethod)
	assert.True(t, dec("1000").Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, dec("100").Equal(o.TotalDiscount))
	assert.True(t, dec("162").Equal(o.Tax), "tax %s", o.Tax)
	assert.True(t, dec("1112").Equal(o.FinalTotal), "total %s", o.FinalTotal)
	assert.True(t, dec("450").Equal(o.Items[0].UnitPrice))
	assert.Equal(t, fixedNow, o.CreatedAt)
	require.Len(t, o.History, 1)
	assert.Equal(t, StatusPending, o.History[0].Status)
	assert.Equal(t, Describe(StatusPending), o.History[0].Notes)

	assert.Contains(t, orders.orders, o.ID)
	assert.Equal(t, []string{"SAVE100"}, coupons.redeemed)
	assert.Len(t, result.Products, 2)
}

func TestPlaceOrder_InvalidCoupon(t *testing.T) {
	p := product.Product{ID: "p1", Price: dec("10")}
	coupons := &mockCouponValidator{err: coupon.ErrInvalidCoupon}
	svc := newTestService(newProductRepo(p), coupons, newOrderRepo())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 1}},
		CouponCode: "BOGUS",
	})

	require.ErrorIs(t, err, coupon.ErrInvalidCoupon)
	assert.Empty(t, coupons.redeemed)
}

func TestPlaceOrder_RedeemFailureRemovesOrder(t *testing.T) {
	p := product.Product{ID: "p1", Price: dec("100")}
	coupons := &mockCouponValidator{
		discount:  &coupon.Discount{Code: "X", Amount: dec("10"), Description: "10 off"},
		redeemErr: coupon.ErrCouponUsageLimitReached,
	}
	orders := newOrderRepo()
	svc := newTestService(newProductRepo(p), coupons, orders)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 1}},
		CouponCode: "X",
	})

	require.ErrorIs(t, err, coupon.ErrCouponUsageLimitReached)
	assert.Empty(t, orders.orders)
	assert.NotEmpty(t, orders.deleted)
	assert.Empty(t, coupons.redeemed)
}

func TestPlaceOrder_NegativeShipping(t *testing.T) {
	p := product.Product{ID: "p1", Price: dec("10")}
	svc := newTestService(newProductRepo(p), &mockCouponValidator{}, newOrderRepo())

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items:        []ItemRequest{{ProductID: "p1", Quantity: 1}},
		ShippingCost: dec("-1"),
	})

	var vErr *pricing.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, vErr.Fields.Has(pricing.FieldShipping))
}

func TestPlaceOrder_CreateError(t *testing.T) {
	p := product.Product{ID: "p1", Price: dec("10")}
	orders := newOrderRepo()
	orders.err = errors.New("db write failed")
	svc := newTestService(newProductRepo(p), &mockCouponValidator{}, orders)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		Items: []ItemRequest{{ProductID: "p1", Quantity: 1}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "create order")
}

// --- Status changes ---

func TestUpdateStatus_StampsAndAppends(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		stamped func(o *Order) *time.Time
	}{
		{StatusPending, StatusConfirmed, func(o *Order) *time.Time { return o.ConfirmedAt }},
		{StatusProcessing, StatusShipped, func(o *Order) *time.Time { return o.ShippedAt }},
		{StatusOutForDelivery, StatusDelivered, func(o *Order) *time.Time { return o.DeliveredAt }},
		{StatusConfirmed, StatusCancelled, func(o *Order) *time.Time { return o.CancelledAt }},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			orders := newOrderRepo(orderIn("o1", tt.from))
			svc := newTestService(newProductRepo(), &mockCouponValidator{}, orders)

			got, err := svc.UpdateStatus(context.Background(), "o1", tt.to, "")
			require.NoError(t, err)

			assert.Equal(t, tt.to, got.Status)
			require.NotNil(t, tt.stamped(got))
			assert.Equal(t, fixedNow, *tt.stamped(got))
			require.Len(t, got.History, 2)
			assert.Equal(t, tt.to, got.History[1].Status)
			assert.Equal(t, Describe(tt.to), got.History[1].Notes)
			require.NotNil(t, orders.lastEntry)
			assert.Equal(t, got.History[1], *orders.lastEntry)
		})
	}
}

func TestUpdateStatus_KeepsNotes(t *testing.T) {
	orders := newOrderRepo(orderIn("o1", StatusProcessing))
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, orders)

	got, err := svc.UpdateStatus(context.Background(), "o1", StatusShipped, "AWB 99812")
	require.NoError(t, err)
	assert.Equal(t, "AWB 99812", got.History[1].Notes)
	assert.Nil(t, got.ConfirmedAt)
}

func TestUpdateStatus_IllegalTransition(t *testing.T) {
	orders := newOrderRepo(orderIn("o1", StatusPending))
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, orders)

	_, err := svc.UpdateStatus(context.Background(), "o1", StatusDelivered, "")

	var te *InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusPending, te.From)
	assert.Equal(t, StatusDelivered, te.To)
	assert.Nil(t, orders.lastEntry)
	assert.Equal(t, StatusPending, orders.orders["o1"].Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, newOrderRepo())

	_, err := svc.UpdateStatus(context.Background(), "nope", StatusConfirmed, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_DoesNotMutateLoadedHistory(t *testing.T) {
	o := orderIn("o1", StatusPending)
	orders := newOrderRepo(o)
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, orders)

	_, err := svc.UpdateStatus(context.Background(), "o1", StatusConfirmed, "")
	require.NoError(t, err)
	assert.Len(t, o.History, 1)
}

func TestCancel(t *testing.T) {
	for _, s := range Statuses {
		t.Run(string(s), func(t *testing.T) {
			orders := newOrderRepo(orderIn("o1", s))
			svc := newTestService(newProductRepo(), &mockCouponValidator{}, orders)

			got, err := svc.Cancel(context.Background(), "o1", "customer request")
			if !CanCancel(s) {
				require.ErrorIs(t, err, ErrNotCancellable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, got.Status)
			assert.NotNil(t, got.CancelledAt)
			assert.Equal(t, "customer request", got.History[len(got.History)-1].Notes)
		})
	}
}

func TestTimeline(t *testing.T) {
	o := orderIn("o1", StatusConfirmed)
	o.History = []StatusEntry{
		{Status: StatusConfirmed, Timestamp: fixedNow},
		{Status: StatusPending, Timestamp: fixedNow.Add(-time.Hour)},
	}
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, newOrderRepo(o))

	timeline, err := svc.Timeline(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, StatusPending, timeline[0].Status)
	assert.Equal(t, StatusConfirmed, timeline[1].Status)
}

// --- Pricing edits ---

func TestReprice_Manual(t *testing.T) {
	orders := newOrderRepo(orderIn("o1", StatusDelivered))
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, orders)

	got, err := svc.Reprice(context.Background(), "o1", pricing.Breakdown{
		Subtotal:   dec("1000"),
		Discount:   dec("200"),
		Shipping:   dec("0"),
		Tax:        dec("144"),
		FinalTotal: dec("944"),
	}, pricing.ModeManual)
	require.NoError(t, err)
	assert.True(t, dec("944").Equal(got.FinalTotal))
	assert.Same(t, got, orders.updated)
}

func TestReprice_Auto(t *testing.T) {
	orders := newOrderRepo(orderIn("o1", StatusPending))
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, orders)

	got, err := svc.Reprice(context.Background(), "o1", pricing.Breakdown{
		Subtotal: dec("1000"),
	}, pricing.ModeAuto)
	require.NoError(t, err)
	assert.True(t, dec("180").Equal(got.Tax))
	assert.True(t, dec("1180").Equal(got.FinalTotal))
}

func TestReprice_ReportsEveryViolation(t *testing.T) {
	orders := newOrderRepo(orderIn("o1", StatusPending))
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, orders)

	_, err := svc.Reprice(context.Background(), "o1", pricing.Breakdown{
		Subtotal:   dec("100"),
		Discount:   dec("150"),
		Shipping:   dec("-10"),
		Tax:        dec("0"),
		FinalTotal: dec("0"),
	}, pricing.ModeManual)

	var vErr *pricing.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.True(t, vErr.Fields.Has(pricing.FieldDiscount))
	assert.True(t, vErr.Fields.Has(pricing.FieldShipping))
	assert.True(t, vErr.Fields.Has(pricing.FieldFinalTotal))
	assert.Nil(t, orders.updated)
}

func TestUpdatePayment(t *testing.T) {
	orders := newOrderRepo(orderIn("o1", StatusShipped))
	svc := newTestService(newProductRepo(), &mockCouponValidator{}, orders)

	got, err := svc.UpdatePayment(context.Background(), "o1", PaymentCompleted)
	require.NoError(t, err)
	assert.Equal(t, PaymentCompleted, got.PaymentStatus)
	assert.Equal(t, StatusShipped, got.Status)
}

// --- Delete ---

func TestDelete(t *testing.T) {
	for _, s := range Statuses {
		t.Run(string(s), func(t *testing.T) {
			orders := newOrderRepo(orderIn("o1", s))
			svc := newTestService(newProductRepo(), &mockCouponValidator{}, orders)

			err := svc.Delete(context.Background(), "o1")
			if s == StatusPending || s == StatusCancelled {
				require.NoError(t, err)
				assert.Equal(t, "o1", orders.deleted)
				return
			}
			require.ErrorIs(t, err, ErrNotDeletable)
			assert.Empty(t, orders.deleted)
		})
	}
}
