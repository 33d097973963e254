//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type StorageSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	pool      *pgxpool.Pool

	products *postgres.ProductRepository
	coupons  *postgres.CouponRepository
	orders   *postgres.OrderRepository
}

func TestStorage(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("storefront"),
		tcpostgres.WithUsername("storefront"),
		tcpostgres.WithPassword("storefront"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	pool, err := postgres.NewPool(ctx, dsn, postgres.PoolOptions{MaxConns: 4})
	s.Require().NoError(err)
	s.pool = pool
	s.Require().NoError(postgres.RunMigrations(ctx, pool))

	s.products = postgres.NewProductRepository(pool)
	s.coupons = postgres.NewCouponRepository(pool)
	s.orders = postgres.NewOrderRepository(pool)
}

func (s *StorageSuite) SetupTest() {
	_, err := s.pool.Exec(context.Background(),
		"TRUNCATE order_status_history, orders, product_variants, products, coupons")
	s.Require().NoError(err)
}

func (s *StorageSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.Require().NoError(s.container.Terminate(context.Background()))
	}
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (s *StorageSuite) seedKurta(ctx context.Context) {
	s.Require().NoError(s.products.Upsert(ctx, product.Product{
		ID:       "kurta",
		Name:     "Cotton Kurta",
		Category: "ethnic",
		Price:    dec("849"),
		OldPrice: decimal.NewNullDecimal(dec("999")),
		Discount: dec("0.1502"),
		Variants: []product.Variant{
			{ID: "m", Name: "M", SKU: "KUR-M", Price: dec("849")},
			{ID: "xl", Name: "XL", SKU: "KUR-XL", Price: dec("899")},
		},
	}))
}

func (s *StorageSuite) TestProducts() {
	ctx := context.Background()
	s.seedKurta(ctx)

	p, err := s.products.GetByID(ctx, "kurta")
	s.Require().NoError(err)
	s.True(dec("849").Equal(p.Price))
	s.True(p.OldPrice.Valid)
	s.True(dec("0.1502").Equal(p.Discount))
	s.Len(p.Variants, 2)

	s.Require().NoError(s.products.UpdateVariantPrice(ctx, "kurta", "xl", product.PriceUpdate{
		Price: dec("700"), OldPrice: decimal.NewNullDecimal(dec("1000")), Discount: dec("0.3"),
	}))
	p, err = s.products.GetByID(ctx, "kurta")
	s.Require().NoError(err)
	v, ok := p.Variant("xl")
	s.Require().True(ok)
	s.True(dec("0.3").Equal(v.Discount))

	s.Require().NoError(s.products.UpdatePrice(ctx, "kurta", product.PriceUpdate{Price: dec("800")}))
	p, err = s.products.GetByID(ctx, "kurta")
	s.Require().NoError(err)
	s.False(p.OldPrice.Valid)

	_, err = s.products.GetByID(ctx, "missing")
	s.ErrorIs(err, product.ErrNotFound)
	s.ErrorIs(s.products.UpdateVariantPrice(ctx, "kurta", "xxl", product.PriceUpdate{Price: dec("1")}),
		product.ErrVariantNotFound)

	list, err := s.products.GetByIDs(ctx, []string{"kurta", "missing"})
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *StorageSuite) TestCoupons() {
	ctx := context.Background()
	s.Require().NoError(s.coupons.Upsert(ctx, coupon.Rule{
		Code:         "FESTIVE10",
		DiscountType: coupon.DiscountPercentage,
		Value:        dec("10"),
		MaxUses:      1,
	}))

	rule, err := s.coupons.FindByCode(ctx, "festive10")
	s.Require().NoError(err)
	s.Equal(coupon.DiscountPercentage, rule.DiscountType)
	s.Zero(rule.Uses)

	s.Require().NoError(s.coupons.IncrementUses(ctx, "FESTIVE10"))
	s.ErrorIs(s.coupons.IncrementUses(ctx, "FESTIVE10"), coupon.ErrCouponUsageLimitReached)

	_, err = s.coupons.FindByCode(ctx, "NOPE")
	s.ErrorIs(err, coupon.ErrInvalidCoupon)
}

func (s *StorageSuite) TestOrderLifecycle() {
	ctx := context.Background()
	created := time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC)

	o := &order.Order{
		ID:            "ord-1",
		Status:        order.StatusPending,
		PaymentStatus: order.PaymentPending,
		PaymentMethod: order.PaymentUPI,
		Items: []order.OrderItem{
			{ProductID: "kurta", VariantID: "m", Quantity: 2, UnitPrice: dec("849")},
		},
		Subtotal:      dec("1698"),
		TotalDiscount: dec("0"),
		ShippingCost:  dec("0"),
		Tax:           dec("306"),
		FinalTotal:    dec("2004"),
		CreatedAt:     created,
		History: []order.StatusEntry{
			{Status: order.StatusPending, Timestamp: created, Notes: "placed"},
		},
	}
	s.Require().NoError(s.orders.Create(ctx, o))
	s.ErrorIs(s.orders.Create(ctx, o), postgres.ErrOrderExists)

	confirmedAt := created.Add(time.Hour)
	entry := order.StatusEntry{Status: order.StatusConfirmed, Timestamp: confirmedAt, Notes: "ok"}
	next := *o
	next.Status = order.StatusConfirmed
	next.ConfirmedAt = &confirmedAt
	next.History = append(append([]order.StatusEntry(nil), o.History...), entry)
	s.Require().NoError(s.orders.UpdateStatus(ctx, &next, entry))

	// Replaying the same transition finds the row already moved on.
	s.ErrorIs(s.orders.UpdateStatus(ctx, &next, entry), order.ErrConflict)

	got, err := s.orders.Get(ctx, "ord-1")
	s.Require().NoError(err)
	s.Equal(order.StatusConfirmed, got.Status)
	s.Require().NotNil(got.ConfirmedAt)
	s.True(confirmedAt.Equal(*got.ConfirmedAt))
	s.Require().Len(got.History, 2)
	s.Equal("ok", got.History[1].Notes)
	s.Equal(o.Items[0].VariantID, got.Items[0].VariantID)
	s.True(dec("2004").Equal(got.FinalTotal))

	got.PaymentStatus = order.PaymentCompleted
	got.Tax = dec("300")
	got.FinalTotal = dec("1998")
	s.Require().NoError(s.orders.Update(ctx, got))

	confirmed := order.StatusConfirmed
	list, err := s.orders.List(ctx, order.ListFilter{Status: &confirmed, Limit: 10})
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(order.PaymentCompleted, list[0].PaymentStatus)
	s.True(dec("1998").Equal(list[0].FinalTotal))

	pending := order.StatusPending
	list, err = s.orders.List(ctx, order.ListFilter{Status: &pending, Limit: 10})
	s.Require().NoError(err)
	s.Empty(list)

	s.Require().NoError(s.orders.Delete(ctx, "ord-1"))
	_, err = s.orders.Get(ctx, "ord-1")
	s.ErrorIs(err, order.ErrNotFound)
	s.ErrorIs(s.orders.Delete(ctx, "ord-1"), order.ErrNotFound)
}
