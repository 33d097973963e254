package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type pricePair struct {
	Price    decimal.Decimal     `json:"price"`
	OldPrice decimal.NullDecimal `json:"oldPrice"`
}

type variantJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	SKU  string `json:"sku"`
	pricePair
}

type productJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	pricePair
	Image struct {
		Thumbnail string `json:"thumbnail"`
		Mobile    string `json:"mobile"`
		Tablet    string `json:"tablet"`
		Desktop   string `json:"desktop"`
	} `json:"image"`
	Variants []variantJSON `json:"variants"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (defaults to the embedded catalog)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, postgres.PoolOptions{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	data := db.Products
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))
		if data, err = os.ReadFile(productsFile); err != nil {
			return errors.Wrap(err, "read products file")
		}
	}
	products, err := parseProducts(data)
	if err != nil {
		return errors.Wrap(err, "parse products")
	}

	if err := seedProducts(ctx, postgres.NewProductRepository(pool), products); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, postgres.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

// parseProducts decodes the catalog and derives every stored discount from
// its price pair.
func parseProducts(data []byte) ([]product.Product, error) {
	var raw []productJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode JSON")
	}

	out := make([]product.Product, 0, len(raw))
	for _, p := range raw {
		priced, err := priceOf(p.pricePair)
		if err != nil {
			return nil, errors.Wrapf(err, "product %s", p.ID)
		}
		prod := product.Product{
			ID:       p.ID,
			Name:     p.Name,
			Category: p.Category,
			Image: product.Image{
				Thumbnail: p.Image.Thumbnail,
				Mobile:    p.Image.Mobile,
				Tablet:    p.Image.Tablet,
				Desktop:   p.Image.Desktop,
			},
			Price:    priced.Price,
			OldPrice: priced.OldPrice,
			Discount: priced.Discount,
		}
		for _, v := range p.Variants {
			pv, err := priceOf(v.pricePair)
			if err != nil {
				return nil, errors.Wrapf(err, "product %s variant %s", p.ID, v.ID)
			}
			prod.Variants = append(prod.Variants, product.Variant{
				ID:        v.ID,
				ProductID: p.ID,
				Name:      v.Name,
				SKU:       v.SKU,
				Price:     pv.Price,
				OldPrice:  pv.OldPrice,
				Discount:  pv.Discount,
			})
		}
		out = append(out, prod)
	}
	return out, nil
}

func priceOf(pp pricePair) (pricing.PricedItem, error) {
	item, errs := pricing.Price(pp.Price, pp.OldPrice)
	if len(errs) > 0 {
		return item, &pricing.ValidationError{Fields: errs}
	}
	return item, nil
}

func seedProducts(ctx context.Context, repo *postgres.ProductRepository, products []product.Product) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if err := repo.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product",
			slog.String("id", p.ID),
			slog.String("name", p.Name),
			slog.Int("variants", len(p.Variants)),
			slog.String("discount", pricing.DisplayDiscount(p.Discount)),
		)
	}

	return nil
}

func seedCoupons(ctx context.Context, repo *postgres.CouponRepository) error {
	slog.Info("seeding coupons")

	coupons := []coupon.Rule{
		{
			Code:         "HAPPYHOURS",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(18),
			Description:  "Happy Hours: 18% off entire order",
		},
		{
			Code:         "BUYGETONE",
			DiscountType: coupon.DiscountFreeLowest,
			Value:        decimal.Zero,
			MinItems:     2,
			Description:  "Buy one get one: lowest priced item free",
		},
		{
			Code:         "WELCOME5",
			DiscountType: coupon.DiscountFixed,
			Value:        decimal.NewFromInt(5),
			MinItems:     1,
			MaxUses:      1000,
			Description:  "Welcome offer: 5 off your first order",
		},
	}

	for _, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}

		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("description", c.Description))
	}

	return nil
}
