package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
)

// Service handles catalog price edits.
type Service struct {
	repo Repository
}

// NewService creates a product Service backed by repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.repo.List(ctx)
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (*Product, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdatePrice validates the price pair, derives the discount and stores it on
// the product.
func (s *Service) UpdatePrice(ctx context.Context, productID string, price decimal.Decimal, oldPrice decimal.NullDecimal) (*Product, error) {
	u, err := priceUpdate(price, oldPrice)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePrice(ctx, productID, u); err != nil {
		return nil, errors.Wrap(err, "update price")
	}
	return s.repo.GetByID(ctx, productID)
}

// UpdateVariantPrice is UpdatePrice for a single variant.
func (s *Service) UpdateVariantPrice(ctx context.Context, productID, variantID string, price decimal.Decimal, oldPrice decimal.NullDecimal) (*Product, error) {
	u, err := priceUpdate(price, oldPrice)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if _, ok := p.Variant(variantID); !ok {
		return nil, ErrVariantNotFound
	}
	if err := s.repo.UpdateVariantPrice(ctx, productID, variantID, u); err != nil {
		return nil, errors.Wrap(err, "update variant price")
	}
	return s.repo.GetByID(ctx, productID)
}

func priceUpdate(price decimal.Decimal, oldPrice decimal.NullDecimal) (PriceUpdate, error) {
	item, errs := pricing.Price(price, oldPrice)
	if len(errs) > 0 {
		return PriceUpdate{}, &pricing.ValidationError{Fields: errs}
	}
	return PriceUpdate{
		Price:    item.Price,
		OldPrice: item.OldPrice,
		Discount: item.Discount,
	}, nil
}
