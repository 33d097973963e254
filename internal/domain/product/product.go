package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrVariantNotFound is returned when a product has no variant with the
	// requested id.
	ErrVariantNotFound = errors.New("variant not found")
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Category string
	Image    Image

	Price    decimal.Decimal
	OldPrice decimal.NullDecimal
	// Discount is the stored markdown fraction derived from OldPrice and Price.
	Discount decimal.Decimal

	Variants []Variant
}

// Variant is a purchasable option of a product with its own price pair.
type Variant struct {
	ID        string
	ProductID string
	Name      string
	SKU       string

	Price    decimal.Decimal
	OldPrice decimal.NullDecimal
	Discount decimal.Decimal
}

// Variant returns the variant with the given id.
func (p *Product) Variant(id string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// PriceUpdate is a validated price pair ready to be stored.
type PriceUpdate struct {
	Price    decimal.Decimal
	OldPrice decimal.NullDecimal
	Discount decimal.Decimal
}

// Repository defines catalog persistence. Reads include variants.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	UpdatePrice(ctx context.Context, productID string, u PriceUpdate) error
	UpdateVariantPrice(ctx context.Context, productID, variantID string, u PriceUpdate) error
}
