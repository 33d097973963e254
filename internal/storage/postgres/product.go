package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/product"
)

const (
	productColumns = `id, name, category, price, old_price, discount,
		image_thumbnail, image_mobile, image_tablet, image_desktop`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	variantsByProductsSQL = `SELECT id, product_id, name, sku, price, old_price, discount
		FROM product_variants WHERE product_id = ANY($1) ORDER BY product_id, id`

	updateProductPriceSQL = `UPDATE products SET price = $2, old_price = $3, discount = $4 WHERE id = $1`

	updateVariantPriceSQL = `UPDATE product_variants SET price = $3, old_price = $4, discount = $5
		WHERE product_id = $1 AND id = $2`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, category = EXCLUDED.category,
			price = EXCLUDED.price, old_price = EXCLUDED.old_price, discount = EXCLUDED.discount,
			image_thumbnail = EXCLUDED.image_thumbnail, image_mobile = EXCLUDED.image_mobile,
			image_tablet = EXCLUDED.image_tablet, image_desktop = EXCLUDED.image_desktop`

	upsertVariantSQL = `INSERT INTO product_variants (id, product_id, name, sku, price, old_price, discount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (product_id, id) DO UPDATE SET name = EXCLUDED.name, sku = EXCLUDED.sku,
			price = EXCLUDED.price, old_price = EXCLUDED.old_price, discount = EXCLUDED.discount`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns every product with its variants.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetByID returns a single product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	products := []product.Product{p}
	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

// GetByIDs returns the products whose IDs are in ids. Unknown IDs are
// silently skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	if err := r.attachVariants(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// UpdatePrice stores a validated price pair on a product.
func (r *ProductRepository) UpdatePrice(ctx context.Context, productID string, u product.PriceUpdate) error {
	tag, err := r.pool.Exec(ctx, updateProductPriceSQL, productID, u.Price, u.OldPrice, u.Discount)
	if err != nil {
		return fmt.Errorf("updating price of product %q: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// UpdateVariantPrice stores a validated price pair on one variant.
func (r *ProductRepository) UpdateVariantPrice(ctx context.Context, productID, variantID string, u product.PriceUpdate) error {
	tag, err := r.pool.Exec(ctx, updateVariantPriceSQL, productID, variantID, u.Price, u.OldPrice, u.Discount)
	if err != nil {
		return fmt.Errorf("updating price of variant %q/%q: %w", productID, variantID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrVariantNotFound
	}
	return nil
}

// Upsert inserts or replaces a product together with its variants.
func (r *ProductRepository) Upsert(ctx context.Context, p product.Product) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(upsertProductSQL,
			p.ID, p.Name, p.Category, p.Price, p.OldPrice, p.Discount,
			p.Image.Thumbnail, p.Image.Mobile, p.Image.Tablet, p.Image.Desktop,
		)
		for _, v := range p.Variants {
			batch.Queue(upsertVariantSQL, v.ID, p.ID, v.Name, v.SKU, v.Price, v.OldPrice, v.Discount)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func (r *ProductRepository) attachVariants(ctx context.Context, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, variantsByProductsSQL, ids)
	if err != nil {
		return fmt.Errorf("loading variants: %w", err)
	}
	variants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (product.Variant, error) {
		var v product.Variant
		err := row.Scan(&v.ID, &v.ProductID, &v.Name, &v.SKU, &v.Price, &v.OldPrice, &v.Discount)
		return v, err
	})
	if err != nil {
		return fmt.Errorf("loading variants: %w", err)
	}
	for _, v := range variants {
		i := index[v.ProductID]
		products[i].Variants = append(products[i].Variants, v)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Category, &p.Price, &p.OldPrice, &p.Discount,
		&p.Image.Thumbnail, &p.Image.Mobile, &p.Image.Tablet, &p.Image.Desktop,
	)
	return p, err
}
