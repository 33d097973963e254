package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, p := range products {
				h.encodeProduct(e, p)
			}
		})
	})
}

// GetProduct returns a single product with its variants.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

// UpdateProductPrice replaces a product's price pair.
func (h *Handler) UpdateProductPrice(w http.ResponseWriter, r *http.Request) {
	price, oldPrice, err := decodePricePair(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.products.UpdatePrice(r.Context(), r.PathValue("id"), price, oldPrice)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

// UpdateVariantPrice replaces one variant's price pair.
func (h *Handler) UpdateVariantPrice(w http.ResponseWriter, r *http.Request) {
	price, oldPrice, err := decodePricePair(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.products.UpdateVariantPrice(r.Context(), r.PathValue("id"), r.PathValue("variantId"), price, oldPrice)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, *p) })
}

// decodePricePair reads {price, oldPrice}. A missing price is reported as a
// field error rather than a malformed body.
func decodePricePair(r *http.Request) (decimal.Decimal, decimal.NullDecimal, error) {
	var (
		price    decimal.Decimal
		oldPrice decimal.NullDecimal
		hasPrice bool
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "price":
			hasPrice = true
			price, err = readDecimal(d)
		case "oldPrice":
			oldPrice, err = readNullDecimal(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return price, oldPrice, err
	}
	if !hasPrice {
		return price, oldPrice, fieldError("price", "is required")
	}
	return price, oldPrice, nil
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		encodePricing(e, p.Price, p.OldPrice, p.Discount)
		e.Field("image", func(e *jx.Encoder) {
			base := h.cfg.ImageBaseURL
			e.Obj(func(e *jx.Encoder) {
				e.Field("thumbnail", func(e *jx.Encoder) { e.Str(base + p.Image.Thumbnail) })
				e.Field("mobile", func(e *jx.Encoder) { e.Str(base + p.Image.Mobile) })
				e.Field("tablet", func(e *jx.Encoder) { e.Str(base + p.Image.Tablet) })
				e.Field("desktop", func(e *jx.Encoder) { e.Str(base + p.Image.Desktop) })
			})
		})
		e.Field("variants", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, v := range p.Variants {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(v.ID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(v.Name) })
						e.Field("sku", func(e *jx.Encoder) { e.Str(v.SKU) })
						encodePricing(e, v.Price, v.OldPrice, v.Discount)
					})
				}
			})
		})
	})
}

// encodePricing writes the price pair, the stored fraction and its display
// percentage as fields of the current object.
func encodePricing(e *jx.Encoder, price decimal.Decimal, oldPrice decimal.NullDecimal, discount decimal.Decimal) {
	e.Field("price", func(e *jx.Encoder) { money(e, price) })
	e.Field("oldPrice", func(e *jx.Encoder) { nullMoney(e, oldPrice) })
	e.Field("discount", func(e *jx.Encoder) { e.Num(jx.Num(discount.StringFixed(4))) })
	e.Field("discountPercentage", func(e *jx.Encoder) { e.Str(pricing.DisplayDiscount(discount)) })
}
