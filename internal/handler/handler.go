// Package handler serves the storefront and back-office JSON API over
// net/http. Bodies are encoded and decoded with go-faster/jx.
package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Config holds non-dependency settings of the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	// DefaultPageSize applies when an order listing has no limit.
	DefaultPageSize int
	// MaxPageSize caps the limit of an order listing.
	MaxPageSize int
}

// Handler implements the HTTP API on top of the product and order services.
type Handler struct {
	products *product.Service
	orders   *order.Service
	cfg      Config

	transitions metric.Int64Counter
	repricings  metric.Int64Counter
}

// New constructs a Handler. Metrics are registered on meter.
func New(cfg Config, products *product.Service, orders *order.Service, meter metric.Meter) (*Handler, error) {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = cfg.DefaultPageSize
	}

	transitions, err := meter.Int64Counter("storefront.order.transitions",
		metric.WithDescription("Order status change requests by target status and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	repricings, err := meter.Int64Counter("storefront.order.repricings",
		metric.WithDescription("Order breakdown edits by pricing mode and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "repricings counter")
	}

	return &Handler{
		products:    products,
		orders:      orders,
		cfg:         cfg,
		transitions: transitions,
		repricings:  repricings,
	}, nil
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	routes := []struct {
		pattern string
		fn      http.HandlerFunc
	}{
		{"GET /api/product", h.ListProducts},
		{"GET /api/product/{id}", h.GetProduct},
		{"POST /api/order", h.PlaceOrder},

		{"GET /api/admin/order", h.ListOrders},
		{"GET /api/admin/order/{id}", h.GetOrder},
		{"PATCH /api/admin/order/{id}/status", h.UpdateOrderStatus},
		{"POST /api/admin/order/{id}/cancel", h.CancelOrder},
		{"PUT /api/admin/order/{id}/pricing", h.RepriceOrder},
		{"PATCH /api/admin/order/{id}/payment", h.UpdatePayment},
		{"DELETE /api/admin/order/{id}", h.DeleteOrder},

		{"PUT /api/admin/product/{id}/price", h.UpdateProductPrice},
		{"PUT /api/admin/product/{id}/variant/{variantId}/price", h.UpdateVariantPrice},
		{"POST /api/admin/pricing/validate", h.ValidatePricing},
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, httpmiddleware.Route(rt.pattern, rt.fn))
	}
}
