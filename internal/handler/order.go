package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

// PlaceOrder prices the cart and stores a new PENDING order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req order.PlaceOrderRequest
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				req.Items = append(req.Items, item)
				return err
			})
		case "couponCode":
			req.CouponCode, err = readString(d)
		case "shippingCost":
			req.ShippingCost, err = readDecimal(d)
		case "paymentMethod":
			var s string
			if s, err = readString(d); err != nil || s == "" {
				return err
			}
			if req.PaymentMethod, err = order.ParsePaymentMethod(s); err != nil {
				return fieldError("paymentMethod", err.Error())
			}
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Order placed",
		zap.String("order_id", res.Order.ID),
		zap.String("final_total", res.Order.FinalTotal.StringFixed(2)),
	)

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			encodeOrderFields(e, res.Order)
			e.Field("products", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, p := range uniqueProducts(res.Products) {
						h.encodeProduct(e, p)
					}
				})
			})
			if res.Coupon != nil {
				e.Field("coupon", func(e *jx.Encoder) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("code", func(e *jx.Encoder) { e.Str(res.Coupon.Code) })
						e.Field("amount", func(e *jx.Encoder) { money(e, res.Coupon.Amount) })
						e.Field("description", func(e *jx.Encoder) { e.Str(res.Coupon.Description) })
					})
				})
			}
		})
	})
}

func decodeItem(d *jx.Decoder) (order.ItemRequest, error) {
	var item order.ItemRequest
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			item.ProductID, err = d.Str()
		case "variantId":
			item.VariantID, err = readString(d)
		case "quantity":
			item.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	return item, err
}

func uniqueProducts(products []product.Product) []product.Product {
	seen := make(map[string]struct{}, len(products))
	out := products[:0:0]
	for _, p := range products {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ListOrders returns a page of orders, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	f, err := h.listFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	orders, err := h.orders.List(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orders", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range orders {
						e.Obj(func(e *jx.Encoder) { encodeOrderFields(e, &orders[i]) })
					}
				})
			})
			e.Field("limit", func(e *jx.Encoder) { e.Int(f.Limit) })
			e.Field("offset", func(e *jx.Encoder) { e.Int(f.Offset) })
		})
	})
}

func (h *Handler) listFilter(r *http.Request) (order.ListFilter, error) {
	q := r.URL.Query()
	f := order.ListFilter{Limit: h.cfg.DefaultPageSize}

	if s := q.Get("status"); s != "" {
		st, err := order.ParseStatus(s)
		if err != nil {
			return f, fieldError("status", err.Error())
		}
		f.Status = &st
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return f, badRequest("limit must be a positive integer")
		}
		f.Limit = min(n, h.cfg.MaxPageSize)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, badRequest("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}

// GetOrder returns an order with its timeline and the lifecycle facts the
// back-office needs to render actions.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderDetail(e, o) })
}

// UpdateOrderStatus applies {status, notes} if the lifecycle allows it.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var (
		target order.Status
		notes  string
	)
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			if err != nil {
				return err
			}
			if target, err = order.ParseStatus(s); err != nil {
				return fieldError("status", err.Error())
			}
			return nil
		case "notes":
			var err error
			notes, err = readString(d)
			return err
		default:
			return d.Skip()
		}
	})
	if err == nil && target == "" {
		err = fieldError("status", "is required")
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	o, err := h.orders.UpdateStatus(r.Context(), id, target, notes)
	h.recordTransition(r.Context(), id, target, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderDetail(e, o) })
}

// CancelOrder cancels an order while it is still cancellable.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var notes string
	err := decodeOptionalObject(r, func(d *jx.Decoder, key string) error {
		if key != "notes" {
			return d.Skip()
		}
		var err error
		notes, err = readString(d)
		return err
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	id := r.PathValue("id")
	o, err := h.orders.Cancel(r.Context(), id, notes)
	h.recordTransition(r.Context(), id, order.StatusCancelled, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderDetail(e, o) })
}

// recordTransition counts and traces one status change attempt.
func (h *Handler) recordTransition(ctx context.Context, id string, target order.Status, err error) {
	outcome := "applied"
	var trErr *order.InvalidTransitionError
	switch {
	case err == nil:
	case errors.As(err, &trErr), errors.Is(err, order.ErrNotCancellable), errors.Is(err, order.ErrConflict):
		outcome = "rejected"
		zctx.From(ctx).Warn("Status change rejected",
			zap.String("order_id", id),
			zap.Stringer("target", target),
			zap.Error(err),
		)
	default:
		outcome = "failed"
	}

	attrs := []attribute.KeyValue{
		attribute.String("order.status.target", target.String()),
		attribute.String("outcome", outcome),
	}
	h.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
	trace.SpanFromContext(ctx).SetAttributes(append(attrs, attribute.String("order.id", id))...)
}

// UpdatePayment sets {paymentStatus}.
func (h *Handler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var ps order.PaymentStatus
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "paymentStatus" {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		if ps, err = order.ParsePaymentStatus(s); err != nil {
			return fieldError("paymentStatus", err.Error())
		}
		return nil
	})
	if err == nil && ps == "" {
		err = fieldError("paymentStatus", "is required")
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdatePayment(r.Context(), r.PathValue("id"), ps)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderDetail(e, o) })
}

// DeleteOrder removes a PENDING or CANCELLED order.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func encodeOrderDetail(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		encodeOrderFields(e, o)
		e.Field("timeline", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, t := range order.BuildTimeline(o.History) {
					e.Obj(func(e *jx.Encoder) {
						e.Field("status", func(e *jx.Encoder) { e.Str(t.Status.String()) })
						e.Field("description", func(e *jx.Encoder) { e.Str(t.Description) })
						e.Field("timestamp", func(e *jx.Encoder) { timestamp(e, t.Timestamp) })
						e.Field("notes", func(e *jx.Encoder) { e.Str(t.Notes) })
					})
				}
			})
		})
		e.Field("allowedTransitions", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, s := range order.AllowedTransitions(o.Status) {
					e.Str(s.String())
				}
			})
		})
		e.Field("canCancel", func(e *jx.Encoder) { e.Bool(order.CanCancel(o.Status)) })
		e.Field("isTerminal", func(e *jx.Encoder) { e.Bool(order.IsTerminal(o.Status)) })
		e.Field("deletable", func(e *jx.Encoder) { e.Bool(order.Deletable(o.Status)) })
	})
}

// encodeOrderFields writes the order attributes into the current object.
func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
	e.Field("status", func(e *jx.Encoder) { e.Str(o.Status.String()) })
	e.Field("paymentStatus", func(e *jx.Encoder) { e.Str(string(o.PaymentStatus)) })
	e.Field("paymentMethod", func(e *jx.Encoder) { e.Str(string(o.PaymentMethod)) })
	e.Field("couponCode", func(e *jx.Encoder) { e.Str(o.CouponCode) })
	e.Field("items", func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for _, it := range o.Items {
				e.Obj(func(e *jx.Encoder) {
					e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
					if it.VariantID != "" {
						e.Field("variantId", func(e *jx.Encoder) { e.Str(it.VariantID) })
					}
					e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
					e.Field("unitPrice", func(e *jx.Encoder) { money(e, it.UnitPrice) })
				})
			}
		})
	})
	encodeBreakdownFields(e, o.Subtotal, o.TotalDiscount, o.ShippingCost, o.Tax, o.FinalTotal)
	e.Field("createdAt", func(e *jx.Encoder) { timestamp(e, o.CreatedAt) })
	e.Field("confirmedAt", func(e *jx.Encoder) { nullTimestamp(e, o.ConfirmedAt) })
	e.Field("shippedAt", func(e *jx.Encoder) { nullTimestamp(e, o.ShippedAt) })
	e.Field("deliveredAt", func(e *jx.Encoder) { nullTimestamp(e, o.DeliveredAt) })
	e.Field("cancelledAt", func(e *jx.Encoder) { nullTimestamp(e, o.CancelledAt) })
}

func encodeBreakdownFields(e *jx.Encoder, subtotal, discount, shipping, tax, total decimal.Decimal) {
	e.Field("subtotal", func(e *jx.Encoder) { money(e, subtotal) })
	e.Field("totalDiscount", func(e *jx.Encoder) { money(e, discount) })
	e.Field("shippingCost", func(e *jx.Encoder) { money(e, shipping) })
	e.Field("tax", func(e *jx.Encoder) { money(e, tax) })
	e.Field("finalTotal", func(e *jx.Encoder) { money(e, total) })
}
