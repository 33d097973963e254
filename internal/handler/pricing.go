package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/storefront/internal/domain/pricing"
)

type breakdownRequest struct {
	mode pricing.Mode
	b    pricing.Breakdown
}

// decodeBreakdown reads {mode, subtotal, totalDiscount, shippingCost, tax,
// finalTotal}. Mode defaults to manual. Auto mode does not need tax and
// finalTotal; manual mode needs all five amounts.
func decodeBreakdown(r *http.Request) (breakdownRequest, error) {
	req := breakdownRequest{mode: pricing.ModeManual}
	seen := make(map[string]bool, 5)
	amounts := map[string]*decimal.Decimal{
		pricing.FieldSubtotal:   &req.b.Subtotal,
		pricing.FieldDiscount:   &req.b.Discount,
		pricing.FieldShipping:   &req.b.Shipping,
		pricing.FieldTax:        &req.b.Tax,
		pricing.FieldFinalTotal: &req.b.FinalTotal,
	}

	var malformed pricing.FieldErrors
	err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key == "mode" {
			s, err := readString(d)
			if err != nil || s == "" {
				return err
			}
			if req.mode, err = pricing.ParseMode(s); err != nil {
				return fieldError("mode", err.Error())
			}
			return nil
		}
		dst, ok := amounts[key]
		if !ok {
			return d.Skip()
		}
		raw, err := d.Raw()
		if err != nil {
			return err
		}
		if raw.Type() == jx.Null {
			return nil
		}
		v, err := readDecimal(jx.DecodeBytes(raw))
		if err != nil {
			// Keep reading so that every bad amount is reported together.
			malformed = append(malformed, pricing.FieldError{Field: key, Message: "must be a number"})
			return nil
		}
		*dst = v
		seen[key] = true
		return nil
	})
	if err != nil {
		return req, err
	}

	required := []string{pricing.FieldSubtotal, pricing.FieldDiscount, pricing.FieldShipping}
	if req.mode == pricing.ModeManual {
		required = append(required, pricing.FieldTax, pricing.FieldFinalTotal)
	}
	errs := malformed
	for _, f := range required {
		if !seen[f] && !malformed.Has(f) {
			errs = append(errs, pricing.FieldError{Field: f, Message: "is required"})
		}
	}
	if len(errs) > 0 {
		return req, &pricing.ValidationError{Fields: errs}
	}
	return req, nil
}

// RepriceOrder replaces the monetary breakdown of an order.
func (h *Handler) RepriceOrder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBreakdown(r)
	if err != nil {
		h.recordRepricing(r, req.mode, err)
		h.writeError(w, r, err)
		return
	}

	o, err := h.orders.Reprice(r.Context(), r.PathValue("id"), req.b, req.mode)
	h.recordRepricing(r, req.mode, err)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderDetail(e, o) })
}

func (h *Handler) recordRepricing(r *http.Request, mode pricing.Mode, err error) {
	outcome := "applied"
	var vErr *pricing.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &vErr):
		outcome = "rejected"
	default:
		outcome = "failed"
	}
	h.repricings.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("pricing.mode", string(mode)),
		attribute.String("outcome", outcome),
	))
}

// ValidatePricing checks a breakdown without touching any order. Violations
// are part of a 200 response; only an unreadable body is an error.
func (h *Handler) ValidatePricing(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBreakdown(r)
	var vErr *pricing.ValidationError
	if err != nil && !errors.As(err, &vErr) {
		h.writeError(w, r, err)
		return
	}

	var errs pricing.FieldErrors
	b := req.b
	if vErr != nil {
		errs = vErr.Fields
	} else {
		b, errs = pricing.ValidateBreakdown(req.b, req.mode)
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("valid", func(e *jx.Encoder) { e.Bool(len(errs) == 0) })
			e.Field("mode", func(e *jx.Encoder) { e.Str(string(req.mode)) })
			e.Field("breakdown", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					encodeBreakdownFields(e, b.Subtotal, b.Discount, b.Shipping, b.Tax, b.FinalTotal)
					e.Field("expectedTotal", func(e *jx.Encoder) { money(e, b.Expected()) })
				})
			})
			e.Field("errors", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, fe := range errs {
						e.Obj(func(e *jx.Encoder) {
							e.Field("field", func(e *jx.Encoder) { e.Str(fe.Field) })
							e.Field("message", func(e *jx.Encoder) { e.Str(fe.Message) })
						})
					}
				})
			})
		})
	})
}
