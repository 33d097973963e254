package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// apiError is the JSON error body: {code, message, fields?}.
type apiError struct {
	code    int
	message string
	fields  pricing.FieldErrors
}

func (e *apiError) Error() string { return e.message }

func (e *apiError) encode(enc *jx.Encoder) {
	enc.Obj(func(enc *jx.Encoder) {
		enc.Field("code", func(enc *jx.Encoder) { enc.Int(e.code) })
		enc.Field("message", func(enc *jx.Encoder) { enc.Str(e.message) })
		if len(e.fields) == 0 {
			return
		}
		enc.Field("fields", func(enc *jx.Encoder) {
			enc.Arr(func(enc *jx.Encoder) {
				for _, fe := range e.fields {
					enc.Obj(func(enc *jx.Encoder) {
						enc.Field("field", func(enc *jx.Encoder) { enc.Str(fe.Field) })
						enc.Field("message", func(enc *jx.Encoder) { enc.Str(fe.Message) })
					})
				}
			})
		})
	})
}

func fieldError(field, message string) *apiError {
	return &apiError{
		code:    http.StatusUnprocessableEntity,
		message: "validation failed",
		fields:  pricing.FieldErrors{{Field: field, Message: message}},
	}
}

func badRequest(message string) *apiError {
	return &apiError{code: http.StatusBadRequest, message: message}
}

// mapError converts a domain error to its HTTP representation. Unknown errors
// become a 500 and are logged.
func mapError(err error) *apiError {
	var (
		apiErr   *apiError
		bodyErr  *bodyError
		vErr     *pricing.ValidationError
		trErr    *order.InvalidTransitionError
		qtyErr   *order.InvalidQuantityError
		prodErr  *order.ProductNotFoundError
		varntErr *order.VariantNotFoundError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &bodyErr):
		return badRequest(bodyErr.Error())
	case errors.As(err, &vErr):
		return &apiError{code: http.StatusUnprocessableEntity, message: "validation failed", fields: vErr.Fields}

	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, product.ErrVariantNotFound):
		return &apiError{code: http.StatusNotFound, message: err.Error()}

	case errors.As(err, &trErr):
		return &apiError{code: http.StatusConflict, message: trErr.Error()}
	case errors.Is(err, order.ErrNotCancellable),
		errors.Is(err, order.ErrNotDeletable),
		errors.Is(err, order.ErrConflict):
		return &apiError{code: http.StatusConflict, message: err.Error()}

	case errors.Is(err, order.ErrEmptyItems):
		return badRequest(err.Error())
	case errors.As(err, &qtyErr):
		return fieldError("items", qtyErr.Error())
	case errors.As(err, &prodErr):
		return fieldError("items", prodErr.Error())
	case errors.As(err, &varntErr):
		return fieldError("items", varntErr.Error())

	}
	for _, sentinel := range []error{
		coupon.ErrInvalidCoupon,
		coupon.ErrCouponExpired,
		coupon.ErrCouponUsageLimitReached,
	} {
		if errors.Is(err, sentinel) {
			return fieldError("couponCode", sentinel.Error())
		}
	}
	return &apiError{code: http.StatusInternalServerError, message: "internal server error"}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := mapError(err)
	if e.code >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeJSON(w, e.code, e.encode)
}
