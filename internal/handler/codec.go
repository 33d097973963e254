package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

const maxBodySize = 1 << 20

// bodyError marks a request body that is not the expected JSON shape.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return "malformed request body: " + e.err.Error() }

func (e *bodyError) Unwrap() error { return e.err }

// decodeObject reads the request body as one JSON object and hands each field
// to fn. Unknown fields must be skipped by fn.
func decodeObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := readBody(r)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return &bodyError{err: errors.New("empty body")}
	}
	return decodeBytes(data, fn)
}

// decodeOptionalObject is decodeObject that accepts an empty body.
func decodeOptionalObject(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := readBody(r)
	if err != nil || len(data) == 0 {
		return err
	}
	return decodeBytes(data, fn)
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodySize))
	if err != nil {
		return nil, &bodyError{err: err}
	}
	return data, nil
}

func decodeBytes(data []byte, fn func(d *jx.Decoder, key string) error) error {
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		var api *apiError
		if errors.As(err, &api) {
			return api
		}
		return &bodyError{err: err}
	}
	return nil
}

// readDecimal accepts a JSON number or a numeric string.
func readDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		return decimal.NewFromString(n.String())
	}
}

// readNullDecimal is readDecimal that maps JSON null to an invalid NullDecimal.
func readNullDecimal(d *jx.Decoder) (decimal.NullDecimal, error) {
	if d.Next() == jx.Null {
		return decimal.NullDecimal{}, d.Null()
	}
	v, err := readDecimal(d)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

// readString reads a string, treating null as "".
func readString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func writeJSON(w http.ResponseWriter, code int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}

// money writes an amount as a JSON number with two decimals.
func money(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.StringFixed(2)))
}

func nullMoney(e *jx.Encoder, v decimal.NullDecimal) {
	if !v.Valid {
		e.Null()
		return
	}
	money(e, v.Decimal)
}

func timestamp(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func nullTimestamp(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	timestamp(e, *t)
}
