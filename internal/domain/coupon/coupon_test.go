package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		rule       *Rule
		items      []Item
		wantAmount string
		wantErr    error
	}{
		{
			name:       "percentage of subtotal",
			rule:       &Rule{Code: "PCT18", DiscountType: DiscountPercentage, Value: d("18")},
			items:      []Item{{ProductID: "p1", Price: d("50"), Quantity: 2}},
			wantAmount: "18",
		},
		{
			name: "percentage capped by max discount",
			rule: &Rule{
				Code:         "HALF",
				DiscountType: DiscountPercentage,
				Value:        d("50"),
				MaxDiscount:  d("100"),
			},
			items:      []Item{{ProductID: "p1", Price: d("999"), Quantity: 1}},
			wantAmount: "100",
		},
		{
			name:       "percentage rounded to paise",
			rule:       &Rule{Code: "PCT15", DiscountType: DiscountPercentage, Value: d("15")},
			items:      []Item{{ProductID: "p1", Price: d("849.99"), Quantity: 1}},
			wantAmount: "127.5",
		},
		{
			name:       "fixed amount",
			rule:       &Rule{Code: "FLAT9", DiscountType: DiscountFixed, Value: d("9")},
			items:      []Item{{ProductID: "p1", Price: d("100"), Quantity: 1}},
			wantAmount: "9",
		},
		{
			name:       "fixed amount capped at subtotal",
			rule:       &Rule{Code: "BIG", DiscountType: DiscountFixed, Value: d("200")},
			items:      []Item{{ProductID: "p1", Price: d("50"), Quantity: 2}},
			wantAmount: "100",
		},
		{
			name: "free lowest unit",
			rule: &Rule{Code: "BOGO", DiscountType: DiscountFreeLowest, MinItems: 2},
			items: []Item{
				{ProductID: "p1", Price: d("15"), Quantity: 1},
				{ProductID: "p2", Price: d("5"), Quantity: 3},
				{ProductID: "p3", Price: d("10"), Quantity: 1},
			},
			wantAmount: "5",
		},
		{
			name:    "below min items",
			rule:    &Rule{Code: "BOGO", DiscountType: DiscountFreeLowest, MinItems: 2},
			items:   []Item{{ProductID: "p1", Price: d("15"), Quantity: 1}},
			wantErr: ErrInvalidCoupon,
		},
		{
			name:       "empty cart yields zero",
			rule:       &Rule{Code: "FLAT9", DiscountType: DiscountFixed, Value: d("9")},
			items:      nil,
			wantAmount: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.rule, tt.items)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, d(tt.wantAmount).Equal(got.Amount), "got %s, want %s", got.Amount, tt.wantAmount)
			assert.Equal(t, tt.rule.Code, got.Code)
		})
	}
}

func TestApply_UnsupportedType(t *testing.T) {
	_, err := Apply(&Rule{Code: "X", DiscountType: "bogus"}, []Item{{Price: d("1"), Quantity: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported discount type")
}

type mockCouponRepo struct {
	rule          *Rule
	err           error
	incrementErr  error
	incrementCode string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Rule, error) {
	return m.rule, m.err
}

func (m *mockCouponRepo) IncrementUses(_ context.Context, code string) error {
	m.incrementCode = code
	return m.incrementErr
}

func TestRepoValidator_Quote(t *testing.T) {
	fixedNow := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-24 * time.Hour)
	future := fixedNow.Add(24 * time.Hour)
	cart := []Item{{ProductID: "p1", Price: d("100"), Quantity: 1}}

	tests := []struct {
		name       string
		repo       *mockCouponRepo
		wantAmount string
		wantErr    error
	}{
		{
			name:       "valid code",
			repo:       &mockCouponRepo{rule: &Rule{Code: "SAVE10", DiscountType: DiscountPercentage, Value: d("10")}},
			wantAmount: "10",
		},
		{
			name:    "unknown code",
			repo:    &mockCouponRepo{err: ErrInvalidCoupon},
			wantErr: ErrInvalidCoupon,
		},
		{
			name: "expired",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "OLD", DiscountType: DiscountFixed, Value: d("5"), ValidUntil: &past,
			}},
			wantErr: ErrCouponExpired,
		},
		{
			name: "not yet valid",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "SOON", DiscountType: DiscountFixed, Value: d("5"), ValidFrom: &future,
			}},
			wantErr: ErrCouponExpired,
		},
		{
			name: "inside window",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "NOW", DiscountType: DiscountFixed, Value: d("5"), ValidFrom: &past, ValidUntil: &future,
			}},
			wantAmount: "5",
		},
		{
			name: "usage limit reached",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "LIMITED", DiscountType: DiscountFixed, Value: d("5"), MaxUses: 3, Uses: 3,
			}},
			wantErr: ErrCouponUsageLimitReached,
		},
		{
			name: "unlimited uses",
			repo: &mockCouponRepo{rule: &Rule{
				Code: "OPEN", DiscountType: DiscountFixed, Value: d("5"), Uses: 9999,
			}},
			wantAmount: "5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Quote(context.Background(), "code", cart)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.True(t, d(tt.wantAmount).Equal(got.Amount), "got %s", got.Amount)
			assert.Empty(t, tt.repo.incrementCode, "quote must not consume a use")
		})
	}
}

func TestRepoValidator_QuoteLookupError(t *testing.T) {
	v := NewRepoValidator(&mockCouponRepo{err: errors.New("conn reset")})
	_, err := v.Quote(context.Background(), "X", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}

func TestRepoValidator_Redeem(t *testing.T) {
	repo := &mockCouponRepo{}
	v := NewRepoValidator(repo)
	require.NoError(t, v.Redeem(context.Background(), "INC"))
	assert.Equal(t, "INC", repo.incrementCode)

	repo.incrementErr = errors.New("db error")
	err := v.Redeem(context.Background(), "INC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "increment coupon uses")
}
