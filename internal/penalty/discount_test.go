package penalty

import (
	"testing"

	"github.com/Veraticus/rexpenalty/internal/common"
	"github.com/Veraticus/rexpenalty/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tags(s string) [4]byte {
	out := [4]byte{model.Blank, model.Blank, model.Blank, model.Blank}
	copy(out[:], s)
	return out
}

var (
	infantNoSeat   = model.Passenger{Type: "INF", Infant: true}
	infantWithSeat = model.Passenger{Type: "INS", Infant: true, WithSeat: true}
	childPax       = model.Passenger{Type: "CNN", Child: true}
	youthPax       = model.Passenger{Type: "STU"}
	seniorPax      = model.Passenger{Type: "SRC"}
	adultPax       = model.Passenger{Type: "ADT"}
)

func discountOf(pct int64, paxType string) *model.Discount {
	return &model.Discount{PaxType: paxType, Percent: decimal.NewFromInt(pct), Category: model.DiscountChildren}
}

func TestBaseDiscounts(t *testing.T) {
	half := discountOf(50, "CNN")
	twenty := discountOf(20, "INS")

	tests := []struct {
		name     string
		pax      model.Passenger
		tags     string
		discount *model.Discount
		want     int64
	}{
		{name: "infant tag", pax: infantNoSeat, tags: "1", discount: half, want: 50},
		{name: "child tag", pax: childPax, tags: "2", discount: half, want: 50},
		{name: "child tag with 20 percent charged", pax: childPax, tags: "2", discount: twenty, want: 80},
		{name: "youth tag", pax: youthPax, tags: "3", discount: half, want: 50},
		{name: "senior tag", pax: seniorPax, tags: "4", discount: half, want: 50},
		{name: "child or infant tag", pax: infantWithSeat, tags: "5", discount: half, want: 50},
		{name: "passenger type tag", pax: childPax, tags: "6", discount: half, want: 50},
		{name: "passenger type mismatch", pax: infantWithSeat, tags: "6", discount: half, want: 0},
		{name: "zero tag infant with seat discounted", pax: infantWithSeat, tags: "0", discount: twenty, want: 80},
		{name: "zero tag infant without seat free", pax: infantNoSeat, tags: "0", discount: twenty, want: 100},
		{name: "nine tag infant without seat free", pax: infantNoSeat, tags: "9", want: 100},
		{name: "nine tag infant with seat pays", pax: infantWithSeat, tags: "9", discount: half, want: 0},
		{name: "first matching tag wins", pax: infantNoSeat, tags: "9 5 ", discount: half, want: 100},
		{name: "later tag used when earlier misses", pax: childPax, tags: "34 2", discount: half, want: 50},
		{name: "adult has no discount", pax: adultPax, tags: "123456", discount: half, want: 0},
		{name: "no discount definition", pax: childPax, tags: "2", want: 0},
		{name: "enhanced tags ignored", pax: infantWithSeat, tags: "78", discount: half, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewBaseDiscounts(tt.pax).Percent(tags(tt.tags), tt.discount)
			assert.True(t, decimal.NewFromInt(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestEnhancedDiscounts(t *testing.T) {
	half := discountOf(50, "CNN")

	tests := []struct {
		name string
		pax  model.Passenger
		tags string
		want int64
	}{
		{name: "seven discounts infant with seat", pax: infantWithSeat, tags: "7", want: 50},
		{name: "seven skips infant without seat", pax: infantNoSeat, tags: "7", want: 0},
		{name: "eight discounts infant without seat", pax: infantNoSeat, tags: "8", want: 50},
		{name: "five suppressed", pax: childPax, tags: "5", want: 0},
		{name: "six suppressed", pax: childPax, tags: "6", want: 0},
		{name: "base tags delegate", pax: childPax, tags: "52", want: 50},
		{name: "nine still free", pax: infantNoSeat, tags: "9", want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewEnhancedDiscounts(tt.pax).Percent(tags(tt.tags), half)
			assert.True(t, decimal.NewFromInt(tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestApplyDiscount(t *testing.T) {
	applier := NewBaseDiscounts(childPax)

	fee, ok := ApplyDiscount(applier, decimal.NewFromInt(80), tags("2"), discountOf(25, "CNN"))
	assert.True(t, ok)
	assert.True(t, decimal.NewFromInt(20).Equal(fee), "got %s", fee)

	fee, ok = ApplyDiscount(applier, decimal.NewFromInt(80), tags("4"), discountOf(25, "CNN"))
	assert.False(t, ok)
	assert.True(t, decimal.NewFromInt(80).Equal(fee))

	fee, ok = ApplyDiscount(nil, decimal.NewFromInt(80), tags("2"), discountOf(25, "CNN"))
	assert.False(t, ok)
	assert.True(t, decimal.NewFromInt(80).Equal(fee))

	free, ok := ApplyDiscount(NewBaseDiscounts(infantNoSeat), decimal.NewFromInt(80), tags("9"), nil)
	assert.True(t, ok)
	assert.True(t, free.IsZero())
}

func TestNewDiscountApplier(t *testing.T) {
	base, err := NewDiscountApplier("", childPax)
	require.NoError(t, err)
	assert.IsType(t, &BaseDiscounts{}, base)

	enhanced, err := NewDiscountApplier(DiscountVariantEnhanced, childPax)
	require.NoError(t, err)
	assert.IsType(t, &EnhancedDiscounts{}, enhanced)

	_, err = NewDiscountApplier("premium", childPax)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}
