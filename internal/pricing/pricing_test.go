package pricing

import (
	"testing"
	"time"

	"parking-booking/internal/data/entity"
	"parking-booking/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func testSpot() *entity.Spot {
	return &entity.Spot{
		TotalSpots:  1,
		HourlyRate:  dec(100),
		DailyRate:   dec(800),
		WeeklyRate:  dec(4000),
		MonthlyRate: decimal.Zero,
		IsActive:    true,
	}
}

func testEngine(t *testing.T) *Engine {
	catalog, err := ParseCatalog("SAVE10:fixed:10,HALF:percent:50,BIG:fixed:5000")
	require.NoError(t, err)
	return NewEngine(0.18, 0.05, catalog)
}

func TestCalculatePrice_HourlyRoundsUp(t *testing.T) {
	e := testEngine(t)

	got, err := e.CalculatePrice(testSpot(), t0, t0.Add(150*time.Minute), entity.PricingHourly, "")
	require.NoError(t, err)

	assert.Equal(t, int64(3), got.Units)
	assert.True(t, got.BaseAmount.Equal(dec(300)), got.BaseAmount.String())
	assert.True(t, got.TaxAmount.Equal(dec(54)), got.TaxAmount.String())
	assert.True(t, got.ServiceFee.Equal(dec(15)), got.ServiceFee.String())
	assert.True(t, got.DiscountAmount.IsZero())
	assert.True(t, got.TotalAmount.Equal(dec(369)), got.TotalAmount.String())
}

func TestCalculatePrice_IsDeterministic(t *testing.T) {
	e := testEngine(t)
	spot := testSpot()

	first, err := e.CalculatePrice(spot, t0, t0.Add(26*time.Hour), entity.PricingDaily, "HALF")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := e.CalculatePrice(spot, t0, t0.Add(26*time.Hour), entity.PricingDaily, "HALF")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCalculatePrice_TotalFormula(t *testing.T) {
	e := testEngine(t)

	cases := []struct {
		name string
		dur  time.Duration
		mode entity.PricingMode
		code string
	}{
		{"exact hour", time.Hour, entity.PricingHourly, ""},
		{"minute", time.Minute, entity.PricingHourly, "SAVE10"},
		{"day and a bit", 25 * time.Hour, entity.PricingDaily, "HALF"},
		{"eight days weekly", 8 * 24 * time.Hour, entity.PricingWeekly, "SAVE10"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.CalculatePrice(testSpot(), t0, t0.Add(tc.dur), tc.mode, tc.code)
			require.NoError(t, err)

			want := got.BaseAmount.Add(got.TaxAmount).Add(got.ServiceFee).Sub(got.DiscountAmount)
			assert.True(t, got.TotalAmount.Equal(want))
			assert.False(t, got.TotalAmount.IsNegative())
		})
	}
}

func TestCalculatePrice_PercentDiscount(t *testing.T) {
	e := testEngine(t)

	got, err := e.CalculatePrice(testSpot(), t0, t0.Add(2*time.Hour), entity.PricingHourly, "half")
	require.NoError(t, err)

	// 50% of base 200
	assert.True(t, got.DiscountAmount.Equal(dec(100)))
	assert.Equal(t, "half", got.DiscountCode)
	assert.True(t, got.TotalAmount.Equal(dec(146)))
}

func TestCalculatePrice_DiscountAboveTotalRejected(t *testing.T) {
	e := testEngine(t)

	_, err := e.CalculatePrice(testSpot(), t0, t0.Add(time.Hour), entity.PricingHourly, "BIG")
	assert.Equal(t, apperror.KindInvalidDiscount, apperror.KindOf(err))
}

func TestCalculatePrice_UnknownDiscount(t *testing.T) {
	e := testEngine(t)

	_, err := e.CalculatePrice(testSpot(), t0, t0.Add(time.Hour), entity.PricingHourly, "NOPE")
	assert.Equal(t, apperror.KindInvalidDiscount, apperror.KindOf(err))
}

func TestCalculatePrice_Validation(t *testing.T) {
	e := testEngine(t)

	_, err := e.CalculatePrice(testSpot(), t0, t0, entity.PricingHourly, "")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))

	_, err = e.CalculatePrice(testSpot(), t0, t0.Add(time.Hour), entity.PricingMonthly, "")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err), "monthly is not offered")

	_, err = e.CalculatePrice(testSpot(), t0, t0.Add(time.Hour), entity.PricingMode("yearly"), "")
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestBillableUnits(t *testing.T) {
	cases := []struct {
		dur  time.Duration
		mode entity.PricingMode
		want int64
	}{
		{time.Hour, entity.PricingHourly, 1},
		{61 * time.Minute, entity.PricingHourly, 2},
		{150 * time.Minute, entity.PricingHourly, 3},
		{24 * time.Hour, entity.PricingDaily, 1},
		{49 * time.Hour, entity.PricingDaily, 3},
		{7 * 24 * time.Hour, entity.PricingWeekly, 1},
		{31 * 24 * time.Hour, entity.PricingMonthly, 2},
		{time.Minute, entity.PricingMonthly, 1},
	}

	for _, tc := range cases {
		got, err := BillableUnits(t0, t0.Add(tc.dur), tc.mode)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s %s", tc.dur, tc.mode)
	}
}

func TestDiscountFor_FixedAndOverTotal(t *testing.T) {
	e := testEngine(t)
	b := Breakdown{BaseAmount: dec(100), TaxAmount: dec(10), ServiceFee: dec(5)}

	amount, err := e.DiscountFor("SAVE10", b)
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec(10)))

	_, err = e.DiscountFor("BIG", b)
	assert.Equal(t, apperror.KindInvalidDiscount, apperror.KindOf(err))
}

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog(" save10:fixed:10 , Pct:PERCENT:12.5")
	require.NoError(t, err)

	d, ok := c.Lookup("SAVE10")
	require.True(t, ok)
	assert.Equal(t, DiscountFixed, d.Kind)

	d, ok = c.Lookup("pct")
	require.True(t, ok)
	assert.True(t, d.AmountFor(dec(200)).Equal(dec(25)))

	_, err = ParseCatalog("BAD:fixed")
	assert.Error(t, err)
	_, err = ParseCatalog("BAD:bogus:1")
	assert.Error(t, err)
	_, err = ParseCatalog("BAD:percent:120")
	assert.Error(t, err)
}
