// Package pricing computes the cost breakdown of a booking window.
// Everything here is deterministic: the same inputs always give the same
// breakdown, so callers may re-run it during approval or verification.
package pricing

import (
	"time"

	"parking-booking/internal/data/entity"
	"parking-booking/pkg/apperror"

	"github.com/shopspring/decimal"
)

const (
	unitHour  = time.Hour
	unitDay   = 24 * time.Hour
	unitWeek  = 7 * unitDay
	unitMonth = 30 * unitDay
)

type Breakdown struct {
	Units          int64
	BaseAmount     decimal.Decimal
	TaxAmount      decimal.Decimal
	ServiceFee     decimal.Decimal
	DiscountAmount decimal.Decimal
	DiscountCode   string
	TotalAmount    decimal.Decimal
}

// Subtotal is base + tax + fee, before any discount.
func (b Breakdown) Subtotal() decimal.Decimal {
	return b.BaseAmount.Add(b.TaxAmount).Add(b.ServiceFee)
}

type Engine struct {
	taxRate decimal.Decimal
	feeRate decimal.Decimal
	catalog Catalog
}

func NewEngine(taxRate, feeRate float64, catalog Catalog) *Engine {
	if catalog == nil {
		catalog = Catalog{}
	}
	return &Engine{
		taxRate: decimal.NewFromFloat(taxRate),
		feeRate: decimal.NewFromFloat(feeRate),
		catalog: catalog,
	}
}

// UnitDuration is the billing unit of a pricing mode.
func UnitDuration(mode entity.PricingMode) (time.Duration, bool) {
	switch mode {
	case entity.PricingHourly:
		return unitHour, true
	case entity.PricingDaily:
		return unitDay, true
	case entity.PricingWeekly:
		return unitWeek, true
	case entity.PricingMonthly:
		return unitMonth, true
	}
	return 0, false
}

// BillableUnits rounds the window up to whole units of the mode; any partial
// unit is billed in full and the minimum is one unit.
func BillableUnits(start, end time.Time, mode entity.PricingMode) (int64, error) {
	if !start.Before(end) {
		return 0, apperror.Validation("start time must be before end time")
	}
	unit, ok := UnitDuration(mode)
	if !ok {
		return 0, apperror.Validation("unknown pricing mode %q", mode)
	}

	d := end.Sub(start)
	units := int64(d / unit)
	if d%unit != 0 {
		units++
	}
	if units < 1 {
		units = 1
	}
	return units, nil
}

// CalculatePrice prices [start, end) on the spot in the given mode. An empty
// discount code means no discount.
func (e *Engine) CalculatePrice(spot *entity.Spot, start, end time.Time, mode entity.PricingMode, discountCode string) (Breakdown, error) {
	rate, ok := spot.Rate(mode)
	if !ok {
		return Breakdown{}, apperror.Validation("spot does not offer %s pricing", mode)
	}

	units, err := BillableUnits(start, end, mode)
	if err != nil {
		return Breakdown{}, err
	}

	base := rate.Mul(decimal.NewFromInt(units)).Round(2)
	out := Breakdown{
		Units:      units,
		BaseAmount: base,
		TaxAmount:  base.Mul(e.taxRate).Round(2),
		ServiceFee: base.Mul(e.feeRate).Round(2),
	}
	out.TotalAmount = out.Subtotal()

	if discountCode == "" {
		return out, nil
	}

	amount, err := e.DiscountFor(discountCode, out)
	if err != nil {
		return Breakdown{}, err
	}
	out.DiscountCode = discountCode
	out.DiscountAmount = amount
	out.TotalAmount = out.Subtotal().Sub(amount)
	return out, nil
}

// DiscountFor resolves a code against a breakdown. It fails rather than
// clamping when the discount would exceed the pre-discount total.
func (e *Engine) DiscountFor(code string, b Breakdown) (decimal.Decimal, error) {
	d, ok := e.catalog.Lookup(code)
	if !ok {
		return decimal.Zero, apperror.New(apperror.KindInvalidDiscount, "unknown discount code %s", code)
	}

	amount := d.AmountFor(b.BaseAmount)
	if amount.GreaterThan(b.Subtotal()) {
		return decimal.Zero, apperror.New(apperror.KindInvalidDiscount,
			"discount %s exceeds booking total %s", amount.StringFixed(2), b.Subtotal().StringFixed(2))
	}
	return amount, nil
}

// FromBooking rebuilds the pre-discount breakdown stored on a booking.
func FromBooking(b *entity.Booking) Breakdown {
	return Breakdown{
		BaseAmount: b.BaseAmount,
		TaxAmount:  b.TaxAmount,
		ServiceFee: b.ServiceFee,
	}
}

// Apply copies a breakdown onto a booking.
func Apply(b *entity.Booking, br Breakdown) {
	b.BaseAmount = br.BaseAmount
	b.TaxAmount = br.TaxAmount
	b.ServiceFee = br.ServiceFee
	b.DiscountAmount = br.DiscountAmount
	if br.DiscountCode == "" {
		b.DiscountCode = nil
	} else {
		code := br.DiscountCode
		b.DiscountCode = &code
	}
	b.TotalAmount = br.TotalAmount
}
