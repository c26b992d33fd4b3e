package entity

import (
	"time"

	"parking-booking/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingStatusPending         BookingStatus = "pending"
	BookingStatusAwaitingPayment BookingStatus = "awaiting_payment"
	BookingStatusConfirmed       BookingStatus = "confirmed"
	BookingStatusInProgress      BookingStatus = "in_progress"
	BookingStatusCompleted       BookingStatus = "completed"
	BookingStatusCancelled       BookingStatus = "cancelled"
	BookingStatusRejected        BookingStatus = "rejected"
)

// CapacityConsumingStatuses are the statuses that hold a unit of spot capacity.
var CapacityConsumingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusAwaitingPayment,
	BookingStatusConfirmed,
	BookingStatusInProgress,
}

func (s BookingStatus) ConsumesCapacity() bool {
	for _, c := range CapacityConsumingStatuses {
		if s == c {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled || s == BookingStatusRejected
}

// IsUnpaid reports whether the booking can still be edited or discounted.
func (s BookingStatus) IsUnpaid() bool {
	return s == BookingStatusPending || s == BookingStatusAwaitingPayment
}

func (s BookingStatus) String() string {
	return string(s)
}

type PricingMode string

const (
	PricingHourly  PricingMode = "hourly"
	PricingDaily   PricingMode = "daily"
	PricingWeekly  PricingMode = "weekly"
	PricingMonthly PricingMode = "monthly"
)

func (m PricingMode) IsValid() bool {
	switch m {
	case PricingHourly, PricingDaily, PricingWeekly, PricingMonthly:
		return true
	}
	return false
}

type Booking struct {
	Base
	Reference          string          `db:"reference"`
	UserID             uuid.UUID       `db:"user_id"`
	SpotID             uuid.UUID       `db:"spot_id"`
	StartTime          time.Time       `db:"start_time"`
	EndTime            time.Time       `db:"end_time"`
	PricingMode        PricingMode     `db:"pricing_mode"`
	VehicleNumber      string          `db:"vehicle_number"`
	VehicleType        string          `db:"vehicle_type"`
	BaseAmount         decimal.Decimal `db:"base_amount"`
	TaxAmount          decimal.Decimal `db:"tax_amount"`
	ServiceFee         decimal.Decimal `db:"service_fee"`
	DiscountAmount     decimal.Decimal `db:"discount_amount"`
	DiscountCode       *string         `db:"discount_code"`
	TotalAmount        decimal.Decimal `db:"total_amount"`
	Status             BookingStatus   `db:"status"`
	CheckInTime        *time.Time      `db:"check_in_time"`
	CheckOutTime       *time.Time      `db:"check_out_time"`
	CancellationReason *string         `db:"cancellation_reason"`
	CancelledAt        *time.Time      `db:"cancelled_at"`
}

// Subtotal is the pre-discount total.
func (b *Booking) Subtotal() decimal.Decimal {
	return b.BaseAmount.Add(b.TaxAmount).Add(b.ServiceFee)
}

// Overlaps uses the half-open interval test s < end AND e > start.
func (b *Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && b.EndTime.After(start)
}

// ApplyDiscount sets the discount and total together. The amount may not
// exceed the pre-discount total, so the total never goes negative.
func (b *Booking) ApplyDiscount(code string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return apperror.New(apperror.KindInvalidDiscount, "discount amount %s must not be negative", amount.StringFixed(2))
	}
	subtotal := b.Subtotal()
	if amount.GreaterThan(subtotal) {
		return apperror.New(apperror.KindInvalidDiscount,
			"discount %s exceeds booking total %s", amount.StringFixed(2), subtotal.StringFixed(2))
	}

	b.DiscountAmount = amount
	if code == "" {
		b.DiscountCode = nil
	} else {
		b.DiscountCode = &code
	}
	b.TotalAmount = subtotal.Sub(amount)
	return nil
}

func (b *Booking) IsParticipant(userID uuid.UUID, spot *Spot) bool {
	return b.UserID == userID || (spot != nil && spot.OwnerID == userID)
}
