package response

import (
	"time"

	"parking-booking/internal/availability"
	"parking-booking/internal/data/entity"
	"parking-booking/internal/pricing"

	"github.com/shopspring/decimal"
)

type BookingResponse struct {
	ID                 string               `json:"id"`
	Reference          string               `json:"reference"`
	UserID             string               `json:"user_id"`
	SpotID             string               `json:"spot_id"`
	StartTime          time.Time            `json:"start_time"`
	EndTime            time.Time            `json:"end_time"`
	PricingMode        entity.PricingMode   `json:"pricing_mode"`
	VehicleNumber      string               `json:"vehicle_number"`
	VehicleType        string               `json:"vehicle_type"`
	BaseAmount         decimal.Decimal      `json:"base_amount"`
	TaxAmount          decimal.Decimal      `json:"tax_amount"`
	ServiceFee         decimal.Decimal      `json:"service_fee"`
	DiscountAmount     decimal.Decimal      `json:"discount_amount"`
	DiscountCode       *string              `json:"discount_code,omitempty"`
	TotalAmount        decimal.Decimal      `json:"total_amount"`
	Status             entity.BookingStatus `json:"status"`
	CheckInTime        *time.Time           `json:"check_in_time,omitempty"`
	CheckOutTime       *time.Time           `json:"check_out_time,omitempty"`
	CancellationReason *string              `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time           `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

type CancelBookingResponse struct {
	Booking      BookingResponse  `json:"booking"`
	RefundAmount decimal.Decimal  `json:"refund_amount"`
	Payment      *PaymentResponse `json:"payment,omitempty"`
	RefundError  string           `json:"refund_error,omitempty"`
}

type AvailabilityResponse struct {
	SpotID      string    `json:"spot_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Available   bool      `json:"available"`
	ActiveCount int       `json:"active_count"`
	TotalSpots  int       `json:"total_spots"`
	Remaining   int       `json:"remaining"`
}

type QuoteResponse struct {
	SpotID         string             `json:"spot_id"`
	PricingMode    entity.PricingMode `json:"pricing_mode"`
	Units          int64              `json:"units"`
	BaseAmount     decimal.Decimal    `json:"base_amount"`
	TaxAmount      decimal.Decimal    `json:"tax_amount"`
	ServiceFee     decimal.Decimal    `json:"service_fee"`
	DiscountAmount decimal.Decimal    `json:"discount_amount"`
	DiscountCode   string             `json:"discount_code,omitempty"`
	TotalAmount    decimal.Decimal    `json:"total_amount"`
}

// Helper converters
func BookingToResponse(b *entity.Booking) BookingResponse {
	return BookingResponse{
		ID:                 b.ID.String(),
		Reference:          b.Reference,
		UserID:             b.UserID.String(),
		SpotID:             b.SpotID.String(),
		StartTime:          b.StartTime,
		EndTime:            b.EndTime,
		PricingMode:        b.PricingMode,
		VehicleNumber:      b.VehicleNumber,
		VehicleType:        b.VehicleType,
		BaseAmount:         b.BaseAmount,
		TaxAmount:          b.TaxAmount,
		ServiceFee:         b.ServiceFee,
		DiscountAmount:     b.DiscountAmount,
		DiscountCode:       b.DiscountCode,
		TotalAmount:        b.TotalAmount,
		Status:             b.Status,
		CheckInTime:        b.CheckInTime,
		CheckOutTime:       b.CheckOutTime,
		CancellationReason: b.CancellationReason,
		CancelledAt:        b.CancelledAt,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func BookingsToResponse(bookings []*entity.Booking) []BookingResponse {
	out := make([]BookingResponse, len(bookings))
	for i, b := range bookings {
		out[i] = BookingToResponse(b)
	}
	return out
}

func AvailabilityToResponse(spot *entity.Spot, start, end time.Time, r availability.Result) AvailabilityResponse {
	return AvailabilityResponse{
		SpotID:      spot.ID.String(),
		StartTime:   start,
		EndTime:     end,
		Available:   r.Available,
		ActiveCount: r.ActiveCount,
		TotalSpots:  r.TotalSpots,
		Remaining:   r.Remaining(),
	}
}

func QuoteToResponse(spot *entity.Spot, mode entity.PricingMode, br pricing.Breakdown) QuoteResponse {
	return QuoteResponse{
		SpotID:         spot.ID.String(),
		PricingMode:    mode,
		Units:          br.Units,
		BaseAmount:     br.BaseAmount,
		TaxAmount:      br.TaxAmount,
		ServiceFee:     br.ServiceFee,
		DiscountAmount: br.DiscountAmount,
		DiscountCode:   br.DiscountCode,
		TotalAmount:    br.TotalAmount,
	}
}
