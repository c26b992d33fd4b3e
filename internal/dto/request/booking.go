package request

import "time"

type CreateBookingRequest struct {
	SpotID        string    `json:"spot_id" validate:"required,uuid4"`
	StartTime     time.Time `json:"start_time" validate:"required"`
	EndTime       time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	PricingMode   string    `json:"pricing_mode" validate:"required,oneof=hourly daily weekly monthly"`
	VehicleNumber string    `json:"vehicle_number" validate:"required,max=20"`
	VehicleType   string    `json:"vehicle_type" validate:"required,oneof=car motorcycle suv van truck"`
	DiscountCode  string    `json:"discount_code,omitempty" validate:"omitempty,max=32"`
}

// UpdateBookingRequest is a patch: nil fields are left unchanged.
type UpdateBookingRequest struct {
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	PricingMode   *string    `json:"pricing_mode,omitempty" validate:"omitempty,oneof=hourly daily weekly monthly"`
	VehicleNumber *string    `json:"vehicle_number,omitempty" validate:"omitempty,min=1,max=20"`
	VehicleType   *string    `json:"vehicle_type,omitempty" validate:"omitempty,oneof=car motorcycle suv van truck"`
}

// ChangesSchedule reports whether the patch touches the priced window.
func (r UpdateBookingRequest) ChangesSchedule() bool {
	return r.StartTime != nil || r.EndTime != nil || r.PricingMode != nil
}

func (r UpdateBookingRequest) IsEmpty() bool {
	return !r.ChangesSchedule() && r.VehicleNumber == nil && r.VehicleType == nil
}

type ReasonRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type OptionalReasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type ApplyDiscountRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

// AvailabilityQuery is read from the query string of spot endpoints.
type AvailabilityQuery struct {
	StartTime    time.Time `validate:"required"`
	EndTime      time.Time `validate:"required,gtfield=StartTime"`
	PricingMode  string    `validate:"omitempty,oneof=hourly daily weekly monthly"`
	DiscountCode string    `validate:"omitempty,max=32"`
}
