package adaptor

import (
	"parking-booking/internal/usecase"

	"go.uber.org/zap"
)

type Handler struct {
	Booking *BookingHandler
	Payment *PaymentHandler
	Spot    *SpotHandler
}

func NewHandler(service *usecase.Service, log *zap.Logger) *Handler {
	return &Handler{
		Booking: NewBookingHandler(service.Reservation, log),
		Payment: NewPaymentHandler(service.Payment, log),
		Spot:    NewSpotHandler(service.Reservation, log),
	}
}
