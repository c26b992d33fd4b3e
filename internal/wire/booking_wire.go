package wire

import (
	"parking-booking/internal/adaptor"
	"parking-booking/pkg/middleware"
	"parking-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireBooking(r chi.Router, bookingHandler *adaptor.BookingHandler, config *utils.Config, log *zap.Logger) {
	r.Route("/api/bookings", func(r chi.Router) {
		r.Use(middleware.AuthJWT(config.JWT.Secret, log))

		r.Post("/", bookingHandler.CreateBooking)
		r.Get("/", bookingHandler.GetUserBookings)
		r.Get("/ref/{reference}", bookingHandler.GetBookingByReference)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", bookingHandler.GetBooking)
			r.Patch("/", bookingHandler.UpdateBooking)
			r.Post("/discount", bookingHandler.ApplyDiscount)
			r.Post("/cancel", bookingHandler.CancelBooking)
			r.Post("/check-in", bookingHandler.CheckIn)
			r.Post("/check-out", bookingHandler.CheckOut)

			// spot owner only; enforced by the service
			r.Post("/approve", bookingHandler.ApproveBooking)
			r.Post("/reject", bookingHandler.RejectBooking)
		})
	})
}
