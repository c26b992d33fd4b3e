package wire

import (
	"parking-booking/internal/adaptor"
	"parking-booking/pkg/middleware"
	"parking-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wireSpot(r chi.Router, spotHandler *adaptor.SpotHandler, config *utils.Config, log *zap.Logger) {
	// public: availability and price preview
	r.Get("/api/spots/{id}/availability", spotHandler.Availability)
	r.Get("/api/spots/{id}/quote", spotHandler.Quote)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(config.JWT.Secret, log))
		r.Get("/api/owner/bookings", spotHandler.OwnerDashboard)
	})
}
