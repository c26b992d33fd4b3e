package wire

import (
	"parking-booking/internal/adaptor"
	"parking-booking/pkg/middleware"
	"parking-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func wirePayment(r chi.Router, paymentHandler *adaptor.PaymentHandler, config *utils.Config, log *zap.Logger) {
	// {id} is the booking the payment belongs to
	r.Route("/api/payments/{id}", func(r chi.Router) {
		r.Use(middleware.AuthJWT(config.JWT.Secret, log))

		r.Post("/", paymentHandler.InitiatePayment)
		r.Get("/", paymentHandler.GetPayment)
		r.Post("/verify", paymentHandler.VerifyPayment)
		r.Post("/refund", paymentHandler.Refund)
	})

	// signed by the provider, not by a user token
	r.Post("/webhooks/stripe", paymentHandler.Webhook)
}
