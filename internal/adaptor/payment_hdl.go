package adaptor

import (
	"io"
	"net/http"

	"parking-booking/internal/dto/request"
	"parking-booking/internal/usecase"
	"parking-booking/pkg/utils"

	"go.uber.org/zap"
)

// maxWebhookBody bounds what we read from the provider callback.
const maxWebhookBody = 64 << 10

type PaymentHandler struct {
	service usecase.PaymentService
	log     *zap.Logger
}

func NewPaymentHandler(service usecase.PaymentService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     log.With(zap.String("handler", "payment")),
	}
}

// InitiatePayment handles POST /api/payments/{id}
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.service.InitiatePayment(r.Context(), userID, bookingID)
	if err != nil {
		handleServiceError(w, h.log, err, "initiate payment")
		return
	}

	if result.AlreadyPaid {
		utils.ResponseSuccess(w, "Booking is already paid", result)
		return
	}
	utils.ResponseCreated(w, "Payment initiated", result)
}

// VerifyPayment handles POST /api/payments/{id}/verify
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req request.VerifyPaymentRequest
	if !decode(w, r, &req, false) {
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	result, err := h.service.VerifyPayment(r.Context(), userID, bookingID, &req)
	if err != nil {
		handleServiceError(w, h.log, err, "verify payment")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}

// GetPayment handles GET /api/payments/{id}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	payment, err := h.service.GetPayment(r.Context(), userID, bookingID)
	if err != nil {
		handleServiceError(w, h.log, err, "get payment")
		return
	}

	utils.ResponseSuccess(w, "success", payment)
}

// Refund handles POST /api/payments/{id}/refund (spot owner)
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req request.RefundRequest
	if !decode(w, r, &req, false) {
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	payment, err := h.service.Refund(r.Context(), userID, bookingID, &req)
	if err != nil {
		handleServiceError(w, h.log, err, "refund")
		return
	}

	utils.ResponseSuccess(w, "Refund processed", payment)
}

// Webhook handles POST /webhooks/stripe. It is authenticated by the
// Stripe-Signature header rather than a bearer token.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := h.service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		handleServiceError(w, h.log, err, "handle webhook")
		return
	}

	utils.ResponseSuccess(w, "received", nil)
}
