package adaptor

import (
	"net/http"

	"parking-booking/internal/dto/request"
	"parking-booking/internal/usecase"
	"parking-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type BookingHandler struct {
	service usecase.ReservationService
	log     *zap.Logger
}

func NewBookingHandler(service usecase.ReservationService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log.With(zap.String("handler", "booking")),
	}
}

// CreateBooking handles POST /api/bookings
func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req request.CreateBookingRequest
	if !decode(w, r, &req, false) {
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), userID, &req)
	if err != nil {
		handleServiceError(w, h.log, err, "create booking")
		return
	}

	utils.ResponseCreated(w, "Booking created", booking)
}

// GetUserBookings handles GET /api/bookings?page=&per_page=
func (h *BookingHandler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	req := &request.PaginatedRequest{
		Page:    utils.ParseInt(query.Get("page"), 1),
		PerPage: utils.ParseInt(query.Get("per_page"), 10),
	}

	bookings, err := h.service.ListUserBookings(r.Context(), userID, req)
	if err != nil {
		handleServiceError(w, h.log, err, "get user bookings")
		return
	}

	utils.ResponseSuccess(w, "success", bookings)
}

// GetBooking handles GET /api/bookings/{id}
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	booking, err := h.service.GetBooking(r.Context(), userID, bookingID)
	if err != nil {
		handleServiceError(w, h.log, err, "get booking")
		return
	}

	utils.ResponseSuccess(w, "success", booking)
}

// GetBookingByReference handles GET /api/bookings/ref/{reference}
func (h *BookingHandler) GetBookingByReference(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	booking, err := h.service.GetBookingByReference(r.Context(), userID, chi.URLParam(r, "reference"))
	if err != nil {
		handleServiceError(w, h.log, err, "get booking by reference")
		return
	}

	utils.ResponseSuccess(w, "success", booking)
}

// UpdateBooking handles PATCH /api/bookings/{id}
func (h *BookingHandler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req request.UpdateBookingRequest
	if !decode(w, r, &req, false) {
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	booking, err := h.service.UpdateBooking(r.Context(), userID, bookingID, &req)
	if err != nil {
		handleServiceError(w, h.log, err, "update booking")
		return
	}

	utils.ResponseSuccess(w, "Booking updated", booking)
}

// ApplyDiscount handles POST /api/bookings/{id}/discount
func (h *BookingHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req request.ApplyDiscountRequest
	if !decode(w, r, &req, false) {
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	booking, err := h.service.ApplyDiscount(r.Context(), userID, bookingID, req.Code)
	if err != nil {
		handleServiceError(w, h.log, err, "apply discount")
		return
	}

	utils.ResponseSuccess(w, "Discount applied", booking)
}

// ApproveBooking handles POST /api/bookings/{id}/approve (spot owner)
func (h *BookingHandler) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	booking, err := h.service.ApproveBooking(r.Context(), userID, bookingID)
	if err != nil {
		handleServiceError(w, h.log, err, "approve booking")
		return
	}

	utils.ResponseSuccess(w, "Booking approved", booking)
}

// RejectBooking handles POST /api/bookings/{id}/reject (spot owner)
func (h *BookingHandler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req request.OptionalReasonRequest
	if !decode(w, r, &req, true) {
		return
	}

	booking, err := h.service.RejectBooking(r.Context(), userID, bookingID, req.Reason)
	if err != nil {
		handleServiceError(w, h.log, err, "reject booking")
		return
	}

	utils.ResponseSuccess(w, "Booking rejected", booking)
}

// CancelBooking handles POST /api/bookings/{id}/cancel (user or spot owner)
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req request.ReasonRequest
	if !decode(w, r, &req, false) {
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	result, err := h.service.CancelBooking(r.Context(), userID, bookingID, req.Reason)
	if err != nil {
		handleServiceError(w, h.log, err, "cancel booking")
		return
	}

	utils.ResponseSuccess(w, "Booking cancelled", result)
}

// CheckIn handles POST /api/bookings/{id}/check-in
func (h *BookingHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	booking, err := h.service.CheckIn(r.Context(), userID, bookingID)
	if err != nil {
		handleServiceError(w, h.log, err, "check in")
		return
	}

	utils.ResponseSuccess(w, "Checked in", booking)
}

// CheckOut handles POST /api/bookings/{id}/check-out
func (h *BookingHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	booking, err := h.service.CheckOut(r.Context(), userID, bookingID)
	if err != nil {
		handleServiceError(w, h.log, err, "check out")
		return
	}

	utils.ResponseSuccess(w, "Checked out", booking)
}
