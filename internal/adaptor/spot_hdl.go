package adaptor

import (
	"net/http"

	"parking-booking/internal/dto/request"
	"parking-booking/internal/usecase"
	"parking-booking/pkg/utils"

	"go.uber.org/zap"
)

type SpotHandler struct {
	service usecase.ReservationService
	log     *zap.Logger
}

func NewSpotHandler(service usecase.ReservationService, log *zap.Logger) *SpotHandler {
	return &SpotHandler{
		service: service,
		log:     log.With(zap.String("handler", "spot")),
	}
}

// parseWindow reads start, end, mode and discount from the query string.
func parseWindow(w http.ResponseWriter, r *http.Request) (*request.AvailabilityQuery, bool) {
	query := r.URL.Query()

	start, err := utils.ParseTime(query.Get("start"))
	if err != nil {
		utils.ResponseBadRequest(w, "start must be an RFC3339 timestamp", nil)
		return nil, false
	}
	end, err := utils.ParseTime(query.Get("end"))
	if err != nil {
		utils.ResponseBadRequest(w, "end must be an RFC3339 timestamp", nil)
		return nil, false
	}

	q := &request.AvailabilityQuery{
		StartTime:    start,
		EndTime:      end,
		PricingMode:  query.Get("mode"),
		DiscountCode: query.Get("discount_code"),
	}
	if validationErrors := utils.ValidateStruct(q); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return nil, false
	}
	return q, true
}

// Availability handles GET /api/spots/{id}/availability?start=&end=
func (h *SpotHandler) Availability(w http.ResponseWriter, r *http.Request) {
	spotID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	q, ok := parseWindow(w, r)
	if !ok {
		return
	}

	result, err := h.service.CheckAvailability(r.Context(), spotID, q)
	if err != nil {
		handleServiceError(w, h.log, err, "check availability")
		return
	}

	utils.ResponseSuccess(w, "success", result)
}

// Quote handles GET /api/spots/{id}/quote?start=&end=&mode=&discount_code=
func (h *SpotHandler) Quote(w http.ResponseWriter, r *http.Request) {
	spotID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	q, ok := parseWindow(w, r)
	if !ok {
		return
	}

	quote, err := h.service.Quote(r.Context(), spotID, q)
	if err != nil {
		handleServiceError(w, h.log, err, "quote")
		return
	}

	utils.ResponseSuccess(w, "success", quote)
}

// OwnerDashboard handles GET /api/owner/bookings
func (h *SpotHandler) OwnerDashboard(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := callerID(w, r)
	if !ok {
		return
	}

	bookings, err := h.service.ListOwnerActiveBookings(r.Context(), ownerID)
	if err != nil {
		handleServiceError(w, h.log, err, "owner dashboard")
		return
	}

	utils.ResponseSuccess(w, "success", bookings)
}
