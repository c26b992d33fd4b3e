package adaptor

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"parking-booking/pkg/apperror"
	"parking-booking/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// handleServiceError maps an error kind to its HTTP status.
func handleServiceError(w http.ResponseWriter, log *zap.Logger, err error, operation string) {
	kind := apperror.KindOf(err)
	msg := apperror.Message(err)
	fields := []zap.Field{zap.Error(err), zap.String("operation", operation), zap.String("kind", string(kind))}

	switch kind {
	case apperror.KindNotFound:
		log.Warn(operation+" failed - not found", fields...)
		utils.ResponseNotFound(w, msg)

	case apperror.KindUnauthorized:
		log.Warn(operation+" failed - forbidden", fields...)
		utils.ResponseForbidden(w, msg)

	case apperror.KindValidation, apperror.KindInvalidDiscount, apperror.KindInvalidRefund:
		log.Warn(operation+" failed - invalid input", fields...)
		utils.ResponseBadRequest(w, msg, nil)

	case apperror.KindCapacityExceeded, apperror.KindInvalidStateTransition, apperror.KindAlreadyPaid:
		log.Warn(operation+" failed - conflict", fields...)
		utils.ResponseConflict(w, msg)

	case apperror.KindPaymentVerificationFailed:
		log.Warn(operation+" failed - payment not verified", fields...)
		utils.ResponseUnprocessable(w, msg)

	case apperror.KindExternalService:
		log.Error(operation+" failed - upstream", fields...)
		utils.ResponseBadGateway(w, msg)

	default:
		log.Error("Failed to "+operation, fields...)
		utils.ResponseInternalError(w, "Internal server error")
	}
}

// callerID reads the authenticated user or writes 401.
func callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		utils.ResponseUnauthorized(w, "Authentication required")
	}
	return id, ok
}

// pathID parses a UUID URL parameter or writes 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// decode reads a JSON body or writes 400. An empty body is allowed when
// optional is set.
func decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	utils.ResponseBadRequest(w, "Invalid request body", nil)
	return false
}
