package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// statusFor maps engine errors onto HTTP status codes and machine-readable
// kinds. Unknown errors are 500 and their text is not echoed.
func statusFor(err error) (int, string, bool) {
	var conflict *booking.ConflictError
	var transition *model.TransitionError
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict, string(conflict.Kind), true
	case errors.Is(err, model.ErrStaleVersion):
		return http.StatusConflict, "stale_version", true
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrProviderNotFound):
		return http.StatusNotFound, "not_found", true
	case errors.As(err, &transition):
		return http.StatusUnprocessableEntity, "invalid_transition", true
	case errors.Is(err, booking.ErrInvalidInterval):
		return http.StatusUnprocessableEntity, "invalid_interval", true
	case errors.Is(err, booking.ErrOutsideBusinessHours):
		return http.StatusUnprocessableEntity, "outside_business_hours", true
	case errors.Is(err, booking.ErrUnknownStaff):
		return http.StatusUnprocessableEntity, "unknown_staff", true
	case errors.Is(err, booking.ErrInvalidIntent):
		return http.StatusUnprocessableEntity, "invalid_intent", true
	}
	return http.StatusInternalServerError, "", false
}

func (h *BookingHandler) writeError(w http.ResponseWriter, op string, err error) {
	writeError(w, h.logger, op, err)
}

func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status, kind, known := statusFor(err)
	if !known {
		if logger != nil {
			logger.Error(op+" failed", "err", err)
		}
		httpx.WriteError(w, status, op+" failed", "")
		return
	}
	httpx.WriteError(w, status, err.Error(), kind)
}
