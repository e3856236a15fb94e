package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/flow"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/store"
)

// statusOf maps domain errors to an HTTP status and a stable error code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, slots.ErrUnsupportedDuration):
		return http.StatusUnprocessableEntity, "unsupported_duration"
	case errors.Is(err, slots.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, slots.ErrWindowNotCovered):
		return http.StatusUnprocessableEntity, "window_not_covered"
	case errors.Is(err, slots.ErrInvalidWindow),
		errors.Is(err, slots.ErrInvalidSelector),
		errors.Is(err, slots.ErrInvalidClock),
		errors.Is(err, slots.ErrMissingAppointmentID),
		errors.Is(err, booking.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, flow.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, flow.ErrMissingFields):
		return http.StatusUnprocessableEntity, "missing_fields"
	case errors.Is(err, flow.ErrTerminal):
		return http.StatusConflict, "conversation_done"
	case errors.Is(err, store.ErrLockTimeout):
		return http.StatusServiceUnavailable, "busy"
	case errors.Is(err, booking.ErrEmit):
		return http.StatusBadGateway, "emit_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
		msg = "internal error"
	} else {
		h.logger.Debug("request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	httpx.WriteError(w, r, status, code, msg)
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	httpx.WriteError(w, r, http.StatusBadRequest, "invalid_input", describe(err))
}

// describe flattens validator errors into "field: rule" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fe.Field()+": "+fe.Tag())
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

