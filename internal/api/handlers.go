package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/prmjagdish/schedula/internal/apperrors"
	"github.com/prmjagdish/schedula/internal/booking"
)

const maxIdempotencyKeyLen = 255

func bookAppointmentHandler(coord *booking.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := mustPrincipal(r)

		slotID, err := uuid.Parse(chi.URLParam(r, "slotId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slotId must be a valid UUID")
			return
		}

		key := r.Header.Get("Idempotency-Key")
		if len(key) > maxIdempotencyKeyLen {
			writeError(w, http.StatusBadRequest, "invalid_idempotency_key", "Idempotency-Key is too long")
			return
		}

		appt, err := coord.Book(r.Context(), booking.BookRequest{
			PatientUserID:  caller.UserID,
			SlotID:         slotID,
			IdempotencyKey: key,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(coord *booking.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := mustPrincipal(r)

		id, err := uuid.Parse(chi.URLParam(r, "appointmentId"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointmentId must be a valid UUID")
			return
		}

		appt, err := coord.Cancel(r.Context(), booking.CancelRequest{
			AppointmentID: id,
			CallerUserID:  caller.UserID,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelResponse{
			Message:     "Appointment cancelled successfully",
			Appointment: toAppointmentResponse(appt),
		})
	}
}

func listMyAppointmentsHandler(view *booking.AvailabilityView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := mustPrincipal(r)

		details, err := view.ListPatientAppointments(r.Context(), caller.UserID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := make([]AppointmentDetailResponse, 0, len(details))
		for _, d := range details {
			resp = append(resp, toAppointmentDetailResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listSlotsHandler(view *booking.AvailabilityView) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := mustPrincipal(r)

		slots, err := view.ListSlots(r.Context(), caller.UserID)
		if err != nil {
			handleError(w, r, err)
			return
		}

		resp := []SlotViewResponse{}
		for v, err := range slots {
			if err != nil {
				handleError(w, r, err)
				return
			}
			resp = append(resp, toSlotViewResponse(v))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createSlotHandler(svc *booking.SlotService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := mustPrincipal(r)

		var in booking.SlotInput
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slot, err := svc.CreateSlot(r.Context(), caller.UserID, in)
		if err != nil {
			handleError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(slot))
	}
}

// handleError maps application errors onto the HTTP contract. Capacity and
// cancellation conflicts are client errors (400); only an in-flight
// idempotent replay is a 409.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, booking.ErrSlotFull),
		errors.Is(err, booking.ErrAlreadyCancelled),
		errors.Is(err, booking.ErrDuplicateSlot):
		status = http.StatusBadRequest
	case errors.Is(err, booking.ErrRequestInProgress):
		status = http.StatusConflict
	default:
		switch appErr.Kind {
		case apperrors.KindValidation:
			status = http.StatusBadRequest
		case apperrors.KindNotFound:
			status = http.StatusNotFound
		case apperrors.KindConflict:
			status = http.StatusConflict
		case apperrors.KindAuthorization:
			status = http.StatusForbidden
		case apperrors.KindTransientStorage:
			status = http.StatusServiceUnavailable
		}
	}

	if status >= 500 {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("code", appErr.Code).Msg("request failed")
		if status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
			writeError(w, status, appErr.Code, "storage temporarily unavailable, retry later")
			return
		}
		writeError(w, status, appErr.Code, "internal server error")
		return
	}
	writeError(w, status, appErr.Code, appErr.Message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
