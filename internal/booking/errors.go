package booking

import "github.com/prmjagdish/schedula/internal/apperrors"

var (
	ErrSlotNotFound          = apperrors.NewNotFound("slot_not_found", "slot not found")
	ErrAppointmentNotFound   = apperrors.NewNotFound("appointment_not_found", "appointment not found")
	ErrPatientProfileMissing = apperrors.NewValidation("patient_profile_missing", "patient profile not found")
	ErrInvalidSlot           = apperrors.NewValidation("invalid_slot", "invalid slot")
	ErrSlotFull              = apperrors.NewConflict("slot_full", "slot is fully booked")
	ErrAlreadyCancelled      = apperrors.NewConflict("already_cancelled", "appointment already cancelled")
	ErrInvalidTransition     = apperrors.NewConflict("invalid_status_transition", "invalid status transition")
	ErrDuplicateSlot         = apperrors.NewConflict("duplicate_slot", "slot already exists")
	ErrRequestInProgress     = apperrors.NewConflict("request_in_progress", "a booking with this idempotency key is still in progress")
	ErrIdempotencyKeyReused  = apperrors.NewConflict("idempotency_key_mismatch", "idempotency key was already used for a different slot")
	ErrForbiddenRole         = apperrors.NewAuthorization("forbidden_role", "caller role may not perform this operation")
	ErrDoctorProfileMissing  = apperrors.NewAuthorization("doctor_profile_missing", "doctor profile not found")
)
