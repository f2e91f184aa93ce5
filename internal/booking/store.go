package booking

import (
	"context"

	"github.com/google/uuid"
)

// ProfileDirectory resolves authenticated user ids to profile ids.
type ProfileDirectory interface {
	// PatientProfileID returns ErrPatientProfileMissing when the user has no
	// patient profile.
	PatientProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
	// DoctorProfileID returns ErrDoctorProfileMissing when the user has no
	// doctor profile.
	DoctorProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// SlotStore is the durable record of slots.
type SlotStore interface {
	// LockSlot loads a slot and holds an exclusive lock on it until the
	// enclosing unit of work ends. Concurrent bookers of the same slot are
	// serialised here. Returns ErrSlotNotFound.
	LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	// InsertSlot returns ErrDuplicateSlot when the doctor already published
	// the same (date, start, end, capacity) tuple.
	InsertSlot(ctx context.Context, s *Slot) error
}

// AppointmentLedger is the durable record of bookings and their status.
type AppointmentLedger interface {
	CountConfirmed(ctx context.Context, slotID uuid.UUID) (int, error)
	InsertAppointment(ctx context.Context, a *Appointment) error
	// LockAppointment returns ErrAppointmentNotFound.
	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// TransitionStatus moves an appointment from one status to another,
	// rejecting anything outside the transition table with
	// ErrInvalidTransition and returning ErrAppointmentNotFound when the row
	// is no longer in the from status.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	InsertEvent(ctx context.Context, ev EventLog) error
}

// Tx is the set of operations available inside a unit of work.
type Tx interface {
	ProfileDirectory
	SlotStore
	AppointmentLedger
}

// Reader serves committed state without taking locks.
type Reader interface {
	ProfileDirectory
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ScanSlotAvailability streams the doctor's slots ordered by date
	// ascending until fn returns false.
	ScanSlotAvailability(ctx context.Context, doctorID uuid.UUID, fn func(SlotAvailability) bool) error
	// ListPatientAppointments returns every appointment of the patient,
	// newest first.
	ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error)
}

// Store hands out units of work. WithinTx commits when fn returns nil and
// rolls back otherwise. Storage failures that may succeed on retry are
// reported as apperrors.KindTransientStorage; errors returned by fn are
// passed through unchanged.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
