package booking

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment. The zero value is not a
// valid status.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// transitions lists every permitted status change. CANCELLED is terminal.
var transitions = map[Status][]Status{
	StatusConfirmed: {StatusCancelled},
}

// CanTransition reports whether an appointment may move from one status to
// another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition is enforced by every store before a status write.
func CheckTransition(from, to Status) error {
	if !from.Valid() || !to.Valid() || !CanTransition(from, to) {
		return ErrInvalidTransition
	}
	return nil
}

// SlotStatus is derived from committed counts, never stored.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotFull      SlotStatus = "FULL"
)

type Slot struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Date        time.Time
	StartTime   time.Time
	EndTime     time.Time
	MaxCapacity int
	CreatedAt   time.Time
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	SlotID    uuid.UUID
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotAvailability is a slot together with its committed CONFIRMED count.
type SlotAvailability struct {
	Slot
	ConfirmedCount int
}

type SlotView struct {
	ID                uuid.UUID
	Date              time.Time
	StartTime         time.Time
	EndTime           time.Time
	MaxCapacity       int
	ConfirmedCount    int
	RemainingCapacity int
	Status            SlotStatus
}

// NewSlotView derives remaining capacity and status from a committed count.
func NewSlotView(sa SlotAvailability) SlotView {
	status := SlotAvailable
	if sa.ConfirmedCount >= sa.MaxCapacity {
		status = SlotFull
	}

	return SlotView{
		ID:                sa.ID,
		Date:              sa.Date,
		StartTime:         sa.StartTime,
		EndTime:           sa.EndTime,
		MaxCapacity:       sa.MaxCapacity,
		ConfirmedCount:    sa.ConfirmedCount,
		RemainingCapacity: max(0, sa.MaxCapacity-sa.ConfirmedCount),
		Status:            status,
	}
}

type DoctorSummary struct {
	ID              uuid.UUID
	FullName        string
	ExperienceYears int
	ConsultationFee int
}

type SlotSummary struct {
	ID        uuid.UUID
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
}

type AppointmentDetail struct {
	Appointment
	Doctor DoctorSummary
	Slot   SlotSummary
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
