package booking

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
)

// AvailabilityView is the read side: committed counts only, no locks.
type AvailabilityView struct {
	store Reader
}

func NewAvailabilityView(store Reader) *AvailabilityView {
	return &AvailabilityView{store: store}
}

// ListSlots resolves the doctor and returns a lazy sequence over their slots
// ordered by date. Each range over the sequence re-reads committed state, so
// it can be iterated again for a fresh view. A storage failure mid-stream is
// yielded as the final element.
func (v *AvailabilityView) ListSlots(ctx context.Context, doctorUserID uuid.UUID) (iter.Seq2[SlotView, error], error) {
	doctorID, err := v.store.DoctorProfileID(ctx, doctorUserID)
	if err != nil {
		return nil, err
	}

	return func(yield func(SlotView, error) bool) {
		stopped := false
		err := v.store.ScanSlotAvailability(ctx, doctorID, func(sa SlotAvailability) bool {
			if !yield(NewSlotView(sa), nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(SlotView{}, fmt.Errorf("scan slot availability: %w", err))
		}
	}, nil
}

// ListPatientAppointments returns the calling patient's appointments of
// every status, newest first, joined with doctor and slot summaries.
func (v *AvailabilityView) ListPatientAppointments(ctx context.Context, patientUserID uuid.UUID) ([]AppointmentDetail, error) {
	patientID, err := v.store.PatientProfileID(ctx, patientUserID)
	if err != nil {
		return nil, err
	}

	appointments, err := v.store.ListPatientAppointments(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return appointments, nil
}
