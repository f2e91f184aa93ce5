package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/prmjagdish/schedula/internal/booking"
	"github.com/prmjagdish/schedula/internal/db"
)

// pgTx is the booking.Tx handed to a unit of work. Every statement runs on
// the enclosing transaction.
type pgTx struct {
	q queryable
}

func (t *pgTx) PatientProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	return patientProfileID(ctx, t.q, userID)
}

func (t *pgTx) DoctorProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	return doctorProfileID(ctx, t.q, userID)
}

func (t *pgTx) LockSlot(ctx context.Context, id uuid.UUID) (*booking.Slot, error) {
	row := t.q.QueryRow(ctx, `
		SELECT id, doctor_id, date, start_time, end_time, max_capacity, created_at
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, id)
	slot, err := scanSlot(row)
	if err != nil && !errors.Is(err, booking.ErrSlotNotFound) {
		return nil, fmt.Errorf("lock slot: %w", err)
	}
	return slot, err
}

func (t *pgTx) InsertSlot(ctx context.Context, s *booking.Slot) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO slots (id, doctor_id, date, start_time, end_time, max_capacity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.DoctorID, s.Date, s.StartTime, s.EndTime, s.MaxCapacity, s.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return booking.ErrDuplicateSlot
		}
		if isCheckViolation(err) {
			return booking.ErrInvalidSlot.Wrap(err)
		}
		return err
	}
	return nil
}

func (t *pgTx) CountConfirmed(ctx context.Context, slotID uuid.UUID) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE slot_id = $1 AND status = 'CONFIRMED'
	`, slotID).Scan(&n)
	return n, err
}

func (t *pgTx) InsertAppointment(ctx context.Context, a *booking.Appointment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, slot_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.PatientID, a.DoctorID, a.SlotID, string(a.Status), a.CreatedAt, a.UpdatedAt)
	return err
}

func (t *pgTx) LockAppointment(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	row := t.q.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, slot_id, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	appt, err := scanAppointment(row)
	if err != nil && !errors.Is(err, booking.ErrAppointmentNotFound) {
		return nil, fmt.Errorf("lock appointment: %w", err)
	}
	return appt, err
}

func (t *pgTx) TransitionStatus(ctx context.Context, id uuid.UUID, from, to booking.Status) (*booking.Appointment, error) {
	if err := booking.CheckTransition(from, to); err != nil {
		return nil, err
	}

	row := t.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING id, patient_id, doctor_id, slot_id, status, created_at, updated_at
	`, id, string(from), string(to))
	appt, err := scanAppointment(row)
	if err != nil {
		if isCheckViolation(err) {
			return nil, booking.ErrInvalidTransition
		}
		if !errors.Is(err, booking.ErrAppointmentNotFound) {
			return nil, fmt.Errorf("update appointment status: %w", err)
		}
		return nil, err
	}
	return appt, nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev booking.EventLog) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.EventType, ev.AppointmentID, ev.Payload, ev.CreatedAt)
	return err
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeCheckViolation
}
