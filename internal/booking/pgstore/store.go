// Package pgstore implements booking.Store on PostgreSQL. Capacity checks
// take a row lock on the slot (SELECT ... FOR UPDATE) and re-count
// confirmed appointments inside the same READ COMMITTED transaction.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prmjagdish/schedula/internal/apperrors"
	"github.com/prmjagdish/schedula/internal/booking"
	"github.com/prmjagdish/schedula/internal/db"
)

const codeCheckViolation = "23514"

// queryable is satisfied by both *pgxpool.Pool and pgx.Tx.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

var _ booking.Store = (*Store)(nil)

type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits on a row lock. A
// timeout surfaces as a transient error and the transaction is retried.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	err := db.WithTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if s.lockTimeout > 0 {
			// SET LOCAL does not accept bind parameters
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("set lock timeout: %w", err)
			}
		}
		return fn(ctx, &pgTx{q: tx})
	})
	return classify(err)
}

// classify passes application errors through and marks retryable driver
// failures as transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if db.IsTransient(err) {
		return apperrors.NewTransient("postgres transaction", err)
	}
	return err
}

func (s *Store) PatientProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	return patientProfileID(ctx, s.pool, userID)
}

func (s *Store) DoctorProfileID(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	return doctorProfileID(ctx, s.pool, userID)
}

func (s *Store) GetAppointment(ctx context.Context, id uuid.UUID) (*booking.Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, slot_id, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	appt, err := scanAppointment(row)
	return appt, classify(err)
}

func (s *Store) ScanSlotAvailability(ctx context.Context, doctorID uuid.UUID, fn func(booking.SlotAvailability) bool) error {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.doctor_id, s.date, s.start_time, s.end_time, s.max_capacity, s.created_at,
		       COUNT(a.id) FILTER (WHERE a.status = 'CONFIRMED')
		FROM slots s
		LEFT JOIN appointments a ON a.slot_id = s.id
		WHERE s.doctor_id = $1
		GROUP BY s.id
		ORDER BY s.date ASC, s.start_time ASC, s.id ASC
	`, doctorID)
	if err != nil {
		return classify(fmt.Errorf("query slot availability: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var sa booking.SlotAvailability
		if err := rows.Scan(
			&sa.ID,
			&sa.DoctorID,
			&sa.Date,
			&sa.StartTime,
			&sa.EndTime,
			&sa.MaxCapacity,
			&sa.CreatedAt,
			&sa.ConfirmedCount,
		); err != nil {
			return fmt.Errorf("scan slot availability: %w", err)
		}
		if !fn(sa) {
			return nil
		}
	}
	return classify(rows.Err())
}

func (s *Store) ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]booking.AppointmentDetail, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.patient_id, a.doctor_id, a.slot_id, a.status, a.created_at, a.updated_at,
		       d.id, d.full_name, d.experience_years, d.consultation_fee,
		       s.id, s.date, s.start_time, s.end_time
		FROM appointments a
		JOIN doctor_profiles d ON d.id = a.doctor_id
		JOIN slots s ON s.id = a.slot_id
		WHERE a.patient_id = $1
		ORDER BY a.created_at DESC, a.id DESC
	`, patientID)
	if err != nil {
		return nil, classify(fmt.Errorf("query patient appointments: %w", err))
	}
	defer rows.Close()

	var out []booking.AppointmentDetail
	for rows.Next() {
		var d booking.AppointmentDetail
		if err := rows.Scan(
			&d.ID,
			&d.PatientID,
			&d.DoctorID,
			&d.SlotID,
			&d.Status,
			&d.CreatedAt,
			&d.UpdatedAt,
			&d.Doctor.ID,
			&d.Doctor.FullName,
			&d.Doctor.ExperienceYears,
			&d.Doctor.ConsultationFee,
			&d.Slot.ID,
			&d.Slot.Date,
			&d.Slot.StartTime,
			&d.Slot.EndTime,
		); err != nil {
			return nil, fmt.Errorf("scan patient appointment: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// Helpers

func patientProfileID(ctx context.Context, q queryable, userID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx, `SELECT id FROM patient_profiles WHERE user_id = $1`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, booking.ErrPatientProfileMissing
		}
		return uuid.Nil, classify(fmt.Errorf("load patient profile: %w", err))
	}
	return id, nil
}

func doctorProfileID(ctx context.Context, q queryable, userID uuid.UUID) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx, `SELECT id FROM doctor_profiles WHERE user_id = $1`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, booking.ErrDoctorProfileMissing
		}
		return uuid.Nil, classify(fmt.Errorf("load doctor profile: %w", err))
	}
	return id, nil
}

func scanSlot(row pgx.Row) (*booking.Slot, error) {
	var s booking.Slot

	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.MaxCapacity,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*booking.Appointment, error) {
	var a booking.Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}
