package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/prmjagdish/schedula/internal/apperrors"
	"github.com/prmjagdish/schedula/internal/retry"
)

const (
	EventAppointmentBooked    = "APPOINTMENT_BOOKED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

// Deduplicator remembers which appointment a client-supplied idempotency
// key produced.
type Deduplicator interface {
	// Reserve claims key. When the key already completed, reserved is false
	// and prior holds the appointment it produced. A replay returns that
	// appointment as it is now, so it may since have been cancelled. A key that is claimed but
	// not completed yields ErrRequestInProgress.
	Reserve(ctx context.Context, key string) (prior uuid.UUID, reserved bool, err error)
	Complete(ctx context.Context, key string, appointmentID uuid.UUID) error
	Release(ctx context.Context, key string) error
}

type BookRequest struct {
	PatientUserID  uuid.UUID
	SlotID         uuid.UUID
	IdempotencyKey string
}

type CancelRequest struct {
	AppointmentID uuid.UUID
	CallerUserID  uuid.UUID
}

// Coordinator owns every write to appointment status. Capacity is enforced
// by the storage transaction alone; the coordinator keeps no shared state
// about counts.
type Coordinator struct {
	store   Store
	dedup   Deduplicator
	retry   retry.Config
	metrics *instruments
	now     func() time.Time
}

type Option func(*Coordinator)

// WithDeduplicator enables Idempotency-Key handling on Book.
func WithDeduplicator(d Deduplicator) Option {
	return func(c *Coordinator) { c.dedup = d }
}

// WithRetry overrides the transient-failure retry budget. The Retryable
// predicate is always forced to apperrors.IsTransient.
func WithRetry(cfg retry.Config) Option {
	return func(c *Coordinator) { c.retry = cfg }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		retry:   retry.DefaultConfig(),
		metrics: newInstruments(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.retry.Retryable = apperrors.IsTransient
	return c
}

// Book reserves one place in a slot for the calling patient. Under any
// number of concurrent callers the slot's confirmed count never exceeds
// its capacity; losers of the race get ErrSlotFull.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (appt *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.Book", trace.WithAttributes(
		attribute.String("slot_id", req.SlotID.String()),
	))
	defer func() { endSpan(span, err) }()

	if req.IdempotencyKey == "" || c.dedup == nil {
		return c.book(ctx, req)
	}

	key := req.PatientUserID.String() + ":" + req.IdempotencyKey
	prior, reserved, err := c.dedup.Reserve(ctx, key)
	switch {
	case errors.Is(err, ErrRequestInProgress):
		return nil, err
	case err != nil:
		// Without the dedup store the request degrades to at-least-once;
		// capacity is still enforced by the transaction.
		zerolog.Ctx(ctx).Warn().Err(err).Str("slot_id", req.SlotID.String()).
			Msg("idempotency store unavailable, booking without deduplication")
		return c.book(ctx, req)
	case !reserved:
		replayed, err := c.store.GetAppointment(ctx, prior)
		if err != nil {
			return nil, fmt.Errorf("load replayed appointment: %w", err)
		}
		if replayed.SlotID != req.SlotID {
			return nil, ErrIdempotencyKeyReused
		}
		zerolog.Ctx(ctx).Info().Str("appointment_id", prior.String()).Msg("replayed idempotent booking")
		return replayed, nil
	}

	appt, err = c.book(ctx, req)
	if err != nil {
		if relErr := c.dedup.Release(context.WithoutCancel(ctx), key); relErr != nil {
			zerolog.Ctx(ctx).Warn().Err(relErr).Msg("release idempotency key")
		}
		return nil, err
	}

	if err := c.dedup.Complete(context.WithoutCancel(ctx), key, appt.ID); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("complete idempotency key")
	}
	return appt, nil
}

func (c *Coordinator) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	var created *Appointment

	attempts, err := retry.Do(ctx, c.retryConfig(ctx, "book"), func(int) error {
		created = nil
		return c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			slot, err := tx.LockSlot(ctx, req.SlotID)
			if err != nil {
				return err
			}

			patientID, err := tx.PatientProfileID(ctx, req.PatientUserID)
			if err != nil {
				return err
			}

			confirmed, err := tx.CountConfirmed(ctx, slot.ID)
			if err != nil {
				return fmt.Errorf("count confirmed appointments: %w", err)
			}
			if confirmed >= slot.MaxCapacity {
				return ErrSlotFull
			}

			now := c.now().UTC()
			appt := &Appointment{
				ID:        uuid.New(),
				PatientID: patientID,
				DoctorID:  slot.DoctorID,
				SlotID:    slot.ID,
				Status:    StatusConfirmed,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertAppointment(ctx, appt); err != nil {
				return fmt.Errorf("insert appointment: %w", err)
			}

			ev := newEvent(EventAppointmentBooked, appt.ID, now, map[string]any{
				"slot_id":    slot.ID.String(),
				"patient_id": patientID.String(),
				"doctor_id":  slot.DoctorID.String(),
				"start_time": slot.StartTime,
			})
			if err := tx.InsertEvent(ctx, ev); err != nil {
				return fmt.Errorf("insert booking event: %w", err)
			}

			created = appt
			return nil
		})
	})
	c.metrics.record(ctx, c.metrics.bookOutcomes, "book", attempts, err)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("appointment_id", created.ID.String()).
		Str("slot_id", created.SlotID.String()).
		Int("attempts", attempts).
		Msg("appointment booked")
	return created, nil
}

// Cancel moves a CONFIRMED appointment to CANCELLED. Cancelling twice is an
// error (ErrAlreadyCancelled), not a no-op.
func (c *Coordinator) Cancel(ctx context.Context, req CancelRequest) (appt *Appointment, err error) {
	ctx, span := tracer.Start(ctx, "booking.Cancel", trace.WithAttributes(
		attribute.String("appointment_id", req.AppointmentID.String()),
	))
	defer func() { endSpan(span, err) }()

	var updated *Appointment

	attempts, err := retry.Do(ctx, c.retryConfig(ctx, "cancel"), func(int) error {
		updated = nil
		return c.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			current, err := tx.LockAppointment(ctx, req.AppointmentID)
			if err != nil {
				return err
			}
			if current.Status == StatusCancelled {
				return ErrAlreadyCancelled
			}

			next, err := tx.TransitionStatus(ctx, current.ID, current.Status, StatusCancelled)
			if err != nil {
				return err
			}

			ev := newEvent(EventAppointmentCancelled, next.ID, c.now().UTC(), map[string]any{
				"slot_id":      next.SlotID.String(),
				"patient_id":   next.PatientID.String(),
				"cancelled_by": req.CallerUserID.String(),
			})
			if err := tx.InsertEvent(ctx, ev); err != nil {
				return fmt.Errorf("insert cancellation event: %w", err)
			}

			updated = next
			return nil
		})
	})
	c.metrics.record(ctx, c.metrics.cancelOutcomes, "cancel", attempts, err)
	if err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Info().
		Str("appointment_id", updated.ID.String()).
		Str("cancelled_by", req.CallerUserID.String()).
		Msg("appointment cancelled")
	return updated, nil
}

func (c *Coordinator) retryConfig(ctx context.Context, op string) retry.Config {
	cfg := c.retry
	cfg.OnRetry = func(attempt int, err error, next time.Duration) {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", next).
			Msg("transient storage failure, retrying transaction")
	}
	return cfg
}

func newEvent(eventType string, appointmentID uuid.UUID, at time.Time, payload map[string]any) EventLog {
	// payload values are strings and times, Marshal cannot fail on them
	data, _ := json.Marshal(payload)
	id := appointmentID
	return EventLog{
		EventType:     eventType,
		AppointmentID: &id,
		Payload:       data,
		CreatedAt:     at,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcomeCode(err))
	}
	span.End()
}
