package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SlotInput is what a doctor submits to publish a slot.
type SlotInput struct {
	Date        time.Time `json:"date" validate:"required"`
	StartTime   time.Time `json:"startTime" validate:"required"`
	EndTime     time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
	MaxCapacity int       `json:"maxCapacity" validate:"required,gte=1"`
}

// SlotService lets doctors publish slots. Capacity is fixed at creation.
type SlotService struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

func NewSlotService(store Store) *SlotService {
	return &SlotService{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

func (s *SlotService) CreateSlot(ctx context.Context, doctorUserID uuid.UUID, in SlotInput) (*Slot, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, slotValidationError(err)
	}

	doctorID, err := s.store.DoctorProfileID(ctx, doctorUserID)
	if err != nil {
		return nil, err
	}

	slot := &Slot{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Date:        truncateToDay(in.Date),
		StartTime:   in.StartTime.UTC(),
		EndTime:     in.EndTime.UTC(),
		MaxCapacity: in.MaxCapacity,
		CreatedAt:   s.now().UTC(),
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertSlot(ctx, slot)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateSlot) {
			return nil, err
		}
		return nil, fmt.Errorf("insert slot: %w", err)
	}

	zerolog.Ctx(ctx).Info().
		Str("slot_id", slot.ID.String()).
		Str("doctor_id", doctorID.String()).
		Int("max_capacity", slot.MaxCapacity).
		Msg("slot created")
	return slot, nil
}

func slotValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrInvalidSlot.Wrap(err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "gtfield":
			msgs = append(msgs, fe.Field()+" must be after "+fe.Param())
		case "gte":
			msgs = append(msgs, fe.Field()+" must be at least "+fe.Param())
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}

	invalid := *ErrInvalidSlot
	invalid.Message = strings.Join(msgs, "; ")
	invalid.Err = err
	return &invalid
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
