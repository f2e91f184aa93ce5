package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prmjagdish/schedula/internal/apperrors"
	"github.com/prmjagdish/schedula/internal/booking"
)

func TestCreateSlot(t *testing.T) {
	f := newFixture(t)
	svc := booking.NewSlotService(f.store)
	ctx := context.Background()

	start := time.Date(2026, 11, 5, 14, 0, 0, 0, time.UTC)
	in := booking.SlotInput{
		Date:        start,
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		MaxCapacity: 4,
	}

	slot, err := svc.CreateSlot(ctx, f.doctorUserID, in)
	require.NoError(t, err)
	assert.Equal(t, f.doctorID, slot.DoctorID)
	assert.Equal(t, time.Date(2026, 11, 5, 0, 0, 0, 0, time.UTC), slot.Date)

	_, err = svc.CreateSlot(ctx, f.doctorUserID, in)
	require.ErrorIs(t, err, booking.ErrDuplicateSlot)

	// a different capacity is a different slot
	in.MaxCapacity = 6
	_, err = svc.CreateSlot(ctx, f.doctorUserID, in)
	require.NoError(t, err)
}

func TestCreateSlot_Validation(t *testing.T) {
	f := newFixture(t)
	svc := booking.NewSlotService(f.store)
	start := time.Date(2026, 11, 5, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      booking.SlotInput
		message string
	}{
		{
			name:    "end before start",
			in:      booking.SlotInput{Date: start, StartTime: start, EndTime: start.Add(-time.Hour), MaxCapacity: 1},
			message: "EndTime must be after StartTime",
		},
		{
			name:    "zero capacity",
			in:      booking.SlotInput{Date: start, StartTime: start, EndTime: start.Add(time.Hour)},
			message: "MaxCapacity is required",
		},
		{
			name:    "negative capacity",
			in:      booking.SlotInput{Date: start, StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: -2},
			message: "MaxCapacity must be at least 1",
		},
		{
			name:    "missing date",
			in:      booking.SlotInput{StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: 1},
			message: "Date is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSlot(context.Background(), f.doctorUserID, tt.in)
			require.ErrorIs(t, err, booking.ErrInvalidSlot)
			assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCreateSlot_RequiresDoctorProfile(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 11, 5, 14, 0, 0, 0, time.UTC)

	_, err := booking.NewSlotService(f.store).CreateSlot(context.Background(), uuid.New(), booking.SlotInput{
		Date: start, StartTime: start, EndTime: start.Add(time.Hour), MaxCapacity: 1,
	})
	require.ErrorIs(t, err, booking.ErrDoctorProfileMissing)
}
