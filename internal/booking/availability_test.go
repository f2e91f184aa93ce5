package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prmjagdish/schedula/internal/booking"
)

func collect(t *testing.T, seq func(func(booking.SlotView, error) bool)) []booking.SlotView {
	t.Helper()
	var out []booking.SlotView
	for v, err := range seq {
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestListSlots_DerivesRemainingCapacity(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(5)
	view := booking.NewAvailabilityView(f.store)
	ctx := context.Background()

	var appts []*booking.Appointment
	for range 5 {
		a, err := f.coord.Book(ctx, booking.BookRequest{PatientUserID: f.patient(), SlotID: slot.ID})
		require.NoError(t, err)
		appts = append(appts, a)
	}

	seq, err := view.ListSlots(ctx, f.doctorUserID)
	require.NoError(t, err)

	views := collect(t, seq)
	require.Len(t, views, 1)
	assert.Equal(t, booking.SlotFull, views[0].Status)
	assert.Equal(t, 0, views[0].RemainingCapacity)
	assert.Equal(t, 5, views[0].ConfirmedCount)

	_, err = f.coord.Cancel(ctx, booking.CancelRequest{AppointmentID: appts[0].ID, CallerUserID: uuid.New()})
	require.NoError(t, err)

	// the same sequence re-reads committed state
	views = collect(t, seq)
	require.Len(t, views, 1)
	assert.Equal(t, booking.SlotAvailable, views[0].Status)
	assert.Equal(t, 1, views[0].RemainingCapacity)
}

func TestListSlots_OrderedByDate(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	for _, day := range []int{3, 1, 2} {
		d := base.AddDate(0, 0, day)
		f.store.AddSlot(booking.Slot{
			DoctorID:    f.doctorID,
			Date:        d,
			StartTime:   d.Add(10 * time.Hour),
			EndTime:     d.Add(11 * time.Hour),
			MaxCapacity: 2,
		})
	}
	// another doctor's slot is not listed
	f.store.AddSlot(booking.Slot{DoctorID: uuid.New(), Date: base, StartTime: base, EndTime: base.Add(time.Hour), MaxCapacity: 1})

	seq, err := booking.NewAvailabilityView(f.store).ListSlots(context.Background(), f.doctorUserID)
	require.NoError(t, err)

	views := collect(t, seq)
	require.Len(t, views, 3)
	for i := 1; i < len(views); i++ {
		assert.True(t, views[i-1].Date.Before(views[i].Date))
	}
	for _, v := range views {
		assert.Equal(t, booking.SlotAvailable, v.Status)
		assert.Equal(t, 2, v.RemainingCapacity)
	}
}

func TestListSlots_StopsEarly(t *testing.T) {
	f := newFixture(t)
	f.slot(1)
	base := time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC)
	f.store.AddSlot(booking.Slot{DoctorID: f.doctorID, Date: base, StartTime: base, EndTime: base.Add(time.Hour), MaxCapacity: 1})

	seq, err := booking.NewAvailabilityView(f.store).ListSlots(context.Background(), f.doctorUserID)
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestListSlots_RequiresDoctorProfile(t *testing.T) {
	f := newFixture(t)

	_, err := booking.NewAvailabilityView(f.store).ListSlots(context.Background(), uuid.New())
	require.ErrorIs(t, err, booking.ErrDoctorProfileMissing)
}

func TestListPatientAppointments(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(3)
	patientUserID := f.patient()
	view := booking.NewAvailabilityView(f.store)
	ctx := context.Background()

	first, err := f.coord.Book(ctx, booking.BookRequest{PatientUserID: patientUserID, SlotID: slot.ID})
	require.NoError(t, err)
	second, err := f.coord.Book(ctx, booking.BookRequest{PatientUserID: patientUserID, SlotID: slot.ID})
	require.NoError(t, err)
	_, err = f.coord.Cancel(ctx, booking.CancelRequest{AppointmentID: first.ID, CallerUserID: patientUserID})
	require.NoError(t, err)

	// someone else's booking is not listed
	_, err = f.coord.Book(ctx, booking.BookRequest{PatientUserID: f.patient(), SlotID: slot.ID})
	require.NoError(t, err)

	got, err := view.ListPatientAppointments(ctx, patientUserID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, booking.StatusConfirmed, got[0].Status)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, booking.StatusCancelled, got[1].Status)
	assert.Equal(t, "Dr. Meera Rao", got[0].Doctor.FullName)
	assert.Equal(t, slot.StartTime, got[0].Slot.StartTime)
}

func TestListPatientAppointments_RequiresPatientProfile(t *testing.T) {
	f := newFixture(t)

	_, err := booking.NewAvailabilityView(f.store).ListPatientAppointments(context.Background(), uuid.New())
	require.ErrorIs(t, err, booking.ErrPatientProfileMissing)
}
