// Package memstore is an in-process booking.Store. Units of work are fully
// serialised and their writes are buffered until commit, which gives the
// same observable guarantees as the Postgres store's row locks.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prmjagdish/schedula/internal/apperrors"
	"github.com/prmjagdish/schedula/internal/booking"
)

var errInjected = errors.New("injected serialization failure")

type Store struct {
	mu sync.RWMutex

	patients      map[uuid.UUID]uuid.UUID // user id -> patient profile id
	doctors       map[uuid.UUID]uuid.UUID // user id -> doctor profile id
	doctorSummary map[uuid.UUID]booking.DoctorSummary
	slots         map[uuid.UUID]booking.Slot
	appointments  map[uuid.UUID]booking.Appointment
	apptSeq       map[uuid.UUID]int64
	events        []booking.EventLog
	seq           int64

	failCommits int
	commits     int
	rollbacks   int
}

var _ booking.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		patients:      make(map[uuid.UUID]uuid.UUID),
		doctors:       make(map[uuid.UUID]uuid.UUID),
		doctorSummary: make(map[uuid.UUID]booking.DoctorSummary),
		slots:         make(map[uuid.UUID]booking.Slot),
		appointments:  make(map[uuid.UUID]booking.Appointment),
		apptSeq:       make(map[uuid.UUID]int64),
	}
}

// AddPatient registers a patient profile for userID and returns its id.
func (s *Store) AddPatient(userID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.patients[userID] = id
	return id
}

// AddDoctor registers a doctor profile for userID and returns its id.
func (s *Store) AddDoctor(userID uuid.UUID, fullName string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.doctors[userID] = id
	s.doctorSummary[id] = booking.DoctorSummary{ID: id, FullName: fullName}
	return id
}

// AddSlot stores slot as committed state, assigning an id when missing.
func (s *Store) AddSlot(slot booking.Slot) booking.Slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now().UTC()
	}
	s.slots[slot.ID] = slot
	return slot
}

// FailNextCommits makes the next n units of work discard their writes and
// report a transient storage failure.
func (s *Store) FailNextCommits(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCommits = n
}

// Events returns a copy of the committed event log.
func (s *Store) Events() []booking.EventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}

// ConfirmedCount returns the committed CONFIRMED count for a slot.
func (s *Store) ConfirmedCount(slotID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countConfirmed(slotID, nil)
}

// TxStats reports how many units of work committed and rolled back.
func (s *Store) TxStats() (commits, rollbacks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits, s.rollbacks
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:        s,
		slots:        make(map[uuid.UUID]booking.Slot),
		appointments: make(map[uuid.UUID]booking.Appointment),
	}
	if err := fn(ctx, tx); err != nil {
		s.rollbacks++
		return err
	}

	if s.failCommits > 0 {
		s.failCommits--
		s.rollbacks++
		return apperrors.NewTransient("commit transaction", errInjected)
	}

	for id, slot := range tx.slots {
		s.slots[id] = slot
	}
	for id, appt := range tx.appointments {
		if _, ok := s.appointments[id]; !ok {
			s.seq++
			s.apptSeq[id] = s.seq
		}
		s.appointments[id] = appt
	}
	for _, ev := range tx.events {
		s.seq++
		ev.ID = s.seq
		s.events = append(s.events, ev)
	}
	s.commits++
	return nil
}

func (s *Store) PatientProfileID(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.patientProfileID(userID)
}

func (s *Store) DoctorProfileID(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doctorProfileID(userID)
}

func (s *Store) GetAppointment(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appt, ok := s.appointments[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	return &appt, nil
}

func (s *Store) ScanSlotAvailability(ctx context.Context, doctorID uuid.UUID, fn func(booking.SlotAvailability) bool) error {
	s.mu.RLock()
	var rows []booking.SlotAvailability
	for _, slot := range s.slots {
		if slot.DoctorID != doctorID {
			continue
		}
		rows = append(rows, booking.SlotAvailability{Slot: slot, ConfirmedCount: s.countConfirmed(slot.ID, nil)})
	}
	s.mu.RUnlock()

	slices.SortFunc(rows, func(a, b booking.SlotAvailability) int {
		return cmp.Or(
			a.Date.Compare(b.Date),
			a.StartTime.Compare(b.StartTime),
			cmp.Compare(a.ID.String(), b.ID.String()),
		)
	})

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !fn(row) {
			return nil
		}
	}
	return nil
}

func (s *Store) ListPatientAppointments(_ context.Context, patientID uuid.UUID) ([]booking.AppointmentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []booking.AppointmentDetail
	for _, appt := range s.appointments {
		if appt.PatientID != patientID {
			continue
		}
		slot := s.slots[appt.SlotID]
		out = append(out, booking.AppointmentDetail{
			Appointment: appt,
			Doctor:      s.doctorSummary[appt.DoctorID],
			Slot: booking.SlotSummary{
				ID:        slot.ID,
				Date:      slot.Date,
				StartTime: slot.StartTime,
				EndTime:   slot.EndTime,
			},
		})
	}

	slices.SortFunc(out, func(a, b booking.AppointmentDetail) int {
		return cmp.Or(
			b.CreatedAt.Compare(a.CreatedAt),
			cmp.Compare(s.apptSeq[b.ID], s.apptSeq[a.ID]),
		)
	})
	return out, nil
}

func (s *Store) patientProfileID(userID uuid.UUID) (uuid.UUID, error) {
	id, ok := s.patients[userID]
	if !ok {
		return uuid.Nil, booking.ErrPatientProfileMissing
	}
	return id, nil
}

func (s *Store) doctorProfileID(userID uuid.UUID) (uuid.UUID, error) {
	id, ok := s.doctors[userID]
	if !ok {
		return uuid.Nil, booking.ErrDoctorProfileMissing
	}
	return id, nil
}

// countConfirmed counts committed rows, overlaid with pending writes when
// pending is non-nil. Callers hold mu.
func (s *Store) countConfirmed(slotID uuid.UUID, pending map[uuid.UUID]booking.Appointment) int {
	n := 0
	for id, appt := range s.appointments {
		if p, ok := pending[id]; ok {
			appt = p
		}
		if appt.SlotID == slotID && appt.Status == booking.StatusConfirmed {
			n++
		}
	}
	for id, appt := range pending {
		if _, committed := s.appointments[id]; committed {
			continue
		}
		if appt.SlotID == slotID && appt.Status == booking.StatusConfirmed {
			n++
		}
	}
	return n
}

// memTx buffers writes until WithinTx commits. The store's write lock is held
// for its whole lifetime.
type memTx struct {
	store        *Store
	slots        map[uuid.UUID]booking.Slot
	appointments map[uuid.UUID]booking.Appointment
	events       []booking.EventLog
}

func (t *memTx) PatientProfileID(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	return t.store.patientProfileID(userID)
}

func (t *memTx) DoctorProfileID(_ context.Context, userID uuid.UUID) (uuid.UUID, error) {
	return t.store.doctorProfileID(userID)
}

func (t *memTx) LockSlot(_ context.Context, id uuid.UUID) (*booking.Slot, error) {
	if slot, ok := t.slots[id]; ok {
		return &slot, nil
	}
	slot, ok := t.store.slots[id]
	if !ok {
		return nil, booking.ErrSlotNotFound
	}
	return &slot, nil
}

func (t *memTx) InsertSlot(_ context.Context, slot *booking.Slot) error {
	if slot.MaxCapacity < 1 || !slot.StartTime.Before(slot.EndTime) {
		return booking.ErrInvalidSlot
	}
	same := func(o booking.Slot) bool {
		return o.DoctorID == slot.DoctorID &&
			o.Date.Equal(slot.Date) &&
			o.StartTime.Equal(slot.StartTime) &&
			o.EndTime.Equal(slot.EndTime) &&
			o.MaxCapacity == slot.MaxCapacity
	}
	for _, o := range t.store.slots {
		if same(o) {
			return booking.ErrDuplicateSlot
		}
	}
	for _, o := range t.slots {
		if same(o) {
			return booking.ErrDuplicateSlot
		}
	}
	t.slots[slot.ID] = *slot
	return nil
}

func (t *memTx) CountConfirmed(_ context.Context, slotID uuid.UUID) (int, error) {
	return t.store.countConfirmed(slotID, t.appointments), nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *booking.Appointment) error {
	if !a.Status.Valid() {
		return booking.ErrInvalidTransition
	}
	t.appointments[a.ID] = *a
	return nil
}

func (t *memTx) LockAppointment(_ context.Context, id uuid.UUID) (*booking.Appointment, error) {
	if appt, ok := t.appointments[id]; ok {
		return &appt, nil
	}
	appt, ok := t.store.appointments[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	return &appt, nil
}

func (t *memTx) TransitionStatus(ctx context.Context, id uuid.UUID, from, to booking.Status) (*booking.Appointment, error) {
	if err := booking.CheckTransition(from, to); err != nil {
		return nil, err
	}
	appt, err := t.LockAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != from {
		return nil, booking.ErrAppointmentNotFound
	}
	appt.Status = to
	appt.UpdatedAt = time.Now().UTC()
	t.appointments[id] = *appt
	return appt, nil
}

func (t *memTx) InsertEvent(_ context.Context, ev booking.EventLog) error {
	t.events = append(t.events, ev)
	return nil
}
