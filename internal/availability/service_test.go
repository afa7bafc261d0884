package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/access"
)

type memRepo struct {
	mu         sync.Mutex
	windows    map[uuid.UUID]Window
	exceptions map[uuid.UUID]Exception
}

func newMemRepo() *memRepo {
	return &memRepo{
		windows:    make(map[uuid.UUID]Window),
		exceptions: make(map[uuid.UUID]Exception),
	}
}

func (m *memRepo) ListWindows(_ context.Context, doctorID uuid.UUID) ([]Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Window
	for _, w := range m.windows {
		if w.DoctorID == doctorID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memRepo) CreateWindow(_ context.Context, w *Window) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.windows {
		if existing.DoctorID == w.DoctorID && existing.Overlaps(*w) {
			return ErrWindowOverlap
		}
	}
	w.CreatedAt = time.Now()
	m.windows[w.ID] = *w
	return nil
}

func (m *memRepo) DeleteWindow(_ context.Context, doctorID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[id]
	if !ok || w.DoctorID != doctorID {
		return ErrWindowNotFound
	}
	delete(m.windows, id)
	return nil
}

func (m *memRepo) ListExceptions(_ context.Context, doctorID uuid.UUID, from, to Date) ([]Exception, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Exception
	for _, e := range m.exceptions {
		if e.DoctorID == doctorID && !e.Date.Before(from) && !to.Before(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepo) CreateException(_ context.Context, e *Exception) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.CreatedAt = time.Now()
	m.exceptions[e.ID] = *e
	return nil
}

func (m *memRepo) DeleteException(_ context.Context, doctorID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exceptions[id]
	if !ok || e.DoctorID != doctorID {
		return ErrExceptionNotFound
	}
	delete(m.exceptions, id)
	return nil
}

func newTestService() (*Service, *memRepo) {
	repo := newMemRepo()
	return NewService(repo, time.UTC, 30*time.Minute, zerolog.Nop()), repo
}

func actorOf(role access.Role) access.Actor {
	return access.Actor{ID: uuid.New(), Role: role, Approved: true}
}

func isForbidden(err error) bool {
	var fe *access.ForbiddenError
	return errors.As(err, &fe)
}

func TestAddWindow(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	doctor := actorOf(access.RoleDoctor)

	w, err := svc.AddWindow(ctx, doctor, Window{DoctorID: doctor.ID, Weekday: time.Monday, StartMinute: 540, EndMinute: 720})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, w.ID)

	_, err = svc.AddWindow(ctx, doctor, Window{DoctorID: doctor.ID, Weekday: time.Monday, StartMinute: 700, EndMinute: 800})
	assert.ErrorIs(t, err, ErrWindowOverlap)

	_, err = svc.AddWindow(ctx, doctor, Window{DoctorID: doctor.ID, Weekday: time.Monday, StartMinute: 720, EndMinute: 800})
	assert.NoError(t, err, "adjacent windows do not overlap")

	_, err = svc.AddWindow(ctx, doctor, Window{DoctorID: doctor.ID, Weekday: time.Tuesday, StartMinute: 800, EndMinute: 700})
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestAddWindow_Authorization(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	doctor := actorOf(access.RoleDoctor)
	w := Window{DoctorID: doctor.ID, Weekday: time.Monday, StartMinute: 540, EndMinute: 720}

	_, err := svc.AddWindow(ctx, actorOf(access.RoleDoctor), w)
	assert.True(t, isForbidden(err), "another doctor cannot edit this schedule")

	_, err = svc.AddWindow(ctx, actorOf(access.RolePatient), w)
	assert.True(t, isForbidden(err))

	_, err = svc.AddWindow(ctx, actorOf(access.RoleAdmin), w)
	assert.True(t, isForbidden(err))
}

func TestRemoveWindow(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	doctor := actorOf(access.RoleDoctor)

	w, err := svc.AddWindow(ctx, doctor, Window{DoctorID: doctor.ID, Weekday: time.Friday, StartMinute: 600, EndMinute: 660})
	require.NoError(t, err)

	require.NoError(t, svc.RemoveWindow(ctx, doctor, doctor.ID, w.ID))
	assert.ErrorIs(t, svc.RemoveWindow(ctx, doctor, doctor.ID, w.ID), ErrWindowNotFound)

	windows, err := svc.ListWindows(ctx, actorOf(access.RolePatient), doctor.ID)
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestExceptions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	doctor := actorOf(access.RoleDoctor)

	e, err := svc.AddException(ctx, doctor, Exception{
		DoctorID: doctor.ID, Date: monday, Kind: ExceptionBlocked, StartMinute: 600, EndMinute: 660, Reason: "training",
	})
	require.NoError(t, err)

	_, err = svc.AddException(ctx, doctor, Exception{
		DoctorID: doctor.ID, Date: monday, Kind: "MAYBE", StartMinute: 600, EndMinute: 660,
	})
	assert.ErrorIs(t, err, ErrInvalidWindow)

	list, err := svc.ListExceptions(ctx, doctor, doctor.ID, monday, monday.AddDays(6))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "training", list[0].Reason)

	_, err = svc.ListExceptions(ctx, doctor, doctor.ID, monday.AddDays(1), monday)
	assert.ErrorIs(t, err, ErrInvalidRange)

	require.NoError(t, svc.RemoveException(ctx, doctor, doctor.ID, e.ID))
	assert.ErrorIs(t, svc.RemoveException(ctx, doctor, doctor.ID, e.ID), ErrExceptionNotFound)
}

func TestSnapshot(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	doctor := actorOf(access.RoleDoctor)

	_, err := svc.AddWindow(ctx, doctor, Window{DoctorID: doctor.ID, Weekday: time.Monday, StartMinute: 540, EndMinute: 720})
	require.NoError(t, err)
	_, err = svc.AddException(ctx, doctor, Exception{
		DoctorID: doctor.ID, Date: monday, Kind: ExceptionBlocked, StartMinute: 540, EndMinute: 600,
	})
	require.NoError(t, err)
	_, err = svc.AddException(ctx, doctor, Exception{
		DoctorID: doctor.ID, Date: monday.AddDays(7), Kind: ExceptionBlocked, StartMinute: 540, EndMinute: 720,
	})
	require.NoError(t, err)

	sched, err := svc.Snapshot(ctx, doctor.ID, monday, monday)
	require.NoError(t, err)
	assert.Len(t, sched.Windows, 1)
	assert.Len(t, sched.Exceptions, 1)
	assert.Equal(t, 30*time.Minute, sched.SlotLength)

	var count int
	for range sched.OpenSlots(monday, monday, nil) {
		count++
	}
	assert.Equal(t, 4, count)
}
