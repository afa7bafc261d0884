package appointment

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/events"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// memRepo serializes every write under one mutex, the way the store
// transaction serializes writes per doctor and date.
type memRepo struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]Appointment
	events       []events.Event
	beforeUpdate func(id uuid.UUID)
}

func newMemRepo() *memRepo {
	return &memRepo{appointments: make(map[uuid.UUID]Appointment)}
}

func (m *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memRepo) matching(f ListFilter) []Appointment {
	var out []Appointment
	for _, a := range m.appointments {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.From != nil && !a.End.After(*f.From) {
			continue
		}
		if f.To != nil && !a.Start.Before(*f.To) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (m *memRepo) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.matching(f)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memRepo) CountAppointments(_ context.Context, f ListFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(f)), nil
}

func (m *memRepo) ListActiveForDoctor(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	window := availability.Interval{Start: from, End: to}
	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Status.Active() && a.Interval().Overlaps(window) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) overlapping(doctorID, self uuid.UUID, iv availability.Interval) *Appointment {
	for _, a := range m.appointments {
		if a.ID != self && a.DoctorID == doctorID && a.Status.Active() && a.Interval().Overlaps(iv) {
			return &a
		}
	}
	return nil
}

func (m *memRepo) CreateAppointment(_ context.Context, a *Appointment, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if other := m.overlapping(a.DoctorID, a.ID, a.Interval()); other != nil {
		return &ConflictError{DoctorID: a.DoctorID, Start: a.Start, End: a.End, ExistingID: other.ID}
	}
	a.Version = 1
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appointments[a.ID] = *a
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepo) RescheduleAppointment(_ context.Context, id uuid.UUID, from Status, start, end time.Time, ev events.Event) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusChanged
	}
	if other := m.overlapping(a.DoctorID, id, availability.Interval{Start: start, End: end}); other != nil {
		return nil, &ConflictError{DoctorID: a.DoctorID, Start: start, End: end, ExistingID: other.ID}
	}
	a.Start, a.End, a.Status = start, end, StatusRescheduled
	a.Version++
	m.appointments[id] = a
	m.events = append(m.events, ev)
	return &a, nil
}

func (m *memRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status, ev events.Event) (*Appointment, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate(id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, ErrStatusChanged
	}
	a.Status = to
	a.Version++
	m.appointments[id] = a
	m.events = append(m.events, ev)
	return &a, nil
}

func (m *memRepo) ListPatientsOfDoctor(_ context.Context, doctorID uuid.UUID) ([]PatientVisits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPatient := map[uuid.UUID]*PatientVisits{}
	for _, a := range m.appointments {
		if a.DoctorID != doctorID || !a.Status.Active() {
			continue
		}
		pv, ok := byPatient[a.PatientID]
		if !ok {
			pv = &PatientVisits{PatientID: a.PatientID}
			byPatient[a.PatientID] = pv
		}
		pv.Appointments++
		if a.Start.After(pv.LastStart) {
			pv.LastStart = a.Start
		}
	}
	var out []PatientVisits
	for _, pv := range byPatient {
		out = append(out, *pv)
	}
	return out, nil
}

func (m *memRepo) eventTypes() []events.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []events.Type
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

func (m *memRepo) set(id uuid.UUID, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.appointments[id]
	a.Status = status
	m.appointments[id] = a
}

type fakeCalendar struct {
	windows    []availability.Window
	exceptions []availability.Exception
}

func (c *fakeCalendar) Snapshot(_ context.Context, doctorID uuid.UUID, from, to availability.Date) (availability.Schedule, error) {
	sched := availability.Schedule{Location: time.UTC, SlotLength: 30 * time.Minute}
	for _, w := range c.windows {
		if w.DoctorID == doctorID {
			sched.Windows = append(sched.Windows, w)
		}
	}
	for _, e := range c.exceptions {
		if e.DoctorID == doctorID && !e.Date.Before(from) && !to.Before(e.Date) {
			sched.Exceptions = append(sched.Exceptions, e)
		}
	}
	return sched, nil
}

func (c *fakeCalendar) Location() *time.Location   { return time.UTC }
func (c *fakeCalendar) SlotLength() time.Duration { return 30 * time.Minute }

type fakeDirectory map[uuid.UUID]access.Actor

func (d fakeDirectory) Resolve(_ context.Context, id uuid.UUID) (access.Actor, error) {
	a, ok := d[id]
	if !ok {
		return access.Actor{}, errors.New("actor not found")
	}
	return a, nil
}

// 2024-01-01 is a Monday, 2024-01-02 a Tuesday.
var (
	monday  = availability.Date{Year: 2024, Month: time.January, Day: 1}
	tuesday = monday.AddDays(1)
)

func at(d availability.Date, hh, mm int) time.Time {
	return d.At(hh*60+mm, time.UTC)
}

type fixture struct {
	svc     *Service
	repo    *memRepo
	admin   access.Actor
	doctor  access.Actor
	doctor2 access.Actor
	patient access.Actor
	other   access.Actor
}

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()
	mk := func(role access.Role) access.Actor {
		return access.Actor{ID: uuid.New(), Role: role, Approved: true}
	}
	f := &fixture{
		repo:    newMemRepo(),
		admin:   mk(access.RoleAdmin),
		doctor:  mk(access.RoleDoctor),
		doctor2: mk(access.RoleDoctor),
		patient: mk(access.RolePatient),
		other:   mk(access.RolePatient),
	}

	cal := &fakeCalendar{}
	for _, d := range []access.Actor{f.doctor, f.doctor2} {
		for _, wd := range []time.Weekday{time.Monday, time.Tuesday} {
			cal.windows = append(cal.windows, availability.Window{
				ID: uuid.New(), DoctorID: d.ID, Weekday: wd, StartMinute: 9 * 60, EndMinute: 12 * 60,
			})
		}
	}
	cal.exceptions = append(cal.exceptions, availability.Exception{
		ID: uuid.New(), DoctorID: f.doctor.ID, Date: tuesday, Kind: availability.ExceptionBlocked,
		StartMinute: 9 * 60, EndMinute: 10 * 60,
	})

	dir := fakeDirectory{}
	for _, a := range []access.Actor{f.admin, f.doctor, f.doctor2, f.patient, f.other} {
		dir[a.ID] = a
	}

	f.svc = NewService(f.repo, cal, dir, locker, nil, config.Config{MaxRangeDays: 31}, zerolog.Nop())
	return f
}

func (f *fixture) openStarts(t *testing.T, d availability.Date) []string {
	t.Helper()
	seq, err := f.svc.OpenSlots(context.Background(), f.patient, f.doctor.ID, d, d)
	require.NoError(t, err)
	var out []string
	for s := range seq {
		out = append(out, s.Start.Format("15:04"))
	}
	return out
}

func (f *fixture) bookAt(t *testing.T, by access.Actor, d availability.Date, hh, mm int) *Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), by, BookRequest{
		DoctorID: f.doctor.ID, PatientID: f.patient.ID, Start: at(d, hh, mm),
	})
	require.NoError(t, err)
	return appt
}

func TestOpenSlots_FreshMonday(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, f.openStarts(t, monday))
}

func TestBook_PatientGetsPendingAndSlotDisappears(t *testing.T) {
	f := newFixture(t, nil)

	appt := f.bookAt(t, f.patient, monday, 10, 0)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, at(monday, 10, 30), appt.End)
	assert.Equal(t, KindOPD, appt.Kind)
	assert.Equal(t, f.patient.ID, appt.CreatedBy)
	assert.NotContains(t, f.openStarts(t, monday), "10:00")
	assert.Equal(t, []events.Type{events.AppointmentBooked}, f.repo.eventTypes())
}

func TestBook_DoctorAndAdminGetConfirmed(t *testing.T) {
	f := newFixture(t, nil)

	byDoctor := f.bookAt(t, f.doctor, monday, 9, 0)
	byAdmin := f.bookAt(t, f.admin, monday, 9, 30)

	assert.Equal(t, StatusConfirmed, byDoctor.Status)
	assert.Equal(t, StatusConfirmed, byAdmin.Status)
}

func TestBook_ConfirmThenPatientCancelReopensSlot(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt := f.bookAt(t, f.patient, monday, 10, 0)

	confirmed, err := f.svc.Confirm(ctx, f.doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	cancelled, err := f.svc.Cancel(ctx, f.patient, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Contains(t, f.openStarts(t, monday), "10:00")
}

func TestCancel_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.bookAt(t, f.patient, monday, 10, 0)

	first, err := f.svc.Cancel(ctx, f.patient, appt.ID)
	require.NoError(t, err)
	eventsAfterFirst := len(f.repo.eventTypes())

	second, err := f.svc.Cancel(ctx, f.patient, appt.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, second.Status)
	assert.Equal(t, first.Version, second.Version)
	assert.Len(t, f.repo.eventTypes(), eventsAfterFirst, "no second side effect")

	_, err = f.svc.Confirm(ctx, f.doctor, appt.ID)
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusCancelled, se.Current)
	assert.Equal(t, StatusConfirmed, se.Requested)
}

func TestBook_BlockedSlotIsInvalid(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Book(context.Background(), f.patient, BookRequest{
		DoctorID: f.doctor.ID, PatientID: f.patient.ID, Start: at(tuesday, 9, 30),
	})

	var ie *InvalidSlotError
	require.ErrorAs(t, err, &ie)
	assert.Empty(t, f.repo.eventTypes())
}

func TestBook_InvalidSlots(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := map[string]BookRequest{
		"outside window":  {Start: at(monday, 13, 0)},
		"off grid":        {Start: at(monday, 9, 10)},
		"past window end": {Start: at(monday, 11, 30), Duration: time.Hour},
		"negative":        {Start: at(monday, 9, 0), Duration: -time.Minute},
		"sub-minute":      {Start: at(monday, 9, 0).Add(time.Second)},
		"missing start":   {},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			req.DoctorID, req.PatientID = f.doctor.ID, f.patient.ID
			_, err := f.svc.Book(ctx, f.patient, req)
			var ie *InvalidSlotError
			assert.ErrorAs(t, err, &ie)
		})
	}
}

func TestBook_DurationOverride(t *testing.T) {
	f := newFixture(t, nil)

	appt, err := f.svc.Book(context.Background(), f.doctor, BookRequest{
		DoctorID: f.doctor.ID, PatientID: f.patient.ID, Start: at(monday, 9, 0), Duration: time.Hour, Kind: KindConsultation,
	})
	require.NoError(t, err)
	assert.Equal(t, at(monday, 10, 0), appt.End)
	assert.Equal(t, []string{"10:00", "10:30", "11:00", "11:30"}, f.openStarts(t, monday))
}

func TestBook_ConflictWithExisting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.bookAt(t, f.patient, monday, 10, 0)

	_, err := f.svc.Book(ctx, f.doctor, BookRequest{
		DoctorID: f.doctor.ID, PatientID: f.other.ID, Start: at(monday, 9, 30), Duration: time.Hour,
	})

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.NotEqual(t, uuid.Nil, ce.ExistingID)
}

func TestBook_Authorization(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		actor access.Actor
		req   BookRequest
	}{
		{"patient for another patient", f.patient, BookRequest{DoctorID: f.doctor.ID, PatientID: f.other.ID, Start: at(monday, 9, 0)}},
		{"doctor for another doctor", f.doctor, BookRequest{DoctorID: f.doctor2.ID, PatientID: f.patient.ID, Start: at(monday, 9, 0)}},
		{"unapproved patient", access.Actor{ID: f.patient.ID, Role: access.RolePatient}, BookRequest{DoctorID: f.doctor.ID, PatientID: f.patient.ID, Start: at(monday, 9, 0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Book(ctx, tc.actor, tc.req)
			var fe *access.ForbiddenError
			assert.ErrorAs(t, err, &fe)
		})
	}
	assert.Empty(t, f.repo.eventTypes(), "denied requests never reach the store")
}

func TestBook_PartiesMustHaveRoles(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Book(context.Background(), f.admin, BookRequest{
		DoctorID: f.doctor.ID, PatientID: f.doctor2.ID, Start: at(monday, 9, 0),
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.Book(context.Background(), f.admin, BookRequest{
		DoctorID: f.patient.ID, PatientID: f.patient.ID, Start: at(monday, 9, 0),
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.Book(context.Background(), f.admin, BookRequest{
		DoctorID: f.doctor.ID, PatientID: f.patient.ID, Start: at(monday, 9, 0), Kind: "SURGERY",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBook_ConcurrentRaceExactlyOneWins(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lockers := map[string]redisclient.Locker{
		"store check only": redisclient.NoopLocker{},
		"with redis lock":  redisclient.NewRedisSlotLocker(client, 5*time.Second),
	}
	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, locker)

			const attempts = 8
			var (
				wg        sync.WaitGroup
				start     = make(chan struct{})
				mu        sync.Mutex
				wins      int
				conflicts int
			)
			for i := 0; i < attempts; i++ {
				wg.Add(1)
				go func(patient access.Actor) {
					defer wg.Done()
					<-start
					_, err := f.svc.Book(context.Background(), f.doctor, BookRequest{
						DoctorID: f.doctor.ID, PatientID: patient.ID, Start: at(monday, 10, 0),
					})
					mu.Lock()
					defer mu.Unlock()
					var ce *ConflictError
					switch {
					case err == nil:
						wins++
					case errors.As(err, &ce):
						conflicts++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}([]access.Actor{f.patient, f.other}[i%2])
			}
			close(start)
			wg.Wait()

			assert.Equal(t, 1, wins)
			assert.Equal(t, attempts-1, conflicts)
		})
	}
}

func TestNoOverlapProperty(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for hh := 9; hh < 12; hh++ {
		for _, mm := range []int{0, 30} {
			for _, dur := range []time.Duration{30 * time.Minute, time.Hour} {
				wg.Add(1)
				go func(start time.Time, dur time.Duration) {
					defer wg.Done()
					_, _ = f.svc.Book(ctx, f.doctor, BookRequest{
						DoctorID: f.doctor.ID, PatientID: f.patient.ID, Start: start, Duration: dur,
					})
				}(at(monday, hh, mm), dur)
			}
		}
	}
	wg.Wait()

	all, err := f.svc.List(ctx, f.admin, ListFilter{Limit: 100})
	require.NoError(t, err)
	require.NotEmpty(t, all)
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			if all[i].Status.Active() && all[j].Status.Active() {
				assert.False(t, all[i].Interval().Overlaps(all[j].Interval()),
					"%s overlaps %s", all[i].Start.Format("15:04"), all[j].Start.Format("15:04"))
			}
		}
	}
}

func TestConfirm_Rules(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.bookAt(t, f.patient, monday, 10, 0)

	_, err := f.svc.Confirm(ctx, f.patient, appt.ID)
	var fe *access.ForbiddenError
	require.ErrorAs(t, err, &fe, "patients cannot confirm")

	_, err = f.svc.Confirm(ctx, f.doctor2, appt.ID)
	require.ErrorIs(t, err, ErrAppointmentNotFound, "other doctors cannot see it")

	confirmed, err := f.svc.Confirm(ctx, f.admin, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, confirmed.Version)

	_, err = f.svc.Confirm(ctx, f.doctor, appt.ID)
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusConfirmed, se.Current)
	assert.Contains(t, se.Error(), "CONFIRMED")
}

func TestComplete_RequiresConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.bookAt(t, f.patient, monday, 10, 0)

	_, err := f.svc.Complete(ctx, f.doctor, appt.ID)
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusPending, se.Current)
	assert.Equal(t, StatusCompleted, se.Requested)

	_, err = f.svc.Confirm(ctx, f.doctor, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, f.patient, appt.ID)
	var fe *access.ForbiddenError
	require.ErrorAs(t, err, &fe)

	done, err := f.svc.Complete(ctx, f.doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	_, err = f.svc.Cancel(ctx, f.patient, appt.ID)
	require.ErrorAs(t, err, &se, "completed is terminal")

	assert.Equal(t, []events.Type{
		events.AppointmentBooked, events.AppointmentConfirmed, events.AppointmentCompleted,
	}, f.repo.eventTypes())
}

func TestReschedule(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.doctor, BookRequest{
		DoctorID: f.doctor.ID, PatientID: f.patient.ID, Start: at(monday, 9, 0), Duration: time.Hour,
	})
	require.NoError(t, err)
	blocker := f.bookAt(t, f.doctor, monday, 11, 0)

	moved, err := f.svc.Reschedule(ctx, f.patient, appt.ID, at(monday, 9, 30), 0)
	require.NoError(t, err, "overlapping its own interval is fine")
	assert.Equal(t, StatusRescheduled, moved.Status)
	assert.Equal(t, at(monday, 10, 30), moved.End)

	again, err := f.svc.Reschedule(ctx, f.doctor, appt.ID, at(tuesday, 10, 0), 30*time.Minute)
	require.NoError(t, err, "rescheduled appointments can move again")
	assert.Equal(t, at(tuesday, 10, 30), again.End)

	_, err = f.svc.Reschedule(ctx, f.doctor, appt.ID, at(monday, 11, 0), 0)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, blocker.ID, ce.ExistingID)

	_, err = f.svc.Reschedule(ctx, f.doctor, appt.ID, at(tuesday, 9, 0), 0)
	var ie *InvalidSlotError
	require.ErrorAs(t, err, &ie, "blocked on tuesday morning")

	_, err = f.svc.Reschedule(ctx, f.other, appt.ID, at(monday, 9, 0), 0)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestReschedule_PendingIsStateError(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.bookAt(t, f.patient, monday, 10, 0)

	_, err := f.svc.Reschedule(context.Background(), f.patient, appt.ID, at(monday, 11, 0), 0)

	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusPending, se.Current)
	assert.Equal(t, StatusRescheduled, se.Requested)
}

func TestStatusChange_LostRace(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	appt := f.bookAt(t, f.doctor, monday, 10, 0)

	f.repo.beforeUpdate = func(id uuid.UUID) { f.repo.set(id, StatusCompleted) }
	_, err := f.svc.Cancel(ctx, f.patient, appt.ID)
	var se *StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StatusCompleted, se.Current)
	assert.Equal(t, StatusCancelled, se.Requested)

	other := f.bookAt(t, f.doctor, monday, 11, 0)
	f.repo.beforeUpdate = func(id uuid.UUID) { f.repo.set(id, StatusCancelled) }
	got, err := f.svc.Cancel(ctx, f.patient, other.ID)
	require.NoError(t, err, "losing a cancel to another cancel is still a cancel")
	assert.Equal(t, StatusCancelled, got.Status)
}

func TestGetAndList_Scoped(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	mine := f.bookAt(t, f.patient, monday, 9, 0)
	theirs, err := f.svc.Book(ctx, f.other, BookRequest{DoctorID: f.doctor2.ID, PatientID: f.other.ID, Start: at(monday, 9, 0)})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.patient, theirs.ID)
	require.ErrorIs(t, err, ErrAppointmentNotFound)

	got, err := f.svc.Get(ctx, f.patient, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ID, got.ID)

	_, err = f.svc.Get(ctx, f.admin, uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	list, err := f.svc.List(ctx, f.patient, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	// A doctor asking for someone else's calendar still only sees their own.
	other := f.doctor2.ID
	list, err = f.svc.List(ctx, f.doctor, ListFilter{DoctorID: &other})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	list, err = f.svc.List(ctx, f.admin, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.svc.List(ctx, f.admin, ListFilter{Status: "LOST"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestLoad_HiddenMatchesMissing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	theirs, err := f.svc.Book(ctx, f.other, BookRequest{DoctorID: f.doctor2.ID, PatientID: f.other.ID, Start: at(monday, 9, 0)})
	require.NoError(t, err)

	for name, call := range map[string]func(id uuid.UUID) error{
		"get": func(id uuid.UUID) error {
			_, err := f.svc.Get(ctx, f.patient, id)
			return err
		},
		"cancel": func(id uuid.UUID) error {
			_, err := f.svc.Cancel(ctx, f.patient, id)
			return err
		},
		"confirm": func(id uuid.UUID) error {
			_, err := f.svc.Confirm(ctx, f.doctor, id)
			return err
		},
	} {
		t.Run(name, func(t *testing.T) {
			hidden, missing := call(theirs.ID), call(uuid.New())
			require.ErrorIs(t, hidden, ErrAppointmentNotFound)
			require.ErrorIs(t, missing, ErrAppointmentNotFound)
			assert.Equal(t, missing.Error(), hidden.Error())
		})
	}

	// No confirm permission at all is a role question, not an existence one.
	_, err = f.svc.Confirm(ctx, f.patient, uuid.New())
	var fe *access.ForbiddenError
	assert.ErrorAs(t, err, &fe)

	got, err := f.svc.Get(ctx, f.other, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status, "nothing was changed by the refused calls")
}

func TestOverview(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.bookAt(t, f.patient, monday, 9, 0)
	cancelled := f.bookAt(t, f.patient, monday, 10, 0)
	latestMonday := f.bookAt(t, f.patient, monday, 11, 0)
	_, err := f.svc.Cancel(ctx, f.patient, cancelled.ID)
	require.NoError(t, err)
	for _, start := range []time.Time{at(monday, 9, 0), at(tuesday, 10, 0)} {
		_, err := f.svc.Book(ctx, f.other, BookRequest{DoctorID: f.doctor2.ID, PatientID: f.other.ID, Start: start})
		require.NoError(t, err)
	}
	now := at(monday, 15, 0)

	ov, err := f.svc.Overview(ctx, f.admin, now)
	require.NoError(t, err)
	assert.Equal(t, 4, ov.Today, "every status counts")
	require.Len(t, ov.Recent, 5)
	assert.Equal(t, at(tuesday, 10, 0), ov.Recent[0].Start, "newest first")

	ov, err = f.svc.Overview(ctx, f.patient, now)
	require.NoError(t, err)
	assert.Equal(t, 3, ov.Today)
	require.Len(t, ov.Recent, 3)
	assert.Equal(t, latestMonday.ID, ov.Recent[0].ID)

	ov, err = f.svc.Overview(ctx, f.doctor2, at(tuesday, 8, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, ov.Today)
	assert.Len(t, ov.Recent, 2)

	_, err = f.svc.Overview(ctx, access.Actor{ID: f.patient.ID, Role: access.RolePatient}, now)
	var fe *access.ForbiddenError
	assert.ErrorAs(t, err, &fe)
}

func TestPatientsOf(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.bookAt(t, f.doctor, monday, 9, 0)
	f.bookAt(t, f.doctor, monday, 10, 0)

	patients, err := f.svc.PatientsOf(ctx, f.doctor, f.doctor.ID)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, 2, patients[0].Appointments)
	assert.Equal(t, at(monday, 10, 0), patients[0].LastStart)

	_, err = f.svc.PatientsOf(ctx, f.doctor2, f.doctor.ID)
	var fe *access.ForbiddenError
	assert.ErrorAs(t, err, &fe)

	_, err = f.svc.PatientsOf(ctx, f.patient, f.doctor.ID)
	assert.ErrorAs(t, err, &fe)
}

func TestOpenSlots_RangeLimits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.OpenSlots(ctx, f.patient, f.doctor.ID, tuesday, monday)
	assert.ErrorIs(t, err, availability.ErrInvalidRange)

	_, err = f.svc.OpenSlots(ctx, f.patient, f.doctor.ID, monday, monday.AddDays(31))
	assert.ErrorIs(t, err, availability.ErrInvalidRange)

	seq, err := f.svc.OpenSlots(ctx, f.patient, f.doctor.ID, monday, monday.AddDays(30))
	require.NoError(t, err)
	// Mondays and Tuesdays in January 2024 minus the blocked hour on the 2nd.
	assert.Len(t, slices.Collect(seq), 10*6-2)
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransition(StatusConfirmed))
	assert.False(t, StatusPending.CanTransition(StatusRescheduled))
	assert.False(t, StatusPending.CanTransition(StatusCompleted))
	assert.True(t, StatusRescheduled.CanTransition(StatusRescheduled))
	assert.False(t, StatusRescheduled.CanTransition(StatusConfirmed))
	for _, terminal := range []Status{StatusCancelled, StatusCompleted} {
		assert.True(t, terminal.Terminal())
		for _, to := range []Status{StatusPending, StatusConfirmed, StatusRescheduled, StatusCancelled, StatusCompleted} {
			assert.False(t, terminal.CanTransition(to))
		}
	}
}
