package availability

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-01 is a Monday.
var monday = Date{Year: 2024, Month: time.January, Day: 1}

func at(d Date, hh, mm int) time.Time {
	return d.At(hh*60+mm, time.UTC)
}

func mondayMorning(doctorID uuid.UUID) Schedule {
	return Schedule{
		Windows: []Window{{
			ID:          uuid.New(),
			DoctorID:    doctorID,
			Weekday:     time.Monday,
			StartMinute: 9 * 60,
			EndMinute:   12 * 60,
		}},
		Location:   time.UTC,
		SlotLength: 30 * time.Minute,
	}
}

func starts(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.Format("15:04"))
	}
	return out
}

func TestOpenSlots_MondayWindow(t *testing.T) {
	sched := mondayMorning(uuid.New())

	slots := slices.Collect(sched.OpenSlots(monday, monday, nil))

	require.Len(t, slots, 6)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, starts(slots))
	for _, s := range slots {
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
	}
}

func TestOpenSlots_ExcludesBooked(t *testing.T) {
	sched := mondayMorning(uuid.New())
	booked := []Interval{{Start: at(monday, 10, 0), End: at(monday, 10, 30)}}

	slots := slices.Collect(sched.OpenSlots(monday, monday, booked))

	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:00", "11:30"}, starts(slots))
}

func TestOpenSlots_OffGridBookingKeepsAlignment(t *testing.T) {
	sched := mondayMorning(uuid.New())
	booked := []Interval{{Start: at(monday, 9, 0), End: at(monday, 9, 45)}}

	slots := slices.Collect(sched.OpenSlots(monday, monday, booked))

	assert.Equal(t, []string{"10:00", "10:30", "11:00", "11:30"}, starts(slots))
}

func TestOpenSlots_BlockedPartialOverlapTruncates(t *testing.T) {
	sched := mondayMorning(uuid.New())
	sched.Exceptions = []Exception{{
		Date: monday, Kind: ExceptionBlocked, StartMinute: 11 * 60, EndMinute: 13 * 60,
	}}

	slots := slices.Collect(sched.OpenSlots(monday, monday, nil))

	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, starts(slots))
}

func TestOpenSlots_BlockedMiddleSplits(t *testing.T) {
	sched := mondayMorning(uuid.New())
	sched.Exceptions = []Exception{{
		Date: monday, Kind: ExceptionBlocked, StartMinute: 10*60 + 15, EndMinute: 10*60 + 45,
	}}

	slots := slices.Collect(sched.OpenSlots(monday, monday, nil))

	assert.Equal(t, []string{"09:00", "09:30", "11:00", "11:30"}, starts(slots))
}

func TestOpenSlots_AddedException(t *testing.T) {
	sched := mondayMorning(uuid.New())
	sched.Exceptions = []Exception{{
		Date: monday, Kind: ExceptionAdded, StartMinute: 11 * 60, EndMinute: 13*60 + 15,
	}}

	slots := slices.Collect(sched.OpenSlots(monday, monday, nil))

	// 11:00-12:00 is already a window; the addition contributes 12:00 onwards
	// on its own grid anchored at 11:00.
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30", "12:00", "12:30"}, starts(slots))
}

func TestOpenSlots_AddedOnDayWithoutWindows(t *testing.T) {
	sched := mondayMorning(uuid.New())
	sunday := monday.AddDays(-1)
	sched.Exceptions = []Exception{{
		Date: sunday, Kind: ExceptionAdded, StartMinute: 8*60 + 10, EndMinute: 9 * 60,
	}}

	slots := slices.Collect(sched.OpenSlots(sunday, sunday, nil))

	assert.Equal(t, []string{"08:10"}, starts(slots))
}

func TestOpenSlots_ZeroLengthRemainderYieldsNothing(t *testing.T) {
	sched := mondayMorning(uuid.New())
	booked := []Interval{
		{Start: at(monday, 9, 0), End: at(monday, 11, 50)},
	}

	slots := slices.Collect(sched.OpenSlots(monday, monday, booked))

	assert.Empty(t, slots)
}

func TestOpenSlots_MultiDayAndEarlyStop(t *testing.T) {
	sched := mondayMorning(uuid.New())
	nextMonday := monday.AddDays(7)

	all := slices.Collect(sched.OpenSlots(monday, nextMonday, nil))
	assert.Len(t, all, 12)

	var first []Slot
	for s := range sched.OpenSlots(monday, nextMonday, nil) {
		first = append(first, s)
		if len(first) == 2 {
			break
		}
	}
	assert.Len(t, first, 2)
}

func TestOpenSlots_FacilityTimeZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	sched := mondayMorning(uuid.New())
	sched.Location = loc

	slots := slices.Collect(sched.OpenSlots(monday, monday, nil))
	require.Len(t, slots, 6)
	assert.Equal(t, 14, slots[0].Start.UTC().Hour())
}

func TestBookable(t *testing.T) {
	sched := mondayMorning(uuid.New())
	sched.Exceptions = []Exception{{
		Date: monday, Kind: ExceptionBlocked, StartMinute: 11 * 60, EndMinute: 12 * 60,
	}}

	tests := []struct {
		name string
		slot Interval
		want bool
	}{
		{"on grid", Interval{at(monday, 9, 30), at(monday, 10, 0)}, true},
		{"longer override on grid", Interval{at(monday, 9, 0), at(monday, 10, 0)}, true},
		{"off grid", Interval{at(monday, 9, 15), at(monday, 9, 45)}, false},
		{"outside window", Interval{at(monday, 8, 0), at(monday, 8, 30)}, false},
		{"runs past window", Interval{at(monday, 10, 30), at(monday, 11, 30)}, false},
		{"inside blocked", Interval{at(monday, 11, 0), at(monday, 11, 30)}, false},
		{"wrong weekday", Interval{at(monday.AddDays(1), 9, 0), at(monday.AddDays(1), 9, 30)}, false},
		{"inverted", Interval{at(monday, 10, 0), at(monday, 9, 30)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sched.Bookable(tt.slot))
		})
	}
}

func TestWindowValidate(t *testing.T) {
	doctor := uuid.New()
	assert.NoError(t, Window{DoctorID: doctor, Weekday: time.Monday, StartMinute: 0, EndMinute: 1440}.Validate())
	assert.ErrorIs(t, Window{DoctorID: doctor, Weekday: time.Monday, StartMinute: 600, EndMinute: 600}.Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, Window{DoctorID: doctor, Weekday: 7, StartMinute: 0, EndMinute: 60}.Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, Window{Weekday: time.Monday, StartMinute: 0, EndMinute: 60}.Validate(), ErrInvalidWindow)
	assert.ErrorIs(t, Window{DoctorID: doctor, StartMinute: -5, EndMinute: 60}.Validate(), ErrInvalidWindow)
}

func TestWindowOverlaps(t *testing.T) {
	a := Window{Weekday: time.Monday, StartMinute: 540, EndMinute: 720}
	assert.True(t, a.Overlaps(Window{Weekday: time.Monday, StartMinute: 700, EndMinute: 800}))
	assert.False(t, a.Overlaps(Window{Weekday: time.Monday, StartMinute: 720, EndMinute: 800}))
	assert.False(t, a.Overlaps(Window{Weekday: time.Tuesday, StartMinute: 540, EndMinute: 720}))
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2024-02-28")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01", d.AddDays(2).String())
	assert.Equal(t, time.Wednesday, d.Weekday())
	assert.Equal(t, 2, d.DaysUntil(d.AddDays(2)))
	assert.True(t, d.Before(d.AddDays(1)))

	_, err = ParseDate("28/02/2024")
	assert.ErrorIs(t, err, ErrInvalidRange)

	b, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"2024-02-28"`, string(b))

	var back Date
	require.NoError(t, back.UnmarshalJSON(b))
	assert.Equal(t, d, back)
}
