package availability

import (
	"iter"
	"sort"
	"time"
)

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

func (i Interval) Empty() bool {
	return !i.Start.Before(i.End)
}

// Slot is a bookable candidate interval of fixed length.
type Slot = Interval

// span is a free interval plus the grid origin its slots are aligned to.
type span struct {
	Interval
	anchor time.Time
}

// Schedule is a consistent snapshot of one doctor's recurring windows and the
// exceptions for the dates being evaluated.
type Schedule struct {
	Windows    []Window
	Exceptions []Exception
	Location   *time.Location
	SlotLength time.Duration
}

// day resolves the free intervals of one date before any bookings are
// removed: weekday windows, plus ADDED exceptions, minus BLOCKED exceptions.
func (s Schedule) day(d Date) []span {
	loc := s.location()

	var spans []span
	for _, w := range s.Windows {
		if w.Weekday != d.Weekday() {
			continue
		}
		start := d.At(w.StartMinute, loc)
		spans = append(spans, span{
			Interval: Interval{Start: start, End: d.At(w.EndMinute, loc)},
			anchor:   start,
		})
	}

	exceptions := s.exceptionsOn(d)

	for _, e := range exceptions {
		if e.Kind != ExceptionAdded {
			continue
		}
		added := Interval{Start: d.At(e.StartMinute, loc), End: d.At(e.EndMinute, loc)}
		pieces := []span{{Interval: added, anchor: added.Start}}
		for _, existing := range spans {
			pieces = subtract(pieces, existing.Interval)
		}
		spans = append(spans, pieces...)
	}

	for _, e := range exceptions {
		if e.Kind != ExceptionBlocked {
			continue
		}
		spans = subtract(spans, Interval{Start: d.At(e.StartMinute, loc), End: d.At(e.EndMinute, loc)})
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start.Before(spans[j].Start) })
	return spans
}

// OpenSlots lazily yields every open slot from the first date through the last
// (inclusive), skipping anything overlapping a booked interval. The sequence is
// computed from this snapshot only and must be recomputed after any booking.
func (s Schedule) OpenSlots(from, to Date, booked []Interval) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		if s.SlotLength <= 0 {
			return
		}
		for d := from; !to.Before(d); d = d.AddDays(1) {
			free := s.day(d)
			for _, b := range booked {
				free = subtract(free, b)
			}
			for _, sp := range free {
				for t := firstOnGrid(sp, s.SlotLength); !t.Add(s.SlotLength).After(sp.End); t = t.Add(s.SlotLength) {
					if !yield(Slot{Start: t, End: t.Add(s.SlotLength)}) {
						return
					}
				}
			}
		}
	}
}

// Bookable reports whether slot lies inside one free interval of its date with
// its start on that interval's slot grid. Bookings are not considered here;
// overlap with other appointments is the store's check.
func (s Schedule) Bookable(slot Interval) bool {
	if slot.Empty() || s.SlotLength <= 0 {
		return false
	}
	loc := s.location()
	start := slot.Start.In(loc)
	if DateOf(start) != DateOf(slot.End.In(loc).Add(-time.Nanosecond)) {
		return false
	}
	for _, sp := range s.day(DateOf(start)) {
		if !sp.Contains(slot) {
			continue
		}
		if slot.Start.Sub(sp.anchor)%s.SlotLength == 0 {
			return true
		}
	}
	return false
}

func (s Schedule) exceptionsOn(d Date) []Exception {
	var out []Exception
	for _, e := range s.Exceptions {
		if e.Date == d {
			out = append(out, e)
		}
	}
	return out
}

func (s Schedule) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// firstOnGrid is the earliest anchor + k*length that is not before sp.Start.
func firstOnGrid(sp span, length time.Duration) time.Time {
	if !sp.Start.After(sp.anchor) {
		return sp.anchor
	}
	offset := sp.Start.Sub(sp.anchor)
	steps := offset / length
	if offset%length != 0 {
		steps++
	}
	return sp.anchor.Add(steps * length)
}

// subtract removes cut from every span, truncating partial overlaps and
// splitting spans that contain it. Zero-length remainders are dropped.
func subtract(spans []span, cut Interval) []span {
	out := make([]span, 0, len(spans))
	for _, sp := range spans {
		if !sp.Overlaps(cut) {
			out = append(out, sp)
			continue
		}
		if sp.Start.Before(cut.Start) {
			out = append(out, span{Interval: Interval{Start: sp.Start, End: cut.Start}, anchor: sp.anchor})
		}
		if cut.End.Before(sp.End) {
			out = append(out, span{Interval: Interval{Start: cut.End, End: sp.End}, anchor: sp.anchor})
		}
	}
	return out
}
