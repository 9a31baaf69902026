package slots

import (
	"reflect"
	"testing"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
)

// 2025-01-06 is a Monday.
func day(d, hour, min int) time.Time {
	return time.Date(2025, 1, d, hour, min, 0, 0, time.UTC)
}

func startHours(s []models.Slot) []int {
	var hours []int
	for _, sl := range s {
		hours = append(hours, sl.Start.Hour())
	}
	return hours
}

func TestComputeFreeSlots_FullWeekday(t *testing.T) {
	got := ComputeFreeSlots(day(6, 0, 0), day(6, 23, 0), nil, models.TimeOfDayAny, 60, DefaultPolicy())

	want := []int{9, 10, 11, 12, 13, 14, 15, 16}
	if !reflect.DeepEqual(startHours(got), want) {
		t.Fatalf("expected start hours %v, got %v", want, startHours(got))
	}
	last := got[len(got)-1]
	if last.End.Hour() != 17 {
		t.Errorf("expected last slot to end at 17:00, got %v", last.End)
	}
	if got[0].Label != "Mon, Jan 6, 9:00 AM - 10:00 AM" {
		t.Errorf("unexpected label %q", got[0].Label)
	}
}

func TestComputeFreeSlots_BusyIntervalRemovesSlot(t *testing.T) {
	busy := []models.BusyInterval{{Start: day(6, 10, 0), End: day(6, 11, 0)}}
	got := ComputeFreeSlots(day(6, 0, 0), day(6, 23, 0), busy, models.TimeOfDayAny, 60, DefaultPolicy())

	want := []int{9, 11, 12, 13, 14, 15, 16}
	if !reflect.DeepEqual(startHours(got), want) {
		t.Fatalf("expected start hours %v, got %v", want, startHours(got))
	}
}

func TestComputeFreeSlots_HalfOpenBoundaries(t *testing.T) {
	// A busy interval ending exactly at 10:00 does not block the 10:00 slot,
	// and one starting exactly at 12:00 does not block the 11:00 slot.
	busy := []models.BusyInterval{
		{Start: day(6, 9, 30), End: day(6, 10, 0)},
		{Start: day(6, 12, 0), End: day(6, 13, 0)},
	}
	got := ComputeFreeSlots(day(6, 0, 0), day(6, 23, 0), busy, models.TimeOfDayAny, 60, DefaultPolicy())

	want := []int{10, 11, 13, 14, 15, 16}
	if !reflect.DeepEqual(startHours(got), want) {
		t.Fatalf("expected start hours %v, got %v", want, startHours(got))
	}
}

func TestComputeFreeSlots_UnsortedBusyInput(t *testing.T) {
	busy := []models.BusyInterval{
		{Start: day(6, 15, 0), End: day(6, 16, 0)},
		{Start: day(6, 9, 0), End: day(6, 10, 0)},
	}
	got := ComputeFreeSlots(day(6, 0, 0), day(6, 23, 0), busy, models.TimeOfDayAny, 60, DefaultPolicy())

	want := []int{10, 11, 12, 13, 14, 16}
	if !reflect.DeepEqual(startHours(got), want) {
		t.Fatalf("expected start hours %v, got %v", want, startHours(got))
	}
}

func TestComputeFreeSlots_SkipsWeekend(t *testing.T) {
	// Friday Jan 3 through Monday Jan 6.
	got := ComputeFreeSlots(day(3, 0, 0), day(6, 23, 0), nil, models.TimeOfDayAny, 60, DefaultPolicy())

	if len(got) != DefaultMaxSlots {
		t.Fatalf("expected %d slots, got %d", DefaultMaxSlots, len(got))
	}
	for _, s := range got {
		if wd := s.Start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Errorf("slot on weekend: %v", s.Start)
		}
	}
	// 8 on Friday then the first two on Monday.
	if got[8].Start != day(6, 9, 0) || got[9].Start != day(6, 10, 0) {
		t.Errorf("expected Monday 09:00 and 10:00 after Friday, got %v and %v", got[8].Start, got[9].Start)
	}
}

func TestComputeFreeSlots_MaxSlots(t *testing.T) {
	got := ComputeFreeSlots(day(6, 0, 0), day(10, 23, 0), nil, models.TimeOfDayAny, 60, DefaultPolicy())
	if len(got) != DefaultMaxSlots {
		t.Fatalf("expected %d slots, got %d", DefaultMaxSlots, len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i].Start.After(got[i-1].Start) {
			t.Fatalf("slots not in ascending order at %d", i)
		}
	}
}

func TestComputeFreeSlots_TimeOfDayFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter models.TimeOfDay
		want   []int
	}{
		{"morning", models.TimeOfDayMorning, []int{9, 10, 11}},
		{"afternoon", models.TimeOfDayAfternoon, []int{12, 13, 14, 15, 16}},
		{"any", models.TimeOfDayAny, []int{9, 10, 11, 12, 13, 14, 15, 16}},
		{"unset", "", []int{9, 10, 11, 12, 13, 14, 15, 16}},
		{"unknown", models.ParseTimeOfDay("midnight"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeFreeSlots(day(6, 0, 0), day(6, 23, 0), nil, tt.filter, 60, DefaultPolicy())
			if !reflect.DeepEqual(startHours(got), tt.want) {
				t.Errorf("expected %v, got %v", tt.want, startHours(got))
			}
		})
	}
}

// The scan never reaches 17:00, so the evening window cannot produce slots.
func TestComputeFreeSlots_EveningYieldsNothing(t *testing.T) {
	got := ComputeFreeSlots(day(6, 0, 0), day(10, 23, 0), nil, models.TimeOfDayEvening, 60, DefaultPolicy())
	if len(got) != 0 {
		t.Fatalf("expected no evening slots, got %d", len(got))
	}
}

func TestComputeFreeSlots_LongDurationEndHour(t *testing.T) {
	got := ComputeFreeSlots(day(6, 0, 0), day(6, 23, 0), nil, models.TimeOfDayAny, 120, DefaultPolicy())
	want := []int{9, 10, 11, 12, 13, 14, 15}
	if !reflect.DeepEqual(startHours(got), want) {
		t.Fatalf("expected %v, got %v", want, startHours(got))
	}
	for _, s := range got {
		if s.End.Hour() > DefaultCloseHour {
			t.Errorf("slot ends after close: %v", s.End)
		}
	}
}

func TestComputeFreeSlots_DefaultDuration(t *testing.T) {
	got := ComputeFreeSlots(day(6, 0, 0), day(6, 23, 0), nil, models.TimeOfDayAny, 0, Policy{})
	if len(got) != 8 {
		t.Fatalf("expected 8 slots with default duration and policy, got %d", len(got))
	}
	if got[0].End.Sub(got[0].Start) != time.Hour {
		t.Errorf("expected 1h default duration, got %v", got[0].End.Sub(got[0].Start))
	}
}

func TestComputeFreeSlots_Deterministic(t *testing.T) {
	busy := []models.BusyInterval{{Start: day(7, 13, 0), End: day(7, 14, 30)}}
	a := ComputeFreeSlots(day(6, 0, 0), day(8, 23, 0), busy, models.TimeOfDayAny, 45, DefaultPolicy())
	b := ComputeFreeSlots(day(6, 0, 0), day(8, 23, 0), busy, models.TimeOfDayAny, 45, DefaultPolicy())
	if !reflect.DeepEqual(a, b) {
		t.Fatal("identical inputs produced different output")
	}
}

func TestComputeFreeSlots_NeverOverlapsBusy(t *testing.T) {
	busy := []models.BusyInterval{
		{Start: day(6, 9, 15), End: day(6, 9, 45)},
		{Start: day(7, 11, 0), End: day(7, 15, 0)},
		{Start: day(8, 16, 30), End: day(8, 18, 0)},
	}
	got := ComputeFreeSlots(day(6, 0, 0), day(8, 23, 0), busy, models.TimeOfDayAny, 60, Policy{MaxSlots: 100})
	for _, s := range got {
		for _, b := range busy {
			if Overlaps(s.Start, s.End, b) {
				t.Errorf("slot %v overlaps busy %v-%v", s.Label, b.Start, b.End)
			}
		}
	}
}

func TestComputeFreeSlots_EmptyRange(t *testing.T) {
	// Saturday and Sunday only.
	got := ComputeFreeSlots(day(4, 0, 0), day(5, 23, 0), nil, models.TimeOfDayAny, 60, DefaultPolicy())
	if len(got) != 0 {
		t.Fatalf("expected no weekend slots, got %d", len(got))
	}
}

func TestTop(t *testing.T) {
	s := []models.Slot{{Label: "a"}, {Label: "b"}, {Label: "c"}, {Label: "d"}}
	if got := Top(s, 3); len(got) != 3 || got[2].Label != "c" {
		t.Errorf("unexpected Top(3): %+v", got)
	}
	if got := Top(s[:2], 3); len(got) != 2 {
		t.Errorf("expected 2 slots, got %d", len(got))
	}
}
