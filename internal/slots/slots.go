// Package slots computes bookable appointment windows from calendar busy time.
//
// Everything here is pure: the same inputs always produce the same slots, so
// callers can test availability without a calendar backend.
package slots

import (
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
)

// Default business policy constants
const (
	// DefaultOpenHour is the first hour a slot may start.
	DefaultOpenHour = 9
	// DefaultCloseHour is the hour no slot may end after.
	DefaultCloseHour = 17
	// DefaultMaxSlots caps how many slots one computation returns.
	DefaultMaxSlots = 10
	// DefaultStep is the spacing between candidate start times.
	DefaultStep = time.Hour
	// DefaultDurationMinutes is used when a caller passes a non-positive duration.
	DefaultDurationMinutes = 60
)

const labelDayLayout = "Mon, Jan 2, 3:04 PM"
const labelTimeLayout = "3:04 PM"

// Policy describes business hours and scan limits.
type Policy struct {
	OpenHour  int
	CloseHour int
	MaxSlots  int
	Step      time.Duration
}

// DefaultPolicy returns the weekday 09:00-17:00 hourly policy.
func DefaultPolicy() Policy {
	return Policy{
		OpenHour:  DefaultOpenHour,
		CloseHour: DefaultCloseHour,
		MaxSlots:  DefaultMaxSlots,
		Step:      DefaultStep,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.CloseHour <= p.OpenHour {
		p.OpenHour, p.CloseHour = d.OpenHour, d.CloseHour
	}
	if p.MaxSlots <= 0 {
		p.MaxSlots = d.MaxSlots
	}
	if p.Step <= 0 {
		p.Step = d.Step
	}
	return p
}

// ComputeFreeSlots scans candidate start times between rangeStart and rangeEnd
// and returns the earliest free slots, at most policy.MaxSlots of them.
//
// Candidates start at OpenHour on rangeStart's date and stop before CloseHour on
// rangeEnd's date, both in rangeStart's location. Weekends are skipped, and a
// candidate at or past CloseHour moves the scan to the next day's OpenHour.
// A candidate is kept when it matches filter, its end hour is at most
// CloseHour on the same day, and it does not overlap any busy interval.
func ComputeFreeSlots(rangeStart, rangeEnd time.Time, busy []models.BusyInterval, filter models.TimeOfDay, durationMinutes int, policy Policy) []models.Slot {
	policy = policy.withDefaults()
	if durationMinutes <= 0 {
		durationMinutes = DefaultDurationMinutes
	}
	duration := time.Duration(durationMinutes) * time.Minute

	loc := rangeStart.Location()
	current := atHour(rangeStart, policy.OpenHour, loc)
	endOfSearch := atHour(rangeEnd.In(loc), policy.CloseHour, loc)

	var out []models.Slot
	for current.Before(endOfSearch) && len(out) < policy.MaxSlots {
		if isWeekend(current) || current.Hour() >= policy.CloseHour {
			current = atHour(current.AddDate(0, 0, 1), policy.OpenHour, loc)
			continue
		}

		if MatchesTimeOfDay(current, filter) {
			end := current.Add(duration)
			if fitsDay(current, end, policy.CloseHour) && !overlapsAny(current, end, busy) {
				out = append(out, models.Slot{Start: current, End: end, Label: FormatLabel(current, end)})
			}
		}
		current = current.Add(policy.Step)
	}
	return out
}

// MatchesTimeOfDay reports whether t's hour falls inside the filter's window.
// Windows are half-open: morning [8,12), afternoon [12,17), evening [17,20).
// An unrecognised filter matches nothing.
func MatchesTimeOfDay(t time.Time, filter models.TimeOfDay) bool {
	h := t.Hour()
	switch filter {
	case models.TimeOfDayAny, "":
		return true
	case models.TimeOfDayMorning:
		return h >= 8 && h < 12
	case models.TimeOfDayAfternoon:
		return h >= 12 && h < 17
	case models.TimeOfDayEvening:
		return h >= 17 && h < 20
	default:
		return false
	}
}

// Overlaps reports whether [start, end) intersects [b.Start, b.End).
func Overlaps(start, end time.Time, b models.BusyInterval) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// FormatLabel renders a slot as "Mon, Jan 6, 9:00 AM - 10:00 AM".
func FormatLabel(start, end time.Time) string {
	return start.Format(labelDayLayout) + " - " + end.Format(labelTimeLayout)
}

// Top returns at most n slots from the front of s.
func Top(s []models.Slot, n int) []models.Slot {
	if n < 0 {
		n = 0
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

func overlapsAny(start, end time.Time, busy []models.BusyInterval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b) {
			return true
		}
	}
	return false
}

// fitsDay keeps the end hour at or before closeHour and on the start's date,
// so a long duration cannot wrap into the small hours of the next day.
func fitsDay(start, end time.Time, closeHour int) bool {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	if sy != ey || sm != em || sd != ed {
		return false
	}
	return end.Hour() <= closeHour
}

func atHour(t time.Time, hour int, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, loc)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
