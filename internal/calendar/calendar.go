// Package calendar reads busy time from and books events into the business calendar.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/aytida12/Customer-Interaction-Agent/internal/slots"
)

// OfferedSlots is how many computed slots a lookup keeps.
const OfferedSlots = 3

// ErrInvalidRange is returned when a lookup ends before it starts.
var ErrInvalidRange = errors.New("availability range ends before it starts")

// BusyReader returns the occupied intervals in [from, to).
type BusyReader interface {
	BusyIntervals(ctx context.Context, from, to time.Time) ([]models.BusyInterval, error)
}

// Service is the calendar backend the agent books against.
type Service interface {
	BusyReader
	CreateEvent(ctx context.Context, draft EventDraft) (*EventResult, error)
	CancelEvent(ctx context.Context, eventID string) error
}

// EventDraft is an event to create.
type EventDraft struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Attendees   []string
	// Conference requests a video meeting link alongside the event.
	Conference bool
}

// EventResult identifies a created event.
type EventResult struct {
	EventID        string `json:"event_id"`
	Link           string `json:"link,omitempty"`
	ConferenceLink string `json:"conference_link,omitempty"`
}

// Booking describes the appointment a customer asked for.
type Booking struct {
	CustomerName string
	Phone        string
	Email        string
	Address      string
	ServiceType  string
	Notes        string
	Start        time.Time
	End          time.Time
}

// Draft turns a booking into the calendar event stored for it.
func (b Booking) Draft() EventDraft {
	var desc strings.Builder
	fmt.Fprintf(&desc, "Phone: %s\n", b.Phone)
	fmt.Fprintf(&desc, "Email: %s\n", b.Email)
	fmt.Fprintf(&desc, "Address: %s\n", b.Address)
	fmt.Fprintf(&desc, "Notes: %s", b.Notes)

	d := EventDraft{
		Summary:     fmt.Sprintf("%s - %s", b.ServiceType, b.CustomerName),
		Description: desc.String(),
		Start:       b.Start,
		End:         b.End,
		Conference:  true,
	}
	if b.Email != "" {
		d.Attendees = []string{b.Email}
	}
	return d
}

// Query is an availability lookup.
type Query struct {
	From            time.Time
	To              time.Time
	TimeOfDay       models.TimeOfDay
	DurationMinutes int
}

// LookupAvailability fetches busy time for the query range and returns the
// first OfferedSlots free slots.
func LookupAvailability(ctx context.Context, cal BusyReader, q Query, policy slots.Policy) ([]models.Slot, error) {
	if q.To.Before(q.From) {
		return nil, ErrInvalidRange
	}
	// Busy time is fetched to the end of the last scanned day.
	y, m, d := q.To.In(q.From.Location()).Date()
	busyTo := time.Date(y, m, d, 23, 59, 59, 0, q.From.Location())

	busy, err := cal.BusyIntervals(ctx, q.From, busyTo)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch busy intervals: %w", err)
	}
	free := slots.ComputeFreeSlots(q.From, q.To, busy, q.TimeOfDay, q.DurationMinutes, policy)
	return slots.Top(free, OfferedSlots), nil
}
