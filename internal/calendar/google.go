package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Default Google Calendar settings
const (
	DefaultCalendarID = "primary"
	DefaultTimeZone   = "America/New_York"
)

// Opts holds configuration options for the Google Calendar client.
type Opts struct {
	CalendarID    string
	TimeZone      string
	ClientOptions []option.ClientOption
}

// Option defines a configuration option for the Google Calendar client.
type Option func(*Opts)

// WithCalendarID sets the calendar events are read from and written to.
func WithCalendarID(id string) Option {
	return func(o *Opts) { o.CalendarID = id }
}

// WithTimeZone sets the IANA zone attached to created events.
func WithTimeZone(tz string) Option {
	return func(o *Opts) { o.TimeZone = tz }
}

// WithTokenSource authenticates requests with an OAuth2 token source.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *Opts) { o.ClientOptions = append(o.ClientOptions, option.WithTokenSource(ts)) }
}

// WithClientOptions passes raw client options, such as a test endpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *Opts) { o.ClientOptions = append(o.ClientOptions, opts...) }
}

// GoogleCalendar implements Service with the Google Calendar v3 API.
type GoogleCalendar struct {
	svc        *gcal.Service
	calendarID string
	timeZone   string
}

// Compile-time check that GoogleCalendar implements Service.
var _ Service = (*GoogleCalendar)(nil)

// NewGoogleCalendar creates a Google Calendar client. The calendar ID falls back
// to $BUSINESS_CALENDAR_ID and the zone to $CALENDAR_TIMEZONE.
func NewGoogleCalendar(ctx context.Context, opts ...Option) (*GoogleCalendar, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = os.Getenv("BUSINESS_CALENDAR_ID")
	}
	if cfg.CalendarID == "" {
		cfg.CalendarID = DefaultCalendarID
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = os.Getenv("CALENDAR_TIMEZONE")
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = DefaultTimeZone
	}
	slog.Debug("NewGoogleCalendar", "calendarID", cfg.CalendarID, "timeZone", cfg.TimeZone)

	svc, err := gcal.NewService(ctx, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleCalendar{svc: svc, calendarID: cfg.CalendarID, timeZone: cfg.TimeZone}, nil
}

func (g *GoogleCalendar) BusyIntervals(ctx context.Context, from, to time.Time) ([]models.BusyInterval, error) {
	req := &gcal.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: g.timeZone,
		Items:    []*gcal.FreeBusyRequestItem{{Id: g.calendarID}},
	}
	resp, err := g.svc.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		slog.Error("GoogleCalendar.BusyIntervals: freebusy query failed", "error", err)
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	cal, ok := resp.Calendars[g.calendarID]
	if !ok {
		return nil, nil
	}
	busy := make([]models.BusyInterval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid busy start %q: %w", p.Start, err)
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			return nil, fmt.Errorf("invalid busy end %q: %w", p.End, err)
		}
		busy = append(busy, models.BusyInterval{Start: start, End: end})
	}
	slog.Debug("GoogleCalendar.BusyIntervals", "from", from, "to", to, "busy", len(busy))
	return busy, nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, draft EventDraft) (*EventResult, error) {
	event := &gcal.Event{
		Summary:     draft.Summary,
		Description: draft.Description,
		Start:       &gcal.EventDateTime{DateTime: draft.Start.Format(time.RFC3339), TimeZone: g.timeZone},
		End:         &gcal.EventDateTime{DateTime: draft.End.Format(time.RFC3339), TimeZone: g.timeZone},
	}
	for _, email := range draft.Attendees {
		event.Attendees = append(event.Attendees, &gcal.EventAttendee{Email: email})
	}

	call := g.svc.Events.Insert(g.calendarID, event).Context(ctx)
	if draft.Conference {
		event.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{RequestId: uuid.NewString()},
		}
		call = call.ConferenceDataVersion(1)
	}
	created, err := call.Do()
	if err != nil {
		slog.Error("GoogleCalendar.CreateEvent: insert failed", "error", err, "summary", draft.Summary)
		return nil, fmt.Errorf("event insert failed: %w", err)
	}

	res := &EventResult{EventID: created.Id, Link: created.HtmlLink}
	if created.ConferenceData != nil {
		for _, ep := range created.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				res.ConferenceLink = ep.Uri
				break
			}
		}
	}
	slog.Info("GoogleCalendar.CreateEvent: event created", "eventID", res.EventID)
	return res, nil
}

func (g *GoogleCalendar) CancelEvent(ctx context.Context, eventID string) error {
	if err := g.svc.Events.Delete(g.calendarID, eventID).Context(ctx).Do(); err != nil {
		slog.Error("GoogleCalendar.CancelEvent: delete failed", "error", err, "eventID", eventID)
		return fmt.Errorf("event delete failed: %w", err)
	}
	slog.Info("GoogleCalendar.CancelEvent: event cancelled", "eventID", eventID)
	return nil
}
