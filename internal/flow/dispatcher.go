// Package flow runs one customer turn: ask the model what to do, execute the
// tool it picked, record the exchange and reply.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/calendar"
	"github.com/aytida12/Customer-Interaction-Agent/internal/conversation"
	"github.com/aytida12/Customer-Interaction-Agent/internal/genai"
	"github.com/aytida12/Customer-Interaction-Agent/internal/messaging"
	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/aytida12/Customer-Interaction-Agent/internal/slots"
	"github.com/aytida12/Customer-Interaction-Agent/internal/store"
)

// Customer-facing replies.
const (
	DefaultReply     = "How can I help you today?"
	NoSlotsReply     = "Sorry, no slots available in that timeframe. Can you try different dates?"
	LeadSavedReply   = "Thanks! I've saved your info. A specialist will follow up soon."
	UnknownToolReply = "I'm not sure how to handle that. Let me connect you with a specialist."
	ToolErrorReply   = "Sorry, something went wrong. I'm connecting you with our team."
)

// shownSlots is how many held slots are listed in the reply.
const shownSlots = 2

// Status is the path a turn took.
type Status string

const (
	StatusReplied       Status = "replied"
	StatusBooked        Status = "booked"
	StatusToolError     Status = "tool_error"
	StatusModelError    Status = "model_error"
	StatusDeliveryError Status = "delivery_error"
)

// Outcome summarizes a handled message. Handle never fails; errors are
// carried here for logging and metrics.
type Outcome struct {
	Status Status
	Tool   string
	Reply  string
	Err    error
}

// Decider picks a text reply or a tool call for a turn.
type Decider interface {
	Decide(ctx context.Context, req genai.Request) (*genai.Decision, error)
}

// ReminderScheduler enqueues delayed jobs. store.JobRepo satisfies it.
type ReminderScheduler interface {
	EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error)
}

// Recorder observes dispatcher activity.
type Recorder interface {
	RecordOutcome(status, tool string)
	ObserveModelLatency(seconds float64)
}

type noopRecorder struct{}

func (noopRecorder) RecordOutcome(string, string)  {}
func (noopRecorder) ObserveModelLatency(float64) {}

// Opts holds configuration options for the Dispatcher.
type Opts struct {
	Source       string
	Location     *time.Location
	Policy       slots.Policy
	SystemPrompt string
	Reminders    ReminderScheduler
	Recorder     Recorder
	Clock        conversation.Clock
}

// Option defines a configuration option for the Dispatcher.
type Option func(*Opts)

// WithSource sets the lead source recorded for bookings, e.g. "whatsapp".
func WithSource(source string) Option {
	return func(o *Opts) { o.Source = source }
}

// WithLocation sets the business time zone used for dates and labels.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithSlotPolicy overrides business hours.
func WithSlotPolicy(p slots.Policy) Option {
	return func(o *Opts) { o.Policy = p }
}

// WithSystemPrompt replaces the default persona prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Opts) { o.SystemPrompt = prompt }
}

// WithReminders enables day-before appointment reminders.
func WithReminders(r ReminderScheduler) Option {
	return func(o *Opts) { o.Reminders = r }
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Opts) { o.Recorder = r }
}

// WithClock injects the time source.
func WithClock(c conversation.Clock) Option {
	return func(o *Opts) { o.Clock = c }
}

// Dispatcher handles inbound customer messages. It keeps no state of its
// own between calls; history and holds live in the conversation store.
type Dispatcher struct {
	model    Decider
	convo    conversation.Store
	cal      calendar.Service
	leads    store.LeadStore
	sender   messaging.Sender
	notifier *messaging.Notifier
	cfg      Opts
}

// NewDispatcher wires a dispatcher to its collaborators.
func NewDispatcher(model Decider, convo conversation.Store, cal calendar.Service, leads store.LeadStore, sender messaging.Sender, opts ...Option) *Dispatcher {
	cfg := Opts{
		Source:       models.DefaultLeadSource,
		Location:     time.UTC,
		Policy:       slots.DefaultPolicy(),
		SystemPrompt: SystemPrompt,
		Recorder:     noopRecorder{},
		Clock:        conversation.SystemClock{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewDispatcher", "source", cfg.Source, "location", cfg.Location.String(), "reminders", cfg.Reminders != nil)
	return &Dispatcher{
		model:    model,
		convo:    convo,
		cal:      cal,
		leads:    leads,
		sender:   sender,
		notifier: messaging.NewNotifier(sender, cfg.Location),
		cfg:      cfg,
	}
}

// Handle processes one inbound message from customerID.
func (d *Dispatcher) Handle(ctx context.Context, customerID, text string) Outcome {
	out := d.handle(ctx, customerID, text)
	d.cfg.Recorder.RecordOutcome(string(out.Status), out.Tool)
	if out.Err != nil {
		slog.Error("Dispatcher.Handle: turn failed", "phone", customerID, "status", out.Status, "tool", out.Tool, "error", out.Err)
	} else {
		slog.Info("Dispatcher.Handle: turn complete", "phone", customerID, "status", out.Status, "tool", out.Tool)
	}
	return out
}

func (d *Dispatcher) handle(ctx context.Context, customerID, text string) Outcome {
	req := genai.Request{
		SystemPrompt: d.cfg.SystemPrompt,
		History:      d.convo.History(customerID),
		UserText:     text,
		Tools:        Definitions(),
		Context:      []string{dateContext(d.cfg.Clock.Now(), d.cfg.Location)},
	}
	if held, ok := d.convo.PendingHold(customerID); ok {
		req.Context = append(req.Context, holdContext(held))
	}

	started := time.Now()
	decision, err := d.model.Decide(ctx, req)
	d.cfg.Recorder.ObserveModelLatency(time.Since(started).Seconds())
	if err != nil {
		if escErr := d.notifier.SendEscalation(ctx, customerID); escErr != nil {
			slog.Warn("Dispatcher.handle: escalation after model failure not sent", "phone", customerID, "error", escErr)
		}
		return Outcome{Status: StatusModelError, Err: fmt.Errorf("%w: %v", ErrModelUnavailable, err)}
	}

	d.convo.AppendTurn(customerID, models.RoleUser, text)

	out := Outcome{Status: StatusReplied}
	if decision.ToolCall != nil {
		out.Tool = decision.ToolCall.Name
		res, err := d.runTool(ctx, customerID, text, *decision.ToolCall)
		if err != nil {
			out.Status = StatusToolError
			out.Err = &ToolError{Tool: out.Tool, Err: err}
			out.Reply = ToolErrorReply
			if escErr := d.notifier.SendEscalation(ctx, customerID); escErr != nil {
				slog.Warn("Dispatcher.handle: escalation after tool failure not sent", "phone", customerID, "error", escErr)
			}
		} else {
			out.Reply = res.Reply
			if res.Booked {
				out.Status = StatusBooked
			}
		}
	} else {
		out.Reply = decision.Text
		if strings.TrimSpace(out.Reply) == "" {
			out.Reply = DefaultReply
		}
	}

	d.convo.AppendTurn(customerID, models.RoleAssistant, out.Reply)

	if out.Status == StatusBooked {
		return out
	}
	if err := d.sender.SendMessage(ctx, customerID, messaging.Truncate(out.Reply)); err != nil {
		if out.Status != StatusToolError {
			if escErr := d.notifier.SendEscalation(ctx, customerID); escErr != nil {
				slog.Warn("Dispatcher.handle: escalation after delivery failure not sent", "phone", customerID, "error", escErr)
			}
		}
		out.Err = errors.Join(out.Err, fmt.Errorf("reply delivery failed: %w", err))
		out.Status = StatusDeliveryError
	}
	return out
}

func (d *Dispatcher) runTool(ctx context.Context, customerID, text string, call genai.ToolCall) (ToolResult, error) {
	slog.Info("Dispatcher.runTool: tool requested", "phone", customerID, "tool", call.Name)
	tool, err := ParseTool(call, d.cfg.Location)
	if err != nil {
		return ToolResult{}, err
	}
	return tool.accept(ctx, &executor{d: d, customerID: customerID, text: text})
}

// executor runs tools on behalf of one customer turn.
type executor struct {
	d          *Dispatcher
	customerID string
	text       string
}

var _ ToolVisitor = (*executor)(nil)

func (e *executor) VisitLookupAvailability(ctx context.Context, t LookupAvailability) (ToolResult, error) {
	found, err := calendar.LookupAvailability(ctx, e.d.cal, calendar.Query{
		From:            t.From,
		To:              t.To,
		TimeOfDay:       t.TimeOfDay,
		DurationMinutes: t.DurationMinutes,
	}, e.d.cfg.Policy)
	if err != nil {
		return ToolResult{}, err
	}
	slog.Debug("executor.VisitLookupAvailability", "phone", e.customerID, "slots", len(found), "time_of_day", t.TimeOfDay)
	if len(found) == 0 {
		return ToolResult{Reply: NoSlotsReply}, nil
	}
	e.d.convo.SetPendingHold(e.customerID, found)
	return ToolResult{Reply: slotsReply(found)}, nil
}

func (e *executor) VisitBookAppointment(ctx context.Context, t BookAppointment) (ToolResult, error) {
	if t.SlotNumber > 0 {
		held, ok := e.d.convo.PendingHold(e.customerID)
		if !ok || t.SlotNumber > len(held) {
			return ToolResult{}, fmt.Errorf("%w: slot %d", ErrSlotNotHeld, t.SlotNumber)
		}
		t.Start, t.End = held[t.SlotNumber-1].Start, held[t.SlotNumber-1].End
	}
	phone := t.Phone
	if phone == "" {
		phone = e.customerID
	}

	booking := calendar.Booking{
		CustomerName: t.CustomerName,
		Phone:        phone,
		Email:        t.Email,
		Address:      t.Address,
		ServiceType:  t.ServiceType,
		Notes:        t.Notes,
		Start:        t.Start,
		End:          t.End,
	}
	event, err := e.d.cal.CreateEvent(ctx, booking.Draft())
	if err != nil {
		return ToolResult{}, fmt.Errorf("failed to create event: %w", err)
	}

	lead := models.Lead{
		CustomerName:  t.CustomerName,
		Phone:         e.customerID,
		Email:         t.Email,
		ServiceType:   t.ServiceType,
		Address:       t.Address,
		Message:       e.text,
		Source:        e.d.cfg.Source,
		AgentNotes:    "Appointment booked: " + t.ServiceType,
		AppointmentID: event.EventID,
	}
	if err := e.d.leads.AppendLead(ctx, lead); err != nil {
		return ToolResult{}, fmt.Errorf("failed to save lead for event %s: %w", event.EventID, err)
	}
	if err := e.d.leads.UpdateLeadStatus(ctx, e.customerID, models.LeadStatusBooked); err != nil {
		return ToolResult{}, fmt.Errorf("failed to mark lead booked: %w", err)
	}
	e.d.convo.ClearPendingHold(e.customerID)

	if err := e.d.notifier.SendConfirmation(ctx, e.customerID, t.ServiceType, t.Start); err != nil {
		return ToolResult{}, err
	}
	e.d.scheduleReminder(ctx, e.customerID, t.ServiceType, event.EventID, t.Start)

	link := event.Link
	if link == "" {
		link = "Calendar confirmed"
	}
	slog.Info("executor.VisitBookAppointment: booked", "phone", e.customerID, "event_id", event.EventID, "start", t.Start)
	return ToolResult{
		Reply:  fmt.Sprintf("Booked! Your %s is scheduled. Event: %s. We'll remind you 24 hours before.", t.ServiceType, link),
		Booked: true,
	}, nil
}

func (e *executor) VisitSaveLead(ctx context.Context, t SaveLead) (ToolResult, error) {
	lead := t.Lead
	if lead.Phone == "" {
		lead.Phone = e.customerID
	}
	if lead.Source == "" {
		lead.Source = e.d.cfg.Source
	}
	if err := e.d.leads.AppendLead(ctx, lead); err != nil {
		return ToolResult{}, fmt.Errorf("failed to save lead: %w", err)
	}
	return ToolResult{Reply: LeadSavedReply}, nil
}

func (e *executor) VisitSendMessage(ctx context.Context, t SendMessage) (ToolResult, error) {
	return ToolResult{Reply: t.Body}, nil
}

func (e *executor) VisitUnknownTool(ctx context.Context, t UnknownTool) (ToolResult, error) {
	slog.Warn("executor.VisitUnknownTool: model requested an undeclared tool", "phone", e.customerID, "tool", t.Name)
	return ToolResult{Reply: UnknownToolReply}, nil
}

// slotsReply lists up to two held slots and how to pick one.
func slotsReply(held []models.Slot) string {
	shown := slots.Top(held, shownSlots)
	var b strings.Builder
	b.WriteString("Great! I found these times:")
	for i, s := range shown {
		fmt.Fprintf(&b, "\n%d) %s", i+1, s.Label)
	}
	if len(shown) == 1 {
		b.WriteString("\nReply with \"Book 1\" to confirm.")
	} else {
		b.WriteString("\nReply with \"Book 1\" or \"Book 2\" to confirm.")
	}
	return b.String()
}
