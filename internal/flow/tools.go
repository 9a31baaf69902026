package flow

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/genai"
	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/aytida12/Customer-Interaction-Agent/internal/slots"
)

// Tool names declared to the model.
const (
	ToolLookupAvailability = "lookup_availability"
	ToolBookAppointment    = "book_appointment"
	ToolSaveLead           = "save_lead"
	ToolSendMessage        = "send_message"
)

const dateLayout = "2006-01-02"

// localTimeLayouts are accepted for times the model sends without an offset.
var localTimeLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

// Definitions returns the tool schema offered on every completion.
func Definitions() []genai.Tool {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	return []genai.Tool{
		{
			Name:        ToolLookupAvailability,
			Description: "Find open appointment slots in a date range. Call this before proposing any time to the customer.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service_type": str("Service requested, e.g. plumbing or HVAC repair"),
					"start_date":   str("First day to search, YYYY-MM-DD"),
					"end_date":     str("Last day to search, YYYY-MM-DD"),
					"time_of_day": map[string]any{
						"type":        "string",
						"enum":        []string{"morning", "afternoon", "evening", "any"},
						"description": "Preferred part of the day",
					},
					"duration_minutes": map[string]any{
						"type":        "integer",
						"description": "Appointment length in minutes, default 60",
					},
				},
				"required": []string{"start_date", "end_date"},
			},
		},
		{
			Name:        ToolBookAppointment,
			Description: "Book a confirmed slot on the business calendar. Only call after the customer explicitly confirms.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customer_name": str("Customer's full name"),
					"phone":         str("Customer phone number"),
					"email":         str("Customer email, optional"),
					"service_type":  str("Service to perform"),
					"start_time":    str("Appointment start, ISO 8601"),
					"end_time":      str("Appointment end, ISO 8601"),
					"slot_number": map[string]any{
						"type":        "integer",
						"description": "Number of a slot on hold, used instead of start_time and end_time",
					},
					"address": str("Service address or zip code"),
					"notes":   str("Anything the technician should know"),
				},
				"required": []string{"customer_name", "service_type"},
			},
		},
		{
			Name:        ToolSaveLead,
			Description: "Save the customer's details so a specialist can follow up.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"customer_name": str("Customer's full name"),
					"phone":         str("Customer phone number"),
					"email":         str("Customer email"),
					"service_type":  str("Service of interest"),
					"address":       str("Service address or zip code"),
					"message":       str("Summary of the request"),
					"source":        str("Lead source, defaults to the messaging channel"),
					"agent_notes":   str("Internal notes for the team"),
				},
				"required": []string{"customer_name"},
			},
		},
		{
			Name:        ToolSendMessage,
			Description: "Send a plain text message to the customer.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"body": str("Message text"),
				},
				"required": []string{"body"},
			},
		},
	}
}

// ToolResult is what a successful tool execution contributes to the turn.
type ToolResult struct {
	Reply string
	// Booked suppresses the generic reply send; a confirmation was sent instead.
	Booked bool
}

// ToolVisitor executes each kind of tool call. Adding a tool adds a method
// here, so every executor must handle it before the package compiles.
type ToolVisitor interface {
	VisitLookupAvailability(ctx context.Context, t LookupAvailability) (ToolResult, error)
	VisitBookAppointment(ctx context.Context, t BookAppointment) (ToolResult, error)
	VisitSaveLead(ctx context.Context, t SaveLead) (ToolResult, error)
	VisitSendMessage(ctx context.Context, t SendMessage) (ToolResult, error)
	VisitUnknownTool(ctx context.Context, t UnknownTool) (ToolResult, error)
}

// Tool is a parsed tool call. The set of implementations is closed.
type Tool interface {
	ToolName() string
	accept(ctx context.Context, v ToolVisitor) (ToolResult, error)
}

// LookupAvailability asks for open slots between two dates.
type LookupAvailability struct {
	ServiceType     string
	From            time.Time
	To              time.Time
	TimeOfDay       models.TimeOfDay
	DurationMinutes int
}

// BookAppointment books either explicit times or a held slot.
type BookAppointment struct {
	CustomerName string
	Phone        string
	Email        string
	ServiceType  string
	Address      string
	Notes        string
	Start        time.Time
	End          time.Time
	// SlotNumber is 1-based into the pending hold; zero means Start/End are set.
	SlotNumber int
}

// SaveLead records a lead without booking.
type SaveLead struct {
	Lead models.Lead
}

// SendMessage replies with fixed text.
type SendMessage struct {
	Body string
}

// UnknownTool is any tool name the agent does not offer.
type UnknownTool struct {
	Name string
}

func (LookupAvailability) ToolName() string { return ToolLookupAvailability }
func (BookAppointment) ToolName() string    { return ToolBookAppointment }
func (SaveLead) ToolName() string           { return ToolSaveLead }
func (SendMessage) ToolName() string        { return ToolSendMessage }
func (u UnknownTool) ToolName() string      { return u.Name }

func (t LookupAvailability) accept(ctx context.Context, v ToolVisitor) (ToolResult, error) {
	return v.VisitLookupAvailability(ctx, t)
}

func (t BookAppointment) accept(ctx context.Context, v ToolVisitor) (ToolResult, error) {
	return v.VisitBookAppointment(ctx, t)
}

func (t SaveLead) accept(ctx context.Context, v ToolVisitor) (ToolResult, error) {
	return v.VisitSaveLead(ctx, t)
}

func (t SendMessage) accept(ctx context.Context, v ToolVisitor) (ToolResult, error) {
	return v.VisitSendMessage(ctx, t)
}

func (t UnknownTool) accept(ctx context.Context, v ToolVisitor) (ToolResult, error) {
	return v.VisitUnknownTool(ctx, t)
}

type lookupArgs struct {
	ServiceType     string `json:"service_type"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	TimeOfDay       string `json:"time_of_day"`
	DurationMinutes int    `json:"duration_minutes"`
}

type bookArgs struct {
	CustomerName string `json:"customer_name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	ServiceType  string `json:"service_type"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	SlotNumber   int    `json:"slot_number"`
	Address      string `json:"address"`
	Notes        string `json:"notes"`
}

type leadArgs struct {
	CustomerName string `json:"customer_name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	ServiceType  string `json:"service_type"`
	Address      string `json:"address"`
	Message      string `json:"message"`
	Source       string `json:"source"`
	AgentNotes   string `json:"agent_notes"`
}

type messageArgs struct {
	Body string `json:"body"`
}

// ParseTool decodes a model tool call into its variant. Dates without an
// offset are read in loc. Decoding failures and missing required fields
// wrap ErrInvalidArguments.
func ParseTool(call genai.ToolCall, loc *time.Location) (Tool, error) {
	if loc == nil {
		loc = time.UTC
	}
	raw := call.Arguments
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	switch call.Name {
	case ToolLookupAvailability:
		var a lookupArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, invalidArgs("%v", err)
		}
		if a.StartDate == "" || a.EndDate == "" {
			return nil, invalidArgs("start_date and end_date are required")
		}
		from, err := time.ParseInLocation(dateLayout, a.StartDate, loc)
		if err != nil {
			return nil, invalidArgs("start_date %q: %v", a.StartDate, err)
		}
		to, err := time.ParseInLocation(dateLayout, a.EndDate, loc)
		if err != nil {
			return nil, invalidArgs("end_date %q: %v", a.EndDate, err)
		}
		if to.Before(from) {
			return nil, invalidArgs("end_date %s is before start_date %s", a.EndDate, a.StartDate)
		}
		if a.DurationMinutes < 0 {
			return nil, invalidArgs("duration_minutes must be positive")
		}
		if a.DurationMinutes == 0 {
			a.DurationMinutes = slots.DefaultDurationMinutes
		}
		return LookupAvailability{
			ServiceType:     a.ServiceType,
			From:            from,
			To:              to,
			TimeOfDay:       models.ParseTimeOfDay(a.TimeOfDay),
			DurationMinutes: a.DurationMinutes,
		}, nil

	case ToolBookAppointment:
		var a bookArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, invalidArgs("%v", err)
		}
		if strings.TrimSpace(a.CustomerName) == "" || strings.TrimSpace(a.ServiceType) == "" {
			return nil, invalidArgs("customer_name and service_type are required")
		}
		b := BookAppointment{
			CustomerName: a.CustomerName,
			Phone:        a.Phone,
			Email:        a.Email,
			ServiceType:  a.ServiceType,
			Address:      a.Address,
			Notes:        a.Notes,
			SlotNumber:   a.SlotNumber,
		}
		if a.SlotNumber < 0 {
			return nil, invalidArgs("slot_number must be positive")
		}
		if a.SlotNumber > 0 && a.StartTime == "" {
			return b, nil
		}
		if a.StartTime == "" || a.EndTime == "" {
			return nil, invalidArgs("start_time and end_time are required without slot_number")
		}
		var err error
		if b.Start, err = parseTime(a.StartTime, loc); err != nil {
			return nil, invalidArgs("start_time %q: %v", a.StartTime, err)
		}
		if b.End, err = parseTime(a.EndTime, loc); err != nil {
			return nil, invalidArgs("end_time %q: %v", a.EndTime, err)
		}
		if !b.End.After(b.Start) {
			return nil, invalidArgs("end_time must be after start_time")
		}
		b.SlotNumber = 0
		return b, nil

	case ToolSaveLead:
		var a leadArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, invalidArgs("%v", err)
		}
		if strings.TrimSpace(a.CustomerName) == "" {
			return nil, invalidArgs("customer_name is required")
		}
		return SaveLead{Lead: models.Lead{
			CustomerName: a.CustomerName,
			Phone:        a.Phone,
			Email:        a.Email,
			ServiceType:  a.ServiceType,
			Address:      a.Address,
			Message:      a.Message,
			Source:       a.Source,
			AgentNotes:   a.AgentNotes,
		}}, nil

	case ToolSendMessage:
		var a messageArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, invalidArgs("%v", err)
		}
		if strings.TrimSpace(a.Body) == "" {
			return nil, invalidArgs("body is required")
		}
		return SendMessage{Body: a.Body}, nil

	default:
		return UnknownTool{Name: call.Name}, nil
	}
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	var lastErr error
	for _, layout := range localTimeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
