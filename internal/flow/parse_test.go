package flow

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/genai"
	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
)

// rawToolDecision builds a tool call with raw, possibly malformed, arguments.
func rawToolDecision(name, raw string) *genai.Decision {
	return &genai.Decision{ToolCall: &genai.ToolCall{Name: name, Arguments: json.RawMessage(raw)}}
}

func TestParseTool_Lookup(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tool, err := ParseTool(genai.ToolCall{
		Name:      ToolLookupAvailability,
		Arguments: json.RawMessage(`{"start_date":"2025-01-06","end_date":"2025-01-08","time_of_day":"Morning"}`),
	}, ny)
	if err != nil {
		t.Fatalf("ParseTool failed: %v", err)
	}
	l, ok := tool.(LookupAvailability)
	if !ok {
		t.Fatalf("expected LookupAvailability, got %T", tool)
	}
	if l.From.Location() != ny || l.From.Day() != 6 || l.To.Day() != 8 {
		t.Errorf("dates not parsed in business zone: %v %v", l.From, l.To)
	}
	if l.TimeOfDay != models.TimeOfDayMorning || l.DurationMinutes != 60 {
		t.Errorf("unexpected filter or default duration: %+v", l)
	}
}

func TestParseTool_BookLocalTimes(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	tool, err := ParseTool(genai.ToolCall{
		Name:      ToolBookAppointment,
		Arguments: json.RawMessage(`{"customer_name":"Jane","service_type":"HVAC","start_time":"2025-01-06T10:00","end_time":"2025-01-06T11:00:00"}`),
	}, loc)
	if err != nil {
		t.Fatalf("ParseTool failed: %v", err)
	}
	b := tool.(BookAppointment)
	if !b.Start.Equal(time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)) || b.End.Sub(b.Start) != time.Hour {
		t.Errorf("offset-less times should be read in the business zone: %v %v", b.Start, b.End)
	}
}

func TestParseTool_Invalid(t *testing.T) {
	tests := []struct {
		name string
		tool string
		args string
	}{
		{"malformed json", ToolSendMessage, `{"body":`},
		{"lookup missing end", ToolLookupAvailability, `{"start_date":"2025-01-06"}`},
		{"lookup bad date", ToolLookupAvailability, `{"start_date":"Jan 6","end_date":"2025-01-06"}`},
		{"lookup reversed", ToolLookupAvailability, `{"start_date":"2025-01-08","end_date":"2025-01-06"}`},
		{"book missing name", ToolBookAppointment, `{"service_type":"HVAC","start_time":"2025-01-06T10:00:00Z","end_time":"2025-01-06T11:00:00Z"}`},
		{"book missing times", ToolBookAppointment, `{"customer_name":"Jane","service_type":"HVAC"}`},
		{"book end before start", ToolBookAppointment, `{"customer_name":"Jane","service_type":"HVAC","start_time":"2025-01-06T11:00:00Z","end_time":"2025-01-06T10:00:00Z"}`},
		{"save lead without name", ToolSaveLead, `{"phone":"+1555"}`},
		{"empty message", ToolSendMessage, `{"body":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTool(genai.ToolCall{Name: tt.tool, Arguments: json.RawMessage(tt.args)}, time.UTC)
			if !errors.Is(err, ErrInvalidArguments) {
				t.Errorf("expected ErrInvalidArguments, got %v", err)
			}
		})
	}
}

func TestParseTool_Unknown(t *testing.T) {
	tool, err := ParseTool(genai.ToolCall{Name: "transfer_funds"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if u, ok := tool.(UnknownTool); !ok || u.ToolName() != "transfer_funds" {
		t.Errorf("expected UnknownTool, got %#v", tool)
	}
}

// Every declared tool has required fields, so empty arguments must be
// rejected by a dedicated parser rather than fall through to UnknownTool.
func TestDefinitionsMatchParser(t *testing.T) {
	for _, def := range Definitions() {
		_, err := ParseTool(genai.ToolCall{Name: def.Name, Arguments: json.RawMessage(`{}`)}, time.UTC)
		if !errors.Is(err, ErrInvalidArguments) {
			t.Errorf("declared tool %s: expected required-field error, got %v", def.Name, err)
		}
	}
}
