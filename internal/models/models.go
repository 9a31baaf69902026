// Package models defines the core data types shared across the booking agent.
package models

import (
	"strings"
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	// RoleUser marks a turn written by the customer.
	RoleUser Role = "user"
	// RoleAssistant marks a turn written by the agent.
	RoleAssistant Role = "assistant"
)

// Turn is one message in a customer's conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Slot is a bookable time window offered to a customer.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// BusyInterval is an occupied calendar window. Intervals are half-open [Start, End).
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TimeOfDay narrows availability to a part of the day.
type TimeOfDay string

const (
	TimeOfDayMorning   TimeOfDay = "morning"
	TimeOfDayAfternoon TimeOfDay = "afternoon"
	TimeOfDayEvening   TimeOfDay = "evening"
	TimeOfDayAny       TimeOfDay = "any"
)

// ParseTimeOfDay normalizes a caller-supplied preference. An empty value
// means TimeOfDayAny. Unknown values are kept as given and match no hour.
func ParseTimeOfDay(s string) TimeOfDay {
	tod := TimeOfDay(strings.ToLower(strings.TrimSpace(s)))
	if tod == "" {
		return TimeOfDayAny
	}
	return tod
}

// LeadStatus is the lifecycle state of a lead record.
type LeadStatus string

const (
	LeadStatusNew    LeadStatus = "new"
	LeadStatusBooked LeadStatus = "booked"
)

// DefaultLeadSource is recorded when a lead arrives without an explicit source.
const DefaultLeadSource = "sms"

// Lead is a customer record appended to the lead store.
type Lead struct {
	Timestamp     time.Time  `json:"timestamp"`
	CustomerName  string     `json:"customer_name"`
	Phone         string     `json:"phone"`
	Email         string     `json:"email,omitempty"`
	ServiceType   string     `json:"service_type,omitempty"`
	Address       string     `json:"address,omitempty"`
	Message       string     `json:"message,omitempty"`
	Source        string     `json:"source"`
	AgentNotes    string     `json:"agent_notes,omitempty"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	Status        LeadStatus `json:"status"`
}

// Normalize fills the defaults every stored lead carries: a timestamp, a
// source and the initial status.
func (l *Lead) Normalize(now time.Time) {
	if l.Timestamp.IsZero() {
		l.Timestamp = now
	}
	if l.Source == "" {
		l.Source = DefaultLeadSource
	}
	if l.Status == "" {
		l.Status = LeadStatusNew
	}
}
