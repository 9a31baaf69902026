package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in   string
		want TimeOfDay
	}{
		{"morning", TimeOfDayMorning},
		{" Afternoon ", TimeOfDayAfternoon},
		{"EVENING", TimeOfDayEvening},
		{"any", TimeOfDayAny},
		{"", TimeOfDayAny},
		{" Midnight ", TimeOfDay("midnight")},
	}
	for _, tt := range tests {
		if got := ParseTimeOfDay(tt.in); got != tt.want {
			t.Errorf("ParseTimeOfDay(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLeadNormalize(t *testing.T) {
	now := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	var l Lead
	l.Normalize(now)
	if !l.Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, l.Timestamp)
	}
	if l.Source != DefaultLeadSource {
		t.Errorf("expected source %q, got %q", DefaultLeadSource, l.Source)
	}
	if l.Status != LeadStatusNew {
		t.Errorf("expected status %q, got %q", LeadStatusNew, l.Status)
	}

	earlier := now.Add(-time.Hour)
	l2 := Lead{Timestamp: earlier, Source: "whatsapp", Status: LeadStatusBooked}
	l2.Normalize(now)
	if !l2.Timestamp.Equal(earlier) || l2.Source != "whatsapp" || l2.Status != LeadStatusBooked {
		t.Errorf("Normalize overwrote explicit fields: %+v", l2)
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	data, err := json.Marshal(Success(map[string]int{"count": 2}))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"status":"ok","result":{"count":2}}` {
		t.Errorf("unexpected success JSON: %s", data)
	}

	data, err = json.Marshal(Error("boom"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"status":"error","message":"boom"}` {
		t.Errorf("unexpected error JSON: %s", data)
	}
}
