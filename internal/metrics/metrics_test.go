package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_Exposition(t *testing.T) {
	m := NewMetrics("")
	m.RecordOutcome("booked", "book_appointment")
	m.RecordOutcome("replied", "")
	m.ObserveModelLatency(0.3)
	m.IncInbound("sms")
	m.IncDuplicate()
	m.IncSignatureRejected()
	m.RecordSweep(2, 5, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		`customer_agent_turn_outcomes_total{status="booked",tool="book_appointment"} 1`,
		`customer_agent_turn_outcomes_total{status="replied",tool="none"} 1`,
		`customer_agent_inbound_messages_total{channel="sms"} 1`,
		`customer_agent_duplicate_messages_total 1`,
		`customer_agent_signature_rejections_total 1`,
		`customer_agent_holds_swept_total 2`,
		`customer_agent_conversations 5`,
		`customer_agent_pending_holds 1`,
		`customer_agent_model_latency_seconds_count 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics("agent")
	b := NewMetrics("agent")
	a.IncDuplicate()

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if strings.Contains(rec.Body.String(), "agent_duplicate_messages_total 1") {
		t.Error("instances should not share counters")
	}
}
