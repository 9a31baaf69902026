package flow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/calendar"
	"github.com/aytida12/Customer-Interaction-Agent/internal/conversation"
	"github.com/aytida12/Customer-Interaction-Agent/internal/genai"
	"github.com/aytida12/Customer-Interaction-Agent/internal/messaging"
	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/aytida12/Customer-Interaction-Agent/internal/store"
)

const testPhone = "+15551234567"

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// mockDecider returns queued decisions in order and records each request.
type mockDecider struct {
	decisions []*genai.Decision
	err       error
	requests  []genai.Request
}

func (m *mockDecider) Decide(ctx context.Context, req genai.Request) (*genai.Decision, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.decisions) == 0 {
		return &genai.Decision{}, nil
	}
	d := m.decisions[0]
	m.decisions = m.decisions[1:]
	return d, nil
}

func textDecision(text string) *genai.Decision {
	return &genai.Decision{Text: text}
}

func toolDecision(t *testing.T, name string, args any) *genai.Decision {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return &genai.Decision{ToolCall: &genai.ToolCall{ID: "call_1", Name: name, Arguments: raw}}
}

type fakeCalendar struct {
	busy      []models.BusyInterval
	busyErr   error
	createErr error
	created   []calendar.EventDraft
	canceled  []string
}

func (f *fakeCalendar) BusyIntervals(ctx context.Context, from, to time.Time) ([]models.BusyInterval, error) {
	return f.busy, f.busyErr
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, draft calendar.EventDraft) (*calendar.EventResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, draft)
	return &calendar.EventResult{EventID: "evt-1", Link: "https://calendar.example/evt-1"}, nil
}

func (f *fakeCalendar) CancelEvent(ctx context.Context, eventID string) error {
	f.canceled = append(f.canceled, eventID)
	return nil
}

// recordingLeads wraps the in-memory store and logs each call in order.
type recordingLeads struct {
	*store.InMemoryStore
	calls     []string
	appendErr error
}

func (r *recordingLeads) AppendLead(ctx context.Context, lead models.Lead) error {
	r.calls = append(r.calls, "append")
	if r.appendErr != nil {
		return r.appendErr
	}
	return r.InMemoryStore.AppendLead(ctx, lead)
}

func (r *recordingLeads) UpdateLeadStatus(ctx context.Context, phone string, status models.LeadStatus) error {
	r.calls = append(r.calls, "update:"+string(status))
	return r.InMemoryStore.UpdateLeadStatus(ctx, phone, status)
}

type sentMessage struct {
	To   string
	Body string
}

// recordingSender records messages; fail decides per body whether to error.
type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail func(body string) bool
}

func (s *recordingSender) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil && s.fail(body) {
		return errors.New("provider rejected message")
	}
	s.sent = append(s.sent, sentMessage{To: to, Body: body})
	return nil
}

func (s *recordingSender) count(body string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.sent {
		if m.Body == body {
			n++
		}
	}
	return n
}

type enqueuedJob struct {
	Kind      string
	RunAt     time.Time
	Payload   string
	DedupeKey string
}

type fakeScheduler struct {
	jobs []enqueuedJob
	err  error
}

func (f *fakeScheduler) EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, enqueuedJob{kind, runAt, payloadJSON, dedupeKey})
	return "job_1", nil
}

type fakeRecorder struct {
	outcomes []string
	latency  int
}

func (f *fakeRecorder) RecordOutcome(status, tool string) { f.outcomes = append(f.outcomes, status+"/"+tool) }
func (f *fakeRecorder) ObserveModelLatency(float64)       { f.latency++ }

type testRig struct {
	model    *mockDecider
	convo    *conversation.MemoryStore
	cal      *fakeCalendar
	leads    *recordingLeads
	sender   *recordingSender
	reminder *fakeScheduler
	recorder *fakeRecorder
	d        *Dispatcher
}

// testNow is a Wednesday, before the dates used in lookups and bookings.
var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func newRig(t *testing.T, decisions ...*genai.Decision) *testRig {
	t.Helper()
	clock := fixedClock{now: testNow}
	r := &testRig{
		model:    &mockDecider{decisions: decisions},
		convo:    conversation.NewMemoryStore(conversation.WithClock(clock)),
		cal:      &fakeCalendar{},
		leads:    &recordingLeads{InMemoryStore: store.NewInMemoryStore()},
		sender:   &recordingSender{},
		reminder: &fakeScheduler{},
		recorder: &fakeRecorder{},
	}
	r.d = NewDispatcher(r.model, r.convo, r.cal, r.leads, r.sender,
		WithReminders(r.reminder),
		WithRecorder(r.recorder),
		WithClock(clock),
	)
	return r
}

var _ messaging.Sender = (*recordingSender)(nil)
var _ calendar.Service = (*fakeCalendar)(nil)
