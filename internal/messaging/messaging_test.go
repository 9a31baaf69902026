package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type sentMessage struct {
	To   string
	Body string
}

// recordingSender captures messages instead of delivering them.
type recordingSender struct {
	sent []sentMessage
	err  error
}

func (r *recordingSender) SendMessage(ctx context.Context, to string, body string) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMessage{To: to, Body: body})
	return nil
}

type mockCreator struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (m *mockCreator) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	m.params = append(m.params, params)
	if m.err != nil {
		return nil, m.err
	}
	sid := "SM123"
	return &twilioApi.ApiV2010Message{Sid: &sid}, nil
}

func TestTruncate(t *testing.T) {
	short := "hello"
	if got := Truncate(short); got != short {
		t.Errorf("short body changed: %q", got)
	}

	exact := strings.Repeat("a", MaxSMSLength)
	if got := Truncate(exact); got != exact {
		t.Error("body of exactly the limit should not be cut")
	}

	long := strings.Repeat("b", 2000)
	got := Truncate(long)
	if len(got) != MaxSMSLength {
		t.Fatalf("expected %d chars, got %d", MaxSMSLength, len(got))
	}
	if !strings.HasSuffix(got, "...") || got[:1597] != long[:1597] {
		t.Error("expected first 1597 chars followed by ...")
	}
}

func TestTwilioSender_SendMessage(t *testing.T) {
	api := &mockCreator{}
	s := &TwilioSender{api: api, from: "+15550001111"}

	if err := s.SendMessage(context.Background(), "+15551234567", strings.Repeat("x", 1700)); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(api.params) != 1 {
		t.Fatalf("expected 1 API call, got %d", len(api.params))
	}
	p := api.params[0]
	if *p.To != "+15551234567" || *p.From != "+15550001111" {
		t.Errorf("unexpected addressing: to=%s from=%s", *p.To, *p.From)
	}
	if len(*p.Body) != MaxSMSLength {
		t.Errorf("expected body truncated to %d, got %d", MaxSMSLength, len(*p.Body))
	}
}

func TestTwilioSender_Errors(t *testing.T) {
	api := &mockCreator{err: errors.New("21211 invalid number")}
	s := &TwilioSender{api: api, from: "+15550001111"}

	if err := s.SendMessage(context.Background(), "", "hi"); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("expected ErrEmptyRecipient, got %v", err)
	}
	if err := s.SendMessage(context.Background(), "+1555", ""); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("expected ErrEmptyBody, got %v", err)
	}
	if err := s.SendMessage(context.Background(), "+1555", "hi"); err == nil || !strings.Contains(err.Error(), "21211") {
		t.Errorf("expected wrapped API error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendMessage(ctx, "+1555", "hi"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewTwilioSender_Credentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_PHONE_NUMBER", "")

	if _, err := NewTwilioSender(); !errors.Is(err, ErrTwilioCredentialsMissing) {
		t.Fatalf("expected ErrTwilioCredentialsMissing, got %v", err)
	}

	t.Setenv("TWILIO_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	s, err := NewTwilioSender(WithFromNumber("+15550001111"))
	if err != nil {
		t.Fatalf("expected legacy TWILIO_SID fallback to work, got %v", err)
	}
	if s.from != "+15550001111" {
		t.Errorf("expected from number from option, got %q", s.from)
	}
}

func TestNotifier_Texts(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	start := time.Date(2025, 1, 6, 15, 0, 0, 0, time.UTC)
	n := NewNotifier(&recordingSender{}, ny)

	want := "Booking confirmed! Plumbing scheduled for Mon, Jan 6, 10:00 AM. We'll send a reminder 24 hours before. Thank you!"
	if got := n.ConfirmationText("Plumbing", start); got != want {
		t.Errorf("ConfirmationText = %q, want %q", got, want)
	}
	if got := n.ReminderText("", start); got != "Reminder: Your service appointment is tomorrow at 10:00 AM. Reply STOP to cancel." {
		t.Errorf("unexpected reminder text: %q", got)
	}
}

func TestNotifier_Send(t *testing.T) {
	rec := &recordingSender{}
	n := NewNotifier(rec, nil)
	ctx := context.Background()
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	if err := n.SendConfirmation(ctx, "+1555", "HVAC", start); err != nil {
		t.Fatal(err)
	}
	if err := n.SendReminder(ctx, "+1555", "HVAC", start); err != nil {
		t.Fatal(err)
	}
	if err := n.SendEscalation(ctx, "+1555"); err != nil {
		t.Fatal(err)
	}
	if len(rec.sent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(rec.sent))
	}
	if rec.sent[2].Body != EscalationText {
		t.Errorf("unexpected escalation body: %q", rec.sent[2].Body)
	}

	failing := NewNotifier(&recordingSender{err: errors.New("down")}, nil)
	if err := failing.SendEscalation(ctx, "+1555"); err == nil {
		t.Error("expected send error to propagate")
	}
}

func TestSenderFunc(t *testing.T) {
	var got string
	var s Sender = SenderFunc(func(ctx context.Context, to, body string) error {
		got = to + ":" + body
		return nil
	})
	s.SendMessage(context.Background(), "a", "b")
	if got != "a:b" {
		t.Errorf("SenderFunc not invoked, got %q", got)
	}
}
