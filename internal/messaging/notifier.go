package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	confirmationDateLayout = "Mon, Jan 2, 3:04 PM"
	reminderTimeLayout     = "3:04 PM"
)

// EscalationText is sent when a conversation is handed to a human.
const EscalationText = "Thanks for reaching out. I'm connecting you with a team member who will follow up shortly."

// Notifier composes the fixed customer notifications on top of a Sender.
type Notifier struct {
	sender Sender
	loc    *time.Location
}

// NewNotifier creates a notifier. Times are rendered in loc, or in the
// appointment's own location when loc is nil.
func NewNotifier(sender Sender, loc *time.Location) *Notifier {
	return &Notifier{sender: sender, loc: loc}
}

func (n *Notifier) in(t time.Time) time.Time {
	if n.loc == nil {
		return t
	}
	return t.In(n.loc)
}

// ConfirmationText renders the booking confirmation body.
func (n *Notifier) ConfirmationText(service string, start time.Time) string {
	return fmt.Sprintf("Booking confirmed! %s scheduled for %s. We'll send a reminder 24 hours before. Thank you!",
		serviceName(service), n.in(start).Format(confirmationDateLayout))
}

// ReminderText renders the day-before reminder body.
func (n *Notifier) ReminderText(service string, start time.Time) string {
	return fmt.Sprintf("Reminder: Your %s appointment is tomorrow at %s. Reply STOP to cancel.",
		serviceName(service), n.in(start).Format(reminderTimeLayout))
}

// SendConfirmation tells the customer their appointment is booked.
func (n *Notifier) SendConfirmation(ctx context.Context, to, service string, start time.Time) error {
	if err := n.sender.SendMessage(ctx, to, n.ConfirmationText(service, start)); err != nil {
		return fmt.Errorf("failed to send confirmation: %w", err)
	}
	slog.Info("Notifier.SendConfirmation: sent", "to", to, "start", start)
	return nil
}

// SendReminder reminds the customer of an upcoming appointment.
func (n *Notifier) SendReminder(ctx context.Context, to, service string, start time.Time) error {
	if err := n.sender.SendMessage(ctx, to, n.ReminderText(service, start)); err != nil {
		return fmt.Errorf("failed to send reminder: %w", err)
	}
	slog.Info("Notifier.SendReminder: sent", "to", to, "start", start)
	return nil
}

// SendEscalation tells the customer a person will follow up.
func (n *Notifier) SendEscalation(ctx context.Context, to string) error {
	if err := n.sender.SendMessage(ctx, to, EscalationText); err != nil {
		return fmt.Errorf("failed to send escalation: %w", err)
	}
	slog.Info("Notifier.SendEscalation: sent", "to", to)
	return nil
}

func serviceName(s string) string {
	if s == "" {
		return "service"
	}
	return s
}
