package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/messaging"
	"github.com/aytida12/Customer-Interaction-Agent/internal/store"
)

// JobKindAppointmentReminder is the durable job sent the day before an appointment.
const JobKindAppointmentReminder = "appointment_reminder"

// ReminderLead is how long before the appointment the reminder goes out.
const ReminderLead = 24 * time.Hour

// AppointmentReminderPayload is the JSON payload for appointment_reminder jobs.
type AppointmentReminderPayload struct {
	To          string    `json:"to"`
	Channel     string    `json:"channel"`
	ServiceType string    `json:"service_type"`
	EventID     string    `json:"event_id"`
	Start       time.Time `json:"start"`
}

// ReminderDedupeKey identifies the reminder job for a calendar event.
func ReminderDedupeKey(eventID string) string {
	return "reminder:" + eventID
}

// scheduleReminder enqueues the day-before reminder. Failures are logged
// only; the booking already stands.
func (d *Dispatcher) scheduleReminder(ctx context.Context, to, service, eventID string, start time.Time) {
	if d.cfg.Reminders == nil {
		return
	}
	runAt := start.Add(-ReminderLead)
	if runAt.Before(d.cfg.Clock.Now()) {
		slog.Debug("Dispatcher.scheduleReminder: appointment within reminder window, skipping", "phone", to, "event_id", eventID)
		return
	}
	payload, err := json.Marshal(AppointmentReminderPayload{
		To:          to,
		Channel:     d.cfg.Source,
		ServiceType: service,
		EventID:     eventID,
		Start:       start,
	})
	if err != nil {
		slog.Error("Dispatcher.scheduleReminder: marshal failed", "error", err)
		return
	}
	id, err := d.cfg.Reminders.EnqueueJob(ctx, JobKindAppointmentReminder, runAt, string(payload), ReminderDedupeKey(eventID))
	if err != nil {
		slog.Error("Dispatcher.scheduleReminder: enqueue failed", "phone", to, "event_id", eventID, "error", err)
		return
	}
	slog.Info("Dispatcher.scheduleReminder: reminder scheduled", "phone", to, "event_id", eventID, "job_id", id, "run_at", runAt)
}

// RegisterJobHandlers registers the reminder handler. senders maps a lead
// source ("sms", "whatsapp") to the channel the reminder goes out on.
func RegisterJobHandlers(runner *store.JobRunner, senders map[string]messaging.Sender, loc *time.Location) {
	runner.RegisterHandler(JobKindAppointmentReminder, makeReminderHandler(senders, loc))
}

func makeReminderHandler(senders map[string]messaging.Sender, loc *time.Location) store.JobHandler {
	return func(ctx context.Context, payload string) error {
		var p AppointmentReminderPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return fmt.Errorf("invalid appointment_reminder payload: %w", err)
		}
		sender, ok := senders[p.Channel]
		if !ok {
			return fmt.Errorf("no sender for channel %q", p.Channel)
		}
		slog.Info("JobHandler.appointment_reminder: sending", "phone", p.To, "event_id", p.EventID)
		return messaging.NewNotifier(sender, loc).SendReminder(ctx, p.To, p.ServiceType, p.Start)
	}
}
