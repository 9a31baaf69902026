package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/flow"
	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/go-chi/chi/v5"
)

const adminTimeout = 30 * time.Second

// ConversationView is the admin view of one customer.
type ConversationView struct {
	Phone        string        `json:"phone"`
	History      []models.Turn `json:"history"`
	PendingSlots []models.Slot `json:"pending_slots,omitempty"`
}

// phoneParam reads the {phone} segment, which clients may percent-encode.
func phoneParam(r *http.Request) string {
	raw := chi.URLParam(r, "phone")
	if p, err := url.PathUnescape(raw); err == nil {
		return p
	}
	return raw
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if s.cfg.Stats != nil {
		conversations, holds := s.cfg.Stats.Stats()
		health["conversations"] = conversations
		health["pending_holds"] = holds
	}
	writeJSONResponse(w, http.StatusOK, health)
}

// initHandler prepares the lead store, e.g. writes the sheet header row.
func (s *Server) initHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	if err := s.leads.Initialize(ctx); err != nil {
		slog.Error("Server.initHandler: lead store initialization failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to initialize lead store"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Lead store initialized", nil))
}

func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	phone := phoneParam(r)
	view := ConversationView{Phone: phone, History: s.convo.History(phone)}
	if held, ok := s.convo.PendingHold(phone); ok {
		view.PendingSlots = held
	}
	writeJSONResponse(w, http.StatusOK, models.Success(view))
}

func (s *Server) clearConversationHandler(w http.ResponseWriter, r *http.Request) {
	phone := phoneParam(r)
	s.convo.ClearHistory(phone)
	s.convo.ClearPendingHold(phone)
	slog.Info("Server.clearConversationHandler: conversation cleared", "phone", phone)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Conversation cleared", nil))
}

func (s *Server) listLeadsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	leads, err := s.leads.ListLeads(ctx)
	if err != nil {
		slog.Error("Server.listLeadsHandler: failed to list leads", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list leads"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(leads))
}

// cancelAppointmentHandler deletes the calendar event and its pending reminder.
func (s *Server) cancelAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Calendar == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Calendar not configured"))
		return
	}
	eventID := chi.URLParam(r, "eventID")
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()

	if err := s.cfg.Calendar.CancelEvent(ctx, eventID); err != nil {
		slog.Error("Server.cancelAppointmentHandler: cancel failed", "event_id", eventID, "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to cancel appointment"))
		return
	}
	canceledReminders := 0
	if s.cfg.Jobs != nil {
		n, err := s.cfg.Jobs.CancelJobsByDedupeKey(ctx, flow.ReminderDedupeKey(eventID))
		if err != nil {
			slog.Warn("Server.cancelAppointmentHandler: reminder cancel failed", "event_id", eventID, "error", err)
		}
		canceledReminders = n
	}
	slog.Info("Server.cancelAppointmentHandler: appointment canceled", "event_id", eventID, "reminders", canceledReminders)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Appointment canceled", map[string]interface{}{
		"event_id":           eventID,
		"reminders_canceled": canceledReminders,
	}))
}

// authCallbackHandler completes the Google consent flow and shows the
// refresh token to store in GOOGLE_REFRESH_TOKEN.
func (s *Server) authCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Auth == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Google OAuth not configured"))
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing code parameter"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminTimeout)
	defer cancel()
	tok, err := s.cfg.Auth.Exchange(ctx, code)
	if err != nil {
		slog.Error("Server.authCallbackHandler: code exchange failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Failed to exchange authorization code"))
		return
	}
	slog.Info("Server.authCallbackHandler: tokens received", "refresh_token_set", tok.RefreshToken != "")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Set GOOGLE_REFRESH_TOKEN to the refresh_token below", map[string]interface{}{
		"refresh_token": tok.RefreshToken,
		"expiry":        tok.Expiry,
	}))
}
