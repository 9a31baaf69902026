package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
)

// ErrInvalidSignature is reported when a webhook signature does not verify.
var ErrInvalidSignature = errors.New("invalid twilio signature")

const signatureHeader = "X-Twilio-Signature"

// verifyTwilioSignature rejects unsigned or mis-signed webhook requests
// with 403 before any processing.
func (s *Server) verifyTwilioSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Validator == nil {
			next.ServeHTTP(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			slog.Warn("Server.verifyTwilioSignature: unreadable form", "error", err)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		if !s.cfg.Validator.Validate(s.webhookURL(r), params, r.Header.Get(signatureHeader)) {
			slog.Warn("Server.verifyTwilioSignature: rejected", "error", ErrInvalidSignature, "remote", r.RemoteAddr)
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.IncSignatureRejected()
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// webhookURL is the URL Twilio signed: the configured public URL, or the
// request URL as seen behind a proxy.
func (s *Server) webhookURL(r *http.Request) string {
	if s.cfg.WebhookURL != "" {
		return s.cfg.WebhookURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// smsWebhookHandler runs a turn for the inbound SMS and always acknowledges
// with an empty TwiML response, since Twilio would otherwise resend.
func (s *Server) smsWebhookHandler(w http.ResponseWriter, r *http.Request) {
	defer writeTwiMLAck(w)

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.smsWebhookHandler: unreadable form", "error", err)
		return
	}
	from := strings.TrimSpace(r.PostFormValue("From"))
	body := strings.TrimSpace(r.PostFormValue("Body"))
	sid := r.PostFormValue("MessageSid")
	if from == "" || body == "" {
		slog.Warn("Server.smsWebhookHandler: missing From or Body", "from", from, "message_sid", sid)
		return
	}
	slog.Info("Server.smsWebhookHandler: incoming SMS", "phone", from, "message_sid", sid)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncInbound(models.DefaultLeadSource)
	}

	// The turn outlives a dropped connection but not the turn timeout.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.TurnTimeout)
	defer cancel()

	if !s.firstDelivery(ctx, sid, from) {
		return
	}
	s.handler.Handle(ctx, from, body)
	if s.cfg.Dedup != nil && sid != "" {
		if err := s.cfg.Dedup.MarkProcessed(ctx, sid); err != nil {
			slog.Warn("Server.smsWebhookHandler: mark processed failed", "message_sid", sid, "error", err)
		}
	}
}

// firstDelivery reports whether a message should be processed. Dedup
// failures fail open so a storage problem never silences customers.
func (s *Server) firstDelivery(ctx context.Context, sid, from string) bool {
	if s.cfg.Dedup == nil || sid == "" {
		return true
	}
	fresh, err := s.cfg.Dedup.RecordInbound(ctx, sid, from)
	if err != nil {
		slog.Warn("Server.firstDelivery: dedup check failed, processing anyway", "message_sid", sid, "error", err)
		return true
	}
	if !fresh {
		slog.Info("Server.firstDelivery: duplicate delivery dropped", "message_sid", sid, "phone", from)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncDuplicate()
		}
	}
	return fresh
}
