// Package api serves the Twilio webhook, the admin endpoints and the
// operational endpoints of the agent.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/calendar"
	"github.com/aytida12/Customer-Interaction-Agent/internal/conversation"
	"github.com/aytida12/Customer-Interaction-Agent/internal/flow"
	"github.com/aytida12/Customer-Interaction-Agent/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/oauth2"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":3000"
	// DefaultTurnTimeout bounds one inbound message's processing.
	DefaultTurnTimeout = 60 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 15 * time.Second
)

// MessageHandler processes one inbound customer message. *flow.Dispatcher implements it.
type MessageHandler interface {
	Handle(ctx context.Context, customerID, text string) flow.Outcome
}

// SignatureValidator checks a provider request signature.
type SignatureValidator interface {
	Validate(url string, params map[string]string, expectedSignature string) bool
}

// TokenExchanger trades an OAuth authorization code for tokens.
type TokenExchanger interface {
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// JobCanceler cancels queued jobs by dedupe key.
type JobCanceler interface {
	CancelJobsByDedupeKey(ctx context.Context, dedupeKey string) (int, error)
}

// StatsReporter reports in-memory conversation counts.
type StatsReporter interface {
	Stats() (conversations, holds int)
}

// Metrics receives webhook counters and serves the exposition endpoint.
type Metrics interface {
	IncInbound(channel string)
	IncDuplicate()
	IncSignatureRejected()
	Handler() http.Handler
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	WebhookURL  string
	Validator   SignatureValidator
	Dedup       store.DedupRepo
	Calendar    calendar.Service
	Jobs        JobCanceler
	Auth        TokenExchanger
	Metrics     Metrics
	Stats       StatsReporter
	TurnTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSignatureValidation enables webhook signature checks. webhookURL is
// the public URL Twilio signs; when empty it is rebuilt from the request.
func WithSignatureValidation(v SignatureValidator, webhookURL string) Option {
	return func(o *Opts) {
		o.Validator = v
		o.WebhookURL = webhookURL
	}
}

// WithDedup drops provider resends by message ID.
func WithDedup(d store.DedupRepo) Option {
	return func(o *Opts) { o.Dedup = d }
}

// WithCalendar enables appointment cancellation.
func WithCalendar(c calendar.Service) Option {
	return func(o *Opts) { o.Calendar = c }
}

// WithJobs cancels reminders alongside appointments.
func WithJobs(j JobCanceler) Option {
	return func(o *Opts) { o.Jobs = j }
}

// WithTokenExchanger enables the OAuth callback.
func WithTokenExchanger(a TokenExchanger) Option {
	return func(o *Opts) { o.Auth = a }
}

// WithMetrics enables counters and the /metrics endpoint.
func WithMetrics(m Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// WithStats adds conversation counts to the health check.
func WithStats(s StatsReporter) Option {
	return func(o *Opts) { o.Stats = s }
}

// WithTurnTimeout bounds processing of one inbound message.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *Opts) { o.TurnTimeout = d }
}

// Server holds the HTTP dependencies.
type Server struct {
	handler MessageHandler
	convo   conversation.Store
	leads   store.LeadStore
	cfg     Opts
}

// NewServer creates an API server.
func NewServer(handler MessageHandler, convo conversation.Store, leads store.LeadStore, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, TurnTimeout: DefaultTurnTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewServer", "addr", cfg.Addr, "signature_validation", cfg.Validator != nil,
		"dedup", cfg.Dedup != nil, "calendar", cfg.Calendar != nil, "oauth", cfg.Auth != nil)
	return &Server{handler: handler, convo: convo, leads: leads, cfg: cfg}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.With(s.verifyTwilioSignature).Post("/webhook/sms", s.smsWebhookHandler)

	r.Get("/health", s.healthHandler)
	r.Get("/init", s.initHandler)
	r.Get("/auth/callback", s.authCallbackHandler)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics.Handler())
	}

	r.Route("/admin", func(r chi.Router) {
		r.Get("/conversation/{phone}", s.getConversationHandler)
		r.Delete("/conversation/{phone}", s.clearConversationHandler)
		r.Get("/leads", s.listLeadsHandler)
		r.Delete("/appointments/{eventID}", s.cancelAppointmentHandler)
	})
	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: graceful shutdown failed", "error", err)
		_ = httpServer.Close()
		return err
	}
	return nil
}
