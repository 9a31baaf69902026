// Package store provides storage backends for leads, durable jobs and inbound
// message deduplication.
//
// Leads can live in memory, SQLite or PostgreSQL. The SQL stores also carry the
// job queue used for appointment reminders and the inbound dedup table.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
)

// ErrLeadNotFound is returned when no lead matches a phone number.
var ErrLeadNotFound = errors.New("lead not found")

// LeadStore is an append-only log of customer leads with a mutable status.
type LeadStore interface {
	// Initialize prepares the backing storage (tables, header rows).
	Initialize(ctx context.Context) error
	// AppendLead records a new lead. Missing timestamp, source and status are defaulted.
	AppendLead(ctx context.Context, lead models.Lead) error
	// UpdateLeadStatus sets the status of the most recent lead for phone.
	UpdateLeadStatus(ctx context.Context, phone string, status models.LeadStatus) error
	// ListLeads returns every lead, oldest first.
	ListLeads(ctx context.Context) ([]models.Lead, error)
}

// Opts holds configuration options for SQL stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for SQL stores.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or key/value DSNs and
// "sqlite3" for anything else.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a LeadStore that keeps leads in process memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	leads []models.Lead
}

// Compile-time check that InMemoryStore implements LeadStore.
var _ LeadStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Initialize(ctx context.Context) error {
	return nil
}

func (s *InMemoryStore) AppendLead(ctx context.Context, lead models.Lead) error {
	lead.Normalize(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads = append(s.leads, lead)
	slog.Debug("InMemoryStore.AppendLead", "phone", lead.Phone, "count", len(s.leads))
	return nil
}

func (s *InMemoryStore) UpdateLeadStatus(ctx context.Context, phone string, status models.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.leads) - 1; i >= 0; i-- {
		if s.leads[i].Phone == phone {
			s.leads[i].Status = status
			return nil
		}
	}
	return ErrLeadNotFound
}

func (s *InMemoryStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lead, len(s.leads))
	copy(out, s.leads)
	return out, nil
}
