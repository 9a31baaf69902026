package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore keeps leads, jobs and inbound dedup records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements LeadStore.
var _ LeadStore = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL and applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Initialize re-applies migrations; they are idempotent.
func (s *PostgresStore) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresMigrations); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendLead(ctx context.Context, lead models.Lead) error {
	lead.Normalize(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (created_at, customer_name, phone, email, service_type, address, message, source, agent_notes, appointment_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		lead.Timestamp, lead.CustomerName, lead.Phone, lead.Email, lead.ServiceType, lead.Address,
		lead.Message, lead.Source, lead.AgentNotes, lead.AppointmentID, string(lead.Status),
	)
	if err != nil {
		slog.Error("PostgresStore.AppendLead failed", "error", err, "phone", lead.Phone)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.Phone, err)
	}
	slog.Debug("PostgresStore.AppendLead succeeded", "phone", lead.Phone, "status", lead.Status)
	return nil
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, phone string, status models.LeadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = $1 WHERE id = (SELECT id FROM leads WHERE phone = $2 ORDER BY id DESC LIMIT 1)`,
		string(status), phone,
	)
	if err != nil {
		return fmt.Errorf("failed to update lead status for %s: %w", phone, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated leads: %w", err)
	}
	if n == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT created_at, customer_name, phone, email, service_type, address, message, source, agent_notes, appointment_id, status
		 FROM leads ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}
