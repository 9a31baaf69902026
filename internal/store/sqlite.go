package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore keeps leads, jobs and inbound dedup records in an SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements LeadStore.
var _ LeadStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if needed creates) the SQLite database named by the
// DSN and applies migrations.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "dsn", cfg.DSN)

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Initialize re-applies migrations; they are idempotent.
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigrations); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendLead(ctx context.Context, lead models.Lead) error {
	lead.Normalize(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (created_at, customer_name, phone, email, service_type, address, message, source, agent_notes, appointment_id, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.Timestamp, lead.CustomerName, lead.Phone, lead.Email, lead.ServiceType, lead.Address,
		lead.Message, lead.Source, lead.AgentNotes, lead.AppointmentID, string(lead.Status),
	)
	if err != nil {
		slog.Error("SQLiteStore.AppendLead failed", "error", err, "phone", lead.Phone)
		return fmt.Errorf("failed to insert lead for %s: %w", lead.Phone, err)
	}
	slog.Debug("SQLiteStore.AppendLead succeeded", "phone", lead.Phone, "status", lead.Status)
	return nil
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, phone string, status models.LeadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ? WHERE id = (SELECT id FROM leads WHERE phone = ? ORDER BY id DESC LIMIT 1)`,
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

func (s *SQLiteStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT created_at, customer_name, phone, email, service_type, address, message, source, agent_notes, appointment_id, status
		 FROM leads ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()
	return scanLeads(rows)
}
