package store

import (
	"database/sql"
	"fmt"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/google/uuid"
)

// newJobID returns a unique job identifier.
func newJobID() string {
	return "job_" + uuid.NewString()
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob scans a Job from a row in the jobs column order.
func scanJob(row rowScanner) (Job, error) {
	var j Job
	var payloadJSON, lastError, dedupeKey sql.NullString
	var lockedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.Kind, &j.RunAt, &payloadJSON, &j.Status, &j.Attempt, &j.MaxAttempts,
		&lastError, &lockedAt, &dedupeKey, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return j, err
	}
	j.PayloadJSON = payloadJSON.String
	j.LastError = lastError.String
	j.DedupeKey = dedupeKey.String
	if lockedAt.Valid {
		j.LockedAt = &lockedAt.Time
	}
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job failed: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job rows iteration failed: %w", err)
	}
	return jobs, nil
}

// scanLeads reads every row of a leads query in the shared column order.
func scanLeads(rows *sql.Rows) ([]models.Lead, error) {
	leads := []models.Lead{}
	for rows.Next() {
		var l models.Lead
		var status string
		if err := rows.Scan(&l.Timestamp, &l.CustomerName, &l.Phone, &l.Email, &l.ServiceType,
			&l.Address, &l.Message, &l.Source, &l.AgentNotes, &l.AppointmentID, &status); err != nil {
			return nil, fmt.Errorf("failed to scan lead row: %w", err)
		}
		l.Status = models.LeadStatus(status)
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate lead rows: %w", err)
	}
	return leads, nil
}

const jobColumns = `id, kind, run_at, payload_json, status, attempt, max_attempts, last_error, locked_at, dedupe_key, created_at, updated_at`
