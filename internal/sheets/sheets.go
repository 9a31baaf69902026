// Package sheets stores leads as rows in a Google Sheets spreadsheet, one
// column per lead field with the status in the last column.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/aytida12/Customer-Interaction-Agent/internal/store"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// DefaultSheetName is the tab leads are written to.
const DefaultSheetName = "Leads"

// Column layout, A through K.
const (
	colTimestamp = iota
	colName
	colPhone
	colEmail
	colService
	colAddress
	colMessage
	colSource
	colNotes
	colAppointment
	colStatus
	numColumns
)

// Headers is the header row written by Initialize.
var Headers = []interface{}{
	"Timestamp", "Customer Name", "Phone", "Email", "Service Type", "Address",
	"Message", "Source", "Agent Notes", "Appointment ID", "Status",
}

// ErrSpreadsheetIDMissing is returned when no spreadsheet is configured.
var ErrSpreadsheetIDMissing = errors.New("GOOGLE_SHEETS_ID not set")

// Opts holds configuration options for the Sheets lead store.
type Opts struct {
	SpreadsheetID string
	SheetName     string
	ClientOptions []option.ClientOption
}

// Option defines a configuration option for the Sheets lead store.
type Option func(*Opts)

// WithSpreadsheetID sets the spreadsheet leads are stored in.
func WithSpreadsheetID(id string) Option {
	return func(o *Opts) { o.SpreadsheetID = id }
}

// WithSheetName sets the tab name.
func WithSheetName(name string) Option {
	return func(o *Opts) { o.SheetName = name }
}

// WithTokenSource authenticates requests with an OAuth2 token source.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(o *Opts) { o.ClientOptions = append(o.ClientOptions, option.WithTokenSource(ts)) }
}

// WithClientOptions passes raw client options, such as a test endpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *Opts) { o.ClientOptions = append(o.ClientOptions, opts...) }
}

// LeadStore implements store.LeadStore on a spreadsheet.
type LeadStore struct {
	svc           *gsheets.Service
	spreadsheetID string
	sheet         string
}

// Compile-time check that LeadStore implements store.LeadStore.
var _ store.LeadStore = (*LeadStore)(nil)

// NewLeadStore creates a Sheets-backed lead store. The spreadsheet ID falls back
// to $GOOGLE_SHEETS_ID and the tab to $GOOGLE_SHEET_NAME.
func NewLeadStore(ctx context.Context, opts ...Option) (*LeadStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.SpreadsheetID == "" {
		cfg.SpreadsheetID = os.Getenv("GOOGLE_SHEETS_ID")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = os.Getenv("GOOGLE_SHEET_NAME")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = DefaultSheetName
	}
	slog.Debug("NewLeadStore", "SpreadsheetID_set", cfg.SpreadsheetID != "", "sheet", cfg.SheetName)
	if cfg.SpreadsheetID == "" {
		return nil, ErrSpreadsheetIDMissing
	}

	svc, err := gsheets.NewService(ctx, cfg.ClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &LeadStore{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheet: cfg.SheetName}, nil
}

func (s *LeadStore) rng(a1 string) string {
	return s.sheet + "!" + a1
}

// Initialize writes the header row.
func (s *LeadStore) Initialize(ctx context.Context) error {
	vr := &gsheets.ValueRange{Values: [][]interface{}{Headers}}
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1:K1"), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		slog.Error("LeadStore.Initialize: header write failed", "error", err)
		return fmt.Errorf("failed to write header row: %w", err)
	}
	slog.Info("LeadStore.Initialize: sheet initialized", "sheet", s.sheet)
	return nil
}

func (s *LeadStore) AppendLead(ctx context.Context, lead models.Lead) error {
	lead.Normalize(time.Now())
	row := make([]interface{}, numColumns)
	row[colTimestamp] = lead.Timestamp.Format(time.RFC3339)
	row[colName] = lead.CustomerName
	row[colPhone] = lead.Phone
	row[colEmail] = lead.Email
	row[colService] = lead.ServiceType
	row[colAddress] = lead.Address
	row[colMessage] = lead.Message
	row[colSource] = lead.Source
	row[colNotes] = lead.AgentNotes
	row[colAppointment] = lead.AppointmentID
	row[colStatus] = string(lead.Status)

	vr := &gsheets.ValueRange{Values: [][]interface{}{row}}
	_, err := s.svc.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:K"), vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		slog.Error("LeadStore.AppendLead: append failed", "error", err, "phone", lead.Phone)
		return fmt.Errorf("failed to append lead for %s: %w", lead.Phone, err)
	}
	slog.Debug("LeadStore.AppendLead", "phone", lead.Phone)
	return nil
}

// UpdateLeadStatus rewrites the status cell of the last row whose phone matches.
func (s *LeadStore) UpdateLeadStatus(ctx context.Context, phone string, status models.LeadStatus) error {
	rows, err := s.readRows(ctx)
	if err != nil {
		return err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if cell(rows[i], colPhone) != phone {
			continue
		}
		target := s.rng(fmt.Sprintf("K%d", i+1))
		vr := &gsheets.ValueRange{Values: [][]interface{}{{string(status)}}}
		if _, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, target, vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to update status cell %s: %w", target, err)
		}
		slog.Debug("LeadStore.UpdateLeadStatus", "phone", phone, "status", status, "cell", target)
		return nil
	}
	return store.ErrLeadNotFound
}

func (s *LeadStore) ListLeads(ctx context.Context) ([]models.Lead, error) {
	rows, err := s.readRows(ctx)
	if err != nil {
		return nil, err
	}
	leads := []models.Lead{}
	for i, row := range rows {
		if i == 0 && cell(row, colTimestamp) == Headers[colTimestamp] {
			continue
		}
		leads = append(leads, rowToLead(row))
	}
	return leads, nil
}

func (s *LeadStore) readRows(ctx context.Context) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:K")).Context(ctx).Do()
	if err != nil {
		slog.Error("LeadStore.readRows: read failed", "error", err)
		return nil, fmt.Errorf("failed to read leads: %w", err)
	}
	return resp.Values, nil
}

func rowToLead(row []interface{}) models.Lead {
	l := models.Lead{
		CustomerName:  cell(row, colName),
		Phone:         cell(row, colPhone),
		Email:         cell(row, colEmail),
		ServiceType:   cell(row, colService),
		Address:       cell(row, colAddress),
		Message:       cell(row, colMessage),
		Source:        cell(row, colSource),
		AgentNotes:    cell(row, colNotes),
		AppointmentID: cell(row, colAppointment),
		Status:        models.LeadStatus(cell(row, colStatus)),
	}
	if ts, err := time.Parse(time.RFC3339, cell(row, colTimestamp)); err == nil {
		l.Timestamp = ts
	}
	return l
}

// cell returns column i of row as a string; the API omits trailing empty cells.
func cell(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	if s, ok := row[i].(string); ok {
		return s
	}
	return fmt.Sprint(row[i])
}
