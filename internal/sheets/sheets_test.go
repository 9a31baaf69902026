package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/aytida12/Customer-Interaction-Agent/internal/store"
	"google.golang.org/api/option"
)

// fakeSheet serves the subset of the Sheets values API the store uses.
type fakeSheet struct {
	mu   sync.Mutex
	rows [][]interface{}
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := strings.Index(r.URL.Path, "/values/")
	if idx < 0 {
		http.NotFound(w, r)
		return
	}
	rng := r.URL.Path[idx+len("/values/"):]

	var body struct {
		Values [][]interface{} `json:"values"`
	}
	if r.Body != nil && r.Method != http.MethodGet {
		json.NewDecoder(r.Body).Decode(&body)
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet:
		json.NewEncoder(w).Encode(map[string]any{"range": rng, "values": f.rows})
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
		f.rows = append(f.rows, body.Values...)
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPut:
		cellRef := rng[strings.Index(rng, "!")+1:]
		if strings.HasPrefix(cellRef, "A1") {
			if len(f.rows) == 0 {
				f.rows = append(f.rows, body.Values[0])
			} else {
				f.rows[0] = body.Values[0]
			}
		} else {
			n, _ := strconv.Atoi(strings.TrimPrefix(cellRef, "K"))
			row := f.rows[n-1]
			for len(row) <= colStatus {
				row = append(row, "")
			}
			row[colStatus] = body.Values[0][0]
			f.rows[n-1] = row
		}
		w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

func newTestLeadStore(t *testing.T, sheet *fakeSheet) *LeadStore {
	t.Helper()
	srv := httptest.NewServer(sheet)
	t.Cleanup(srv.Close)
	s, err := NewLeadStore(context.Background(),
		WithSpreadsheetID("sheet-1"),
		WithClientOptions(option.WithHTTPClient(srv.Client()), option.WithEndpoint(srv.URL+"/")),
	)
	if err != nil {
		t.Fatalf("NewLeadStore failed: %v", err)
	}
	return s
}

func TestLeadStore_AppendUpdateList(t *testing.T) {
	sheet := &fakeSheet{}
	s := newTestLeadStore(t, sheet)
	ctx := context.Background()

	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if len(sheet.rows) != 1 || sheet.rows[0][0] != "Timestamp" || len(sheet.rows[0]) != 11 {
		t.Fatalf("header row not written: %v", sheet.rows)
	}

	leads := []models.Lead{
		{CustomerName: "Jane", Phone: "+15551234567", ServiceType: "Plumbing"},
		{CustomerName: "Bob", Phone: "+15559876543"},
		{CustomerName: "Jane", Phone: "+15551234567", ServiceType: "HVAC", AppointmentID: "evt-1"},
	}
	for _, l := range leads {
		if err := s.AppendLead(ctx, l); err != nil {
			t.Fatalf("AppendLead failed: %v", err)
		}
	}
	if got := sheet.rows[1][colStatus]; got != "new" {
		t.Errorf("expected appended status 'new', got %v", got)
	}
	if got := sheet.rows[1][colSource]; got != "sms" {
		t.Errorf("expected default source 'sms', got %v", got)
	}

	if err := s.UpdateLeadStatus(ctx, "+15551234567", models.LeadStatusBooked); err != nil {
		t.Fatalf("UpdateLeadStatus failed: %v", err)
	}

	got, err := s.ListLeads(ctx)
	if err != nil {
		t.Fatalf("ListLeads failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 leads without the header, got %d", len(got))
	}
	if got[0].Status != models.LeadStatusNew || got[2].Status != models.LeadStatusBooked {
		t.Errorf("expected only the latest matching row booked, got %q and %q", got[0].Status, got[2].Status)
	}
	if got[2].AppointmentID != "evt-1" || got[2].ServiceType != "HVAC" {
		t.Errorf("fields not read back: %+v", got[2])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected parsed timestamp")
	}
}

func TestLeadStore_UpdateUnknownPhone(t *testing.T) {
	s := newTestLeadStore(t, &fakeSheet{})
	err := s.UpdateLeadStatus(context.Background(), "+10000000000", models.LeadStatusBooked)
	if !errors.Is(err, store.ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
}

func TestNewLeadStore_RequiresSpreadsheet(t *testing.T) {
	t.Setenv("GOOGLE_SHEETS_ID", "")
	if _, err := NewLeadStore(context.Background()); !errors.Is(err, ErrSpreadsheetIDMissing) {
		t.Fatalf("expected ErrSpreadsheetIDMissing, got %v", err)
	}
}

func TestCellHandlesShortRows(t *testing.T) {
	row := []interface{}{"2025-01-06T10:00:00Z", "Jane", float64(15551234567)}
	if cell(row, colStatus) != "" {
		t.Error("expected empty string for missing trailing cell")
	}
	if cell(row, colPhone) == "" {
		t.Error("expected non-string cells to be formatted")
	}
}
