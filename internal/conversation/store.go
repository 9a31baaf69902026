// Package conversation keeps per-customer chat history and pending slot holds.
//
// State lives in memory and is lost on restart. Every read-modify-write on a
// customer is serialized by a per-customer lock, so concurrent webhooks for the
// same phone number observe each other's writes in order.
package conversation

import (
	"log/slog"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
)

// Default store limits
const (
	// DefaultHistoryLimit is the number of turns kept per customer.
	DefaultHistoryLimit = 20
	// DefaultHoldTTL is how long offered slots stay reserved.
	DefaultHoldTTL = 10 * time.Minute
	// DefaultSweepInterval is how often expired holds are purged.
	DefaultSweepInterval = 5 * time.Minute
)

// Hold is a time-limited reservation of the slots last offered to a customer.
type Hold struct {
	Slots     []models.Slot `json:"slots"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Store is the conversation state used by the dispatcher.
type Store interface {
	// History returns a copy of the customer's turns, oldest first.
	History(customerID string) []models.Turn
	// AppendTurn adds a turn and evicts the oldest beyond the history limit.
	AppendTurn(customerID string, role models.Role, content string)
	// ClearHistory drops every turn for the customer.
	ClearHistory(customerID string)
	// SetPendingHold replaces the customer's hold with slots.
	SetPendingHold(customerID string, slots []models.Slot)
	// PendingHold returns the held slots, deleting the hold if it expired.
	PendingHold(customerID string) ([]models.Slot, bool)
	// ClearPendingHold removes the hold. Missing holds are ignored.
	ClearPendingHold(customerID string)
	// Sweep deletes every expired hold and returns how many were removed.
	Sweep() int
}

// Opts holds configuration options for a MemoryStore.
type Opts struct {
	Clock        Clock
	HistoryLimit int
	HoldTTL      time.Duration
	Histories    Map[[]models.Turn]
	Holds        Map[Hold]
}

// Option defines a configuration option for a MemoryStore.
type Option func(*Opts)

// WithClock injects the time source used for hold expiry.
func WithClock(c Clock) Option {
	return func(o *Opts) { o.Clock = c }
}

// WithHistoryLimit overrides the number of turns kept per customer.
func WithHistoryLimit(n int) Option {
	return func(o *Opts) { o.HistoryLimit = n }
}

// WithHoldTTL overrides how long a hold lives.
func WithHoldTTL(d time.Duration) Option {
	return func(o *Opts) { o.HoldTTL = d }
}

// WithHistoryMap sets the backing map for histories.
func WithHistoryMap(m Map[[]models.Turn]) Option {
	return func(o *Opts) { o.Histories = m }
}

// WithHoldMap sets the backing map for holds.
func WithHoldMap(m Map[Hold]) Option {
	return func(o *Opts) { o.Holds = m }
}

// MemoryStore implements Store over injected maps.
type MemoryStore struct {
	clock        Clock
	historyLimit int
	holdTTL      time.Duration
	histories    Map[[]models.Turn]
	holds        Map[Hold]
	locks        *keyedMutex
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore, applying defaults for anything unset.
func NewMemoryStore(opts ...Option) *MemoryStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = DefaultHoldTTL
	}
	if cfg.Histories == nil {
		cfg.Histories = NewSyncMap[[]models.Turn]()
	}
	if cfg.Holds == nil {
		cfg.Holds = NewSyncMap[Hold]()
	}
	slog.Debug("NewMemoryStore", "historyLimit", cfg.HistoryLimit, "holdTTL", cfg.HoldTTL)

	return &MemoryStore{
		clock:        cfg.Clock,
		historyLimit: cfg.HistoryLimit,
		holdTTL:      cfg.HoldTTL,
		histories:    cfg.Histories,
		holds:        cfg.Holds,
		locks:        newKeyedMutex(),
	}
}

func (s *MemoryStore) History(customerID string) []models.Turn {
	unlock := s.locks.Lock(customerID)
	defer unlock()

	turns, ok := s.histories.Load(customerID)
	if !ok {
		turns = []models.Turn{}
		s.histories.Store(customerID, turns)
	}
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out
}

func (s *MemoryStore) AppendTurn(customerID string, role models.Role, content string) {
	unlock := s.locks.Lock(customerID)
	defer unlock()

	turns, _ := s.histories.Load(customerID)
	next := make([]models.Turn, 0, len(turns)+1)
	next = append(next, turns...)
	next = append(next, models.Turn{Role: role, Content: content})
	if over := len(next) - s.historyLimit; over > 0 {
		next = next[over:]
	}
	s.histories.Store(customerID, next)
}

func (s *MemoryStore) ClearHistory(customerID string) {
	unlock := s.locks.Lock(customerID)
	defer unlock()
	s.histories.Delete(customerID)
	slog.Debug("MemoryStore.ClearHistory", "customer", customerID)
}

func (s *MemoryStore) SetPendingHold(customerID string, slots []models.Slot) {
	unlock := s.locks.Lock(customerID)
	defer unlock()

	now := s.clock.Now()
	held := make([]models.Slot, len(slots))
	copy(held, slots)
	s.holds.Store(customerID, Hold{Slots: held, CreatedAt: now, ExpiresAt: now.Add(s.holdTTL)})
	slog.Debug("MemoryStore.SetPendingHold", "customer", customerID, "slots", len(slots))
}

func (s *MemoryStore) PendingHold(customerID string) ([]models.Slot, bool) {
	unlock := s.locks.Lock(customerID)
	defer unlock()

	h, ok := s.holds.Load(customerID)
	if !ok {
		return nil, false
	}
	if s.clock.Now().After(h.ExpiresAt) {
		s.holds.Delete(customerID)
		slog.Debug("MemoryStore.PendingHold: hold expired", "customer", customerID)
		return nil, false
	}
	out := make([]models.Slot, len(h.Slots))
	copy(out, h.Slots)
	return out, true
}

func (s *MemoryStore) ClearPendingHold(customerID string) {
	unlock := s.locks.Lock(customerID)
	defer unlock()
	s.holds.Delete(customerID)
}

func (s *MemoryStore) Sweep() int {
	now := s.clock.Now()
	var expired []string
	s.holds.Range(func(key string, h Hold) bool {
		if h.ExpiresAt.Before(now) {
			expired = append(expired, key)
		}
		return true
	})

	removed := 0
	for _, key := range expired {
		unlock := s.locks.Lock(key)
		// Re-check under the lock: the hold may have been replaced meanwhile.
		if h, ok := s.holds.Load(key); ok && h.ExpiresAt.Before(now) {
			s.holds.Delete(key)
			removed++
		}
		unlock()
	}
	if removed > 0 {
		slog.Info("MemoryStore.Sweep: removed expired holds", "count", removed)
	}
	return removed
}

// Stats reports how many customers have history and holds.
func (s *MemoryStore) Stats() (conversations, holds int) {
	return s.histories.Len(), s.holds.Len()
}
