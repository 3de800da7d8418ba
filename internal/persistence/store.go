// Package persistence journals executed trades. The in-memory store is
// always available; Postgres is opt-in and selected by configuration.
package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/solrun/internal/config"
	"github.com/sawpanic/solrun/internal/domain"
)

// TradeStore is the trade journal surface.
type TradeStore interface {
	// Record appends one executed trade.
	Record(ctx context.Context, trade domain.Trade) error
	// Recent returns up to limit trades, newest first.
	Recent(ctx context.Context, limit int) ([]domain.Trade, error)
	// Close releases any backing resources.
	Close() error
}

// New selects the store backend: Postgres when enabled, otherwise the
// in-process ring.
func New(cfg config.DBConfig) (TradeStore, error) {
	if !cfg.Enabled {
		log.Debug().Msg("Trade journal: in-memory store")
		return NewMemoryStore(0), nil
	}
	store, err := NewPostgresStore(cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("host", cfg.Host).Str("database", cfg.Database).Msg("Trade journal: postgres")
	return store, nil
}

// defaultMemoryCap bounds the in-memory journal.
const defaultMemoryCap = 500

// MemoryStore keeps the most recent trades in a bounded ring.
type MemoryStore struct {
	mu     sync.Mutex
	trades []domain.Trade
	cap    int
}

// NewMemoryStore builds a ring holding up to capacity trades
// (capacity <= 0 selects the default).
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultMemoryCap
	}
	return &MemoryStore{cap: capacity}
}

func (m *MemoryStore) Record(_ context.Context, trade domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	if len(m.trades) > m.cap {
		m.trades = m.trades[len(m.trades)-m.cap:]
	}
	return nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Trade, len(m.trades))
	copy(out, m.trades)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
