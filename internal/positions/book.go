// Package positions tracks open exposure and decides when it must be
// closed. The book enforces the one-open-position-per-symbol rule; the
// monitor detects stop-loss and take-profit crossings.
package positions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sawpanic/solrun/internal/domain"
)

// ErrSymbolBusy reports an open call for a symbol that already holds a
// live position.
type ErrSymbolBusy struct {
	Symbol string
}

func (e *ErrSymbolBusy) Error() string {
	return fmt.Sprintf("position already open for %s", e.Symbol)
}

// Book is the in-memory registry of open positions, keyed by symbol.
// Safe for concurrent use by the trading loop and the control API.
type Book struct {
	mu   sync.Mutex
	open map[string]domain.Position
}

// NewBook returns an empty position book.
func NewBook() *Book {
	return &Book{open: make(map[string]domain.Position)}
}

// Open registers a position. A symbol with a live position rejects
// re-entry until that position closes.
func (b *Book) Open(pos domain.Position) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, busy := b.open[pos.Symbol]; busy {
		return &ErrSymbolBusy{Symbol: pos.Symbol}
	}
	b.open[pos.Symbol] = pos
	return nil
}

// Has reports whether the symbol currently holds an open position.
func (b *Book) Has(symbol string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.open[symbol]
	return ok
}

// Get returns the open position for the symbol, if any.
func (b *Book) Get(symbol string) (domain.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.open[symbol]
	return pos, ok
}

// Close removes the symbol's position and frees the symbol for
// re-entry. Returns the removed position.
func (b *Book) Close(symbol string) (domain.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.open[symbol]
	if ok {
		delete(b.open, symbol)
	}
	return pos, ok
}

// List returns all open positions ordered by symbol.
func (b *Book) List() []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Position, 0, len(b.open))
	for _, pos := range b.open {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Count returns the number of open positions.
func (b *Book) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.open)
}
