// Package wallet holds the signing credential and connection state for
// the trading agent. The credential lives only in memory, behind one
// mutex: disconnect purges it synchronously, so an in-flight pipeline
// that reaches its signing step afterwards fails fast instead of racing
// on partially-cleared state.
package wallet

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// LamportsPerSOL converts between the native token and its smallest unit.
const LamportsPerSOL = 1_000_000_000

var (
	// ErrNotConnected marks balance/signing attempts without a wallet.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrNoCredential marks a signing attempt after the credential was
	// purged (e.g. a disconnect raced an in-flight pipeline).
	ErrNoCredential = errors.New("wallet credential unavailable")
)

// BalanceQuerier is the network dependency for balance lookups.
type BalanceQuerier interface {
	GetBalance(ctx context.Context, address string) (uint64, error)
}

// Status is the externally visible wallet state.
type Status struct {
	Connected bool   `json:"connected"`
	Address   string `json:"address,omitempty"`
}

// Wallet is the shared wallet state. Safe for concurrent use.
type Wallet struct {
	mu      sync.Mutex
	priv    ed25519.PrivateKey
	address string

	querier BalanceQuerier
}

// New returns a disconnected wallet that resolves balances through q.
func New(q BalanceQuerier) *Wallet {
	return &Wallet{querier: q}
}

// Connect derives the public address from base58 credential material:
// either a 64-byte secret key (seed ‖ public key) or a 32-byte seed.
// On any failure the wallet remains disconnected.
func (w *Wallet) Connect(material string) (string, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return "", fmt.Errorf("credential material is empty")
	}

	raw, err := base58.Decode(material)
	if err != nil {
		return "", fmt.Errorf("credential is not valid base58: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize: // 64 bytes
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize: // 32 bytes
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return "", fmt.Errorf("credential must decode to 32 or 64 bytes, got %d", len(raw))
	}

	address := base58.Encode(priv.Public().(ed25519.PublicKey))

	w.mu.Lock()
	w.priv = priv
	w.address = address
	w.mu.Unlock()

	log.Info().Str("address", address).Msg("wallet connected")
	return address, nil
}

// Disconnect purges the credential and address synchronously. Idempotent.
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.priv == nil && w.address == "" {
		return
	}
	for i := range w.priv {
		w.priv[i] = 0
	}
	w.priv = nil
	w.address = ""
	log.Info().Msg("wallet disconnected, credential purged")
}

// Connected reports whether a credential is currently held.
func (w *Wallet) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.priv != nil
}

// Address returns the public address while connected.
func (w *Wallet) Address() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.address, w.priv != nil
}

// Status snapshots the visible wallet state.
func (w *Wallet) Status() Status {
	addr, ok := w.Address()
	return Status{Connected: ok, Address: addr}
}

// Balance returns the wallet's lamport balance. Not being connected or a
// failed network query returns 0 with a typed or wrapped error; both are
// recoverable conditions for the caller.
func (w *Wallet) Balance(ctx context.Context) (uint64, error) {
	addr, ok := w.Address()
	if !ok {
		return 0, ErrNotConnected
	}
	lamports, err := w.querier.GetBalance(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("balance query for %s: %w", addr, err)
	}
	return lamports, nil
}

// BalanceSOL returns the balance in whole tokens.
func (w *Wallet) BalanceSOL(ctx context.Context) (float64, error) {
	lamports, err := w.Balance(ctx)
	if err != nil {
		return 0, err
	}
	return float64(lamports) / LamportsPerSOL, nil
}
