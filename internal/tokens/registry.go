// Package tokens resolves token symbols to on-chain mint addresses.
// The table is fixed at startup; unknown symbols are a validation error
// at the interface boundary, never a crash deeper in the pipeline.
package tokens

import (
	"fmt"
	"math"
	"strings"
)

// Token describes one tradable asset on the ledger.
type Token struct {
	Symbol      string `json:"symbol"`
	Mint        string `json:"mint"`
	Decimals    int    `json:"decimals"`
	CoinGeckoID string `json:"coingecko_id"`
}

// ErrUnknownToken wraps the symbol or mint that failed resolution.
type ErrUnknownToken struct {
	Query string
}

func (e *ErrUnknownToken) Error() string {
	return fmt.Sprintf("unknown token: %s", e.Query)
}

// Registry is a fixed symbol↔mint lookup table.
type Registry struct {
	bySymbol map[string]Token
	byMint   map[string]Token
}

// NewRegistry builds a registry over the given tokens.
func NewRegistry(tokens []Token) *Registry {
	r := &Registry{
		bySymbol: make(map[string]Token, len(tokens)),
		byMint:   make(map[string]Token, len(tokens)),
	}
	for _, t := range tokens {
		r.bySymbol[strings.ToUpper(t.Symbol)] = t
		r.byMint[t.Mint] = t
	}
	return r
}

// DefaultRegistry covers the mainnet tokens the agent trades out of the box.
func DefaultRegistry() *Registry {
	return NewRegistry([]Token{
		{Symbol: "SOL", Mint: "So11111111111111111111111111111111111111112", Decimals: 9, CoinGeckoID: "solana"},
		{Symbol: "USDC", Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6, CoinGeckoID: "usd-coin"},
		{Symbol: "BONK", Mint: "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", Decimals: 5, CoinGeckoID: "bonk"},
		{Symbol: "JUP", Mint: "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN", Decimals: 6, CoinGeckoID: "jupiter-exchange-solana"},
		{Symbol: "JTO", Mint: "J5LbyuRiGgbJMi8eiSQ9xf8o2quUbwBXP2GTbXZtUZpS", Decimals: 9, CoinGeckoID: "jito-governance-token"},
	})
}

// Resolve returns the token for a symbol (case-insensitive).
func (r *Registry) Resolve(symbol string) (Token, error) {
	t, ok := r.bySymbol[strings.ToUpper(symbol)]
	if !ok {
		return Token{}, &ErrUnknownToken{Query: symbol}
	}
	return t, nil
}

// ResolveMint returns the token for a mint address.
func (r *Registry) ResolveMint(mint string) (Token, error) {
	t, ok := r.byMint[mint]
	if !ok {
		return Token{}, &ErrUnknownToken{Query: mint}
	}
	return t, nil
}

// Symbols lists every registered symbol.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.bySymbol))
	for s := range r.bySymbol {
		out = append(out, s)
	}
	return out
}

// CoinGeckoID maps a symbol to its CoinGecko id.
func (r *Registry) CoinGeckoID(symbol string) (string, error) {
	t, err := r.Resolve(symbol)
	if err != nil {
		return "", err
	}
	return t.CoinGeckoID, nil
}

// DisplaySymbol renders a human label for a mint: the registered symbol
// when known, otherwise a truncated mint like "DezX...B263".
func (r *Registry) DisplaySymbol(mint string) string {
	if t, ok := r.byMint[mint]; ok {
		return t.Symbol
	}
	if len(mint) > 8 {
		return mint[:4] + "..." + mint[len(mint)-4:]
	}
	return mint
}

// ToBaseUnits converts a human token amount to the mint's smallest units.
func (t Token) ToBaseUnits(amount float64) uint64 {
	if amount <= 0 {
		return 0
	}
	return uint64(math.Round(amount * math.Pow10(t.Decimals)))
}

// FromBaseUnits converts smallest units back to a human token amount.
func (t Token) FromBaseUnits(units uint64) float64 {
	return float64(units) / math.Pow10(t.Decimals)
}
