package tokens

import (
	"errors"
	"testing"
)

func TestRegistry_ResolveKnownSymbol(t *testing.T) {
	reg := DefaultRegistry()

	tok, err := reg.Resolve("sol")
	if err != nil {
		t.Fatalf("Resolve(sol) failed: %v", err)
	}
	if tok.Mint != "So11111111111111111111111111111111111111112" {
		t.Errorf("unexpected SOL mint: %s", tok.Mint)
	}
	if tok.Decimals != 9 {
		t.Errorf("SOL decimals: want 9, got %d", tok.Decimals)
	}
}

func TestRegistry_UnknownSymbolIsTypedError(t *testing.T) {
	reg := DefaultRegistry()

	_, err := reg.Resolve("DOGE")
	if err == nil {
		t.Fatal("expected error for unknown symbol")
	}
	var unknown *ErrUnknownToken
	if !errors.As(err, &unknown) {
		t.Fatalf("expected ErrUnknownToken, got %T", err)
	}
	if unknown.Query != "DOGE" {
		t.Errorf("error should carry the query, got %q", unknown.Query)
	}
}

func TestRegistry_DisplaySymbol(t *testing.T) {
	reg := DefaultRegistry()

	if got := reg.DisplaySymbol("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"); got != "BONK" {
		t.Errorf("known mint should display its symbol, got %q", got)
	}
	if got := reg.DisplaySymbol("Unknown111111111111111111111111111111111111"); got != "Unkn...1111" {
		t.Errorf("unknown mint should truncate, got %q", got)
	}
}

func TestToken_BaseUnitConversion(t *testing.T) {
	reg := DefaultRegistry()
	usdc, _ := reg.Resolve("USDC")
	sol, _ := reg.Resolve("SOL")

	if got := usdc.ToBaseUnits(1.5); got != 1_500_000 {
		t.Errorf("1.5 USDC: want 1500000 units, got %d", got)
	}
	if got := sol.ToBaseUnits(0.01); got != 10_000_000 {
		t.Errorf("0.01 SOL: want 1e7 lamports, got %d", got)
	}
	if got := sol.FromBaseUnits(2_500_000_000); got != 2.5 {
		t.Errorf("2.5e9 lamports: want 2.5 SOL, got %f", got)
	}
	if got := sol.ToBaseUnits(-1); got != 0 {
		t.Errorf("negative amounts clamp to 0 units, got %d", got)
	}
}
