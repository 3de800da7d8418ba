package rpc

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

type balanceResult struct {
	Value uint64 `json:"value"`
}

type signatureStatusesResult struct {
	Value []*signatureStatus `json:"value"`
}

type signatureStatus struct {
	ConfirmationStatus string      `json:"confirmationStatus"`
	Err                interface{} `json:"err"`
}

// GetBalance returns the lamport balance of an address.
func (p *Pool) GetBalance(ctx context.Context, address string) (uint64, error) {
	var res balanceResult
	if err := p.Call(ctx, "getBalance", []interface{}{address}, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// SendTransaction submits signed transaction bytes and returns the
// transaction signature.
func (p *Pool) SendTransaction(ctx context.Context, signedTx []byte) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(signedTx)
	params := []interface{}{
		encoded,
		map[string]interface{}{"encoding": "base64", "skipPreflight": false, "maxRetries": 3},
	}
	var signature string
	if err := p.Call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// WaitForConfirmation polls signature status until the transaction is
// confirmed or finalized, the node reports a transaction error, or ctx
// expires. The caller bounds the wait with a deadline on ctx.
func (p *Pool) WaitForConfirmation(ctx context.Context, signature string, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		status, err := p.signatureStatus(ctx, signature)
		if err == nil && status != nil {
			if status.Err != nil {
				return fmt.Errorf("transaction %s failed on chain: %v", signature, status.Err)
			}
			if status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized" {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation of %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *Pool) signatureStatus(ctx context.Context, signature string) (*signatureStatus, error) {
	params := []interface{}{
		[]string{signature},
		map[string]interface{}{"searchTransactionHistory": false},
	}
	var res signatureStatusesResult
	if err := p.Call(ctx, "getSignatureStatuses", params, &res); err != nil {
		return nil, err
	}
	if len(res.Value) == 0 {
		return nil, nil
	}
	return res.Value[0], nil
}

// Health asks the primary-or-first-available node for its health.
func (p *Pool) Health(ctx context.Context) error {
	var status string
	if err := p.Call(ctx, "getHealth", nil, &status); err != nil {
		return err
	}
	if status != "ok" {
		return fmt.Errorf("node health: %s", status)
	}
	return nil
}
