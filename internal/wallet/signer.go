package wallet

import (
	"crypto/ed25519"
	"fmt"
)

// SignTransaction signs opaque serialized transaction bytes and returns
// the signed serialization. The wire layout is a compact-u16 signature
// count, that many 64-byte signature slots, then the message; the fee
// payer's signature goes in slot zero and the ed25519 signature covers
// the message bytes. Works for both legacy and versioned transactions,
// whose signature sections are identical.
func (w *Wallet) SignTransaction(raw []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.priv == nil {
		return nil, ErrNoCredential
	}

	numSigs, offset, err := decodeCompactU16(raw)
	if err != nil {
		return nil, fmt.Errorf("malformed transaction: %w", err)
	}
	if numSigs < 1 {
		return nil, fmt.Errorf("malformed transaction: zero signature slots")
	}
	sigEnd := offset + numSigs*ed25519.SignatureSize
	if len(raw) <= sigEnd {
		return nil, fmt.Errorf("malformed transaction: truncated at %d bytes for %d signatures", len(raw), numSigs)
	}

	message := raw[sigEnd:]
	signature := ed25519.Sign(w.priv, message)

	signed := append([]byte(nil), raw...)
	copy(signed[offset:offset+ed25519.SignatureSize], signature)
	return signed, nil
}

// decodeCompactU16 reads the shortvec-encoded length prefix used by the
// transaction wire format. Returns the value and the prefix width.
func decodeCompactU16(b []byte) (int, int, error) {
	value, shift := 0, 0
	for i := 0; i < len(b) && i < 3; i++ {
		v := int(b[i])
		value |= (v & 0x7f) << shift
		if v&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("unterminated compact-u16 prefix")
}
