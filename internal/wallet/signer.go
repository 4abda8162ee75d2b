package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ErrRejected is returned when a signer declines to sign.
var ErrRejected = errors.New("wallet: signing rejected")

// Signer signs transactions on behalf of one public key.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// Keypair is a Signer backed by a local ed25519 private key.
type Keypair struct {
	priv solana.PrivateKey
	pub  solana.PublicKey
}

var _ Signer = (*Keypair)(nil)

// NewKeypair parses a base58-encoded 64-byte key or a solana-keygen JSON array.
func NewKeypair(privateKey string) (*Keypair, error) {
	if strings.TrimSpace(privateKey) == "" {
		return nil, fmt.Errorf("wallet: PrivateKey is required")
	}
	priv, err := parsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return &Keypair{priv: priv, pub: priv.PublicKey()}, nil
}

func (k *Keypair) PublicKey() solana.PublicKey { return k.pub }

// SignTransaction fills this key's slot in tx.Signatures, overwriting the zeroed
// placeholder that unsigned aggregator transactions carry. It fails with
// ErrRejected when this key is not a required signer of tx.
func (k *Keypair) SignTransaction(_ context.Context, tx *solana.Transaction) error {
	n := int(tx.Message.Header.NumRequiredSignatures)
	if n > len(tx.Message.AccountKeys) {
		return fmt.Errorf("%w: malformed message header", ErrRejected)
	}

	idx := -1
	for i, key := range tx.Message.AccountKeys[:n] {
		if key.Equals(k.pub) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s is not a required signer", ErrRejected, k.pub)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	sig, err := k.priv.Sign(msg)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	if len(tx.Signatures) != n {
		tx.Signatures = make([]solana.Signature, n)
	}
	tx.Signatures[idx] = sig
	return nil
}

func parsePrivateKey(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("wallet: invalid JSON private key: %w", err)
		}
		b := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("wallet: invalid byte at %d: %d", i, v)
			}
			b[i] = byte(v)
		}
		if len(b) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("wallet: expected %d bytes, got %d", ed25519.PrivateKeySize, len(b))
		}
		return solana.PrivateKey(ed25519.PrivateKey(b)), nil
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("wallet: invalid base58 private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("wallet: expected %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	return solana.PrivateKey(ed25519.PrivateKey(raw)), nil
}
