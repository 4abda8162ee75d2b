package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/rpc"
)

var (
	// ErrTransactionFailed is returned by ConfirmTransaction when the cluster reports an execution error.
	ErrTransactionFailed = errors.New("wallet: transaction failed")
	// ErrConfirmTimeout is returned when no sufficient confirmation arrives in time.
	ErrConfirmTimeout = errors.New("wallet: confirmation timeout")
)

// Wallet pairs a Signer with the RPC endpoint it trades through.
type Wallet struct {
	signer Signer
	rpc    *rpc.Client
}

func NewWallet(signer Signer, client *rpc.Client) (*Wallet, error) {
	if signer == nil {
		return nil, fmt.Errorf("wallet: signer is required")
	}
	if client == nil {
		return nil, fmt.Errorf("wallet: rpc client is required")
	}
	return &Wallet{signer: signer, rpc: client}, nil
}

func (w *Wallet) Address() string             { return w.signer.PublicKey().String() }
func (w *Wallet) PublicKey() solana.PublicKey { return w.signer.PublicKey() }

// Balance returns the wallet's UI-unit balance of mint. Native SOL is read with getBalance.
func (w *Wallet) Balance(ctx context.Context, mint string) (float64, error) {
	return BalanceOf(ctx, w.rpc, w.Address(), mint)
}

// BalanceOf returns owner's UI-unit balance of mint.
func BalanceOf(ctx context.Context, client *rpc.Client, owner, mint string) (float64, error) {
	if mint == constants.MintSOL {
		lamports, err := client.GetBalance(ctx, owner, "confirmed")
		if err != nil {
			return 0, fmt.Errorf("getBalance failed: %w", err)
		}
		return float64(lamports) / float64(solana.LAMPORTS_PER_SOL), nil
	}
	bal, err := client.GetTokenBalance(ctx, owner, mint)
	if err != nil {
		return 0, fmt.Errorf("getParsedTokenAccountsByOwner failed: %w", err)
	}
	return bal, nil
}

// SignTx signs a transaction with the wallet's signer
func (w *Wallet) SignTx(ctx context.Context, tx *solana.Transaction) error {
	return w.signer.SignTransaction(ctx, tx)
}

// SendTx sends a signed transaction. Nil opts uses rpc.DefaultSendOptions.
func (w *Wallet) SendTx(ctx context.Context, tx *solana.Transaction, opts *rpc.SendOptions) (string, error) {
	if opts == nil {
		defaultOpts := rpc.DefaultSendOptions()
		opts = &defaultOpts
	}

	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}

	sig, err := w.rpc.SendTransaction(ctx, base64.StdEncoding.EncodeToString(txBytes), *opts)
	if err != nil {
		return "", fmt.Errorf("sendTransaction failed: %w", err)
	}
	return sig, nil
}

// ConfirmTransaction polls for transaction confirmation
func (w *Wallet) ConfirmTransaction(ctx context.Context, signature, commitment string, timeout time.Duration) error {
	return ConfirmTransaction(ctx, w.rpc, signature, commitment, timeout)
}

// ConfirmTransaction polls getSignatureStatuses with exponential backoff until
// the signature reaches commitment, fails, or timeout elapses.
func ConfirmTransaction(ctx context.Context, client *rpc.Client, signature, commitment string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	backoff := 500 * time.Millisecond
	maxBackoff := 4 * time.Second

	for time.Now().Before(deadline) {
		confirmed, err := checkSignatureStatus(ctx, client, signature, commitment)
		if err != nil {
			return err
		}
		if confirmed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}

	return fmt.Errorf("%w after %v", ErrConfirmTimeout, timeout)
}

func checkSignatureStatus(ctx context.Context, client *rpc.Client, signature, commitment string) (bool, error) {
	statuses, err := client.GetSignatureStatuses(ctx, signature)
	if err != nil {
		return false, fmt.Errorf("failed to check signature: %w", err)
	}

	if len(statuses) == 0 || statuses[0] == nil || statuses[0].ConfirmationStatus == "" {
		return false, nil // Not yet processed
	}

	status := statuses[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %v", ErrTransactionFailed, status.Err)
	}

	switch commitment {
	case "confirmed":
		return status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized", nil
	case "finalized":
		return status.ConfirmationStatus == "finalized", nil
	default:
		return true, nil
	}
}

// Balances reads balances of arbitrary owners, for read-only views like the portfolio.
type Balances struct {
	rpc *rpc.Client
}

func NewBalances(client *rpc.Client) *Balances { return &Balances{rpc: client} }

func (b *Balances) Balance(ctx context.Context, owner, mint string) (float64, error) {
	return BalanceOf(ctx, b.rpc, owner, mint)
}
