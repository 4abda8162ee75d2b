package rpc

import (
	"context"
	"fmt"
)

// TokenProgramID is the SPL token program used to filter token accounts.
const TokenProgramID = "TokenkegQfeZyiNwAJbNbGQPQYvkgp5ZgxMUMLqPxQs8m"

// GetBalance returns the lamport balance of owner
func (c *Client) GetBalance(ctx context.Context, owner, commitment string) (uint64, error) {
	if commitment == "" {
		commitment = "confirmed"
	}
	params := []interface{}{
		owner,
		map[string]interface{}{"commitment": commitment},
	}

	var result BalanceResponse
	if err := c.Call(ctx, "getBalance", params, &result); err != nil {
		return 0, err
	}
	if result.Error != nil {
		return 0, result.Error
	}
	return result.Result.Value, nil
}

// GetParsedTokenAccountsByOwner lists owner's token accounts for mint, or all
// SPL token accounts when mint is empty.
func (c *Client) GetParsedTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]TokenAccount, error) {
	filter := map[string]interface{}{"programId": TokenProgramID}
	if mint != "" {
		filter = map[string]interface{}{"mint": mint}
	}
	params := []interface{}{
		owner,
		filter,
		map[string]interface{}{"encoding": "jsonParsed", "commitment": "confirmed"},
	}

	var result TokenAccountsResponse
	if err := c.Call(ctx, "getParsedTokenAccountsByOwner", params, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return result.Result.Value, nil
}

// GetTokenBalance sums the UI amount across owner's accounts for mint.
func (c *Client) GetTokenBalance(ctx context.Context, owner, mint string) (float64, error) {
	accounts, err := c.GetParsedTokenAccountsByOwner(ctx, owner, mint)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, acc := range accounts {
		if ui := acc.Account.Data.Parsed.Info.TokenAmount.UIAmount; ui != nil {
			total += *ui
		}
	}
	return total, nil
}

// SendTransaction broadcasts a base64-encoded signed transaction and returns its signature.
// Node rejections come back as *RPCError.
func (c *Client) SendTransaction(ctx context.Context, encodedTx string, opts SendOptions) (string, error) {
	cfg := map[string]interface{}{
		"encoding":            "base64",
		"skipPreflight":       opts.SkipPreflight,
		"preflightCommitment": opts.PreflightCommitment,
	}
	if opts.MaxRetries != nil {
		cfg["maxRetries"] = *opts.MaxRetries
	}

	var result SendResponse
	if err := c.Call(ctx, "sendTransaction", []interface{}{encodedTx, cfg}, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", result.Error
	}
	if result.Result == "" {
		return "", fmt.Errorf("sendTransaction returned no signature")
	}
	return result.Result, nil
}

// GetSignatureStatuses returns one status per signature, nil for unknown ones.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error) {
	params := []interface{}{
		signatures,
		map[string]interface{}{"searchTransactionHistory": true},
	}

	var result SignatureStatusesResponse
	if err := c.Call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return result.Result.Value, nil
}
