package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://lite-api.jup.ag"

// Client talks to the Jupiter swap, price and token APIs. BaseURL is the API root.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  strings.TrimSpace(apiKey),
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	b := strings.TrimSpace(string(e.Body))
	if b == "" {
		return fmt.Sprintf("jupiter http %d", e.StatusCode)
	}
	return fmt.Sprintf("jupiter http %d: %s", e.StatusCode, b)
}

// Message extracts the "error" or "message" field of a JSON error body, falling back to the raw body.
func (e *HTTPError) Message() string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Body, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(e.Body))
}

func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	if strings.TrimSpace(req.InputMint) == "" {
		return nil, fmt.Errorf("inputMint is required")
	}
	if strings.TrimSpace(req.OutputMint) == "" {
		return nil, fmt.Errorf("outputMint is required")
	}
	if strings.TrimSpace(req.Amount) == "" {
		return nil, fmt.Errorf("amount is required")
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", req.Amount)

	if req.SlippageBps != nil {
		q.Set("slippageBps", fmt.Sprintf("%d", *req.SlippageBps))
	}
	if req.SwapMode != "" {
		q.Set("swapMode", req.SwapMode)
	}
	if len(req.Dexes) > 0 {
		q.Set("dexes", strings.Join(req.Dexes, ","))
	}
	if len(req.ExcludeDexes) > 0 {
		q.Set("excludeDexes", strings.Join(req.ExcludeDexes, ","))
	}
	if req.RestrictIntermediateTokens != nil {
		q.Set("restrictIntermediateTokens", fmt.Sprintf("%t", *req.RestrictIntermediateTokens))
	}
	if req.OnlyDirectRoutes != nil {
		q.Set("onlyDirectRoutes", fmt.Sprintf("%t", *req.OnlyDirectRoutes))
	}
	if req.AsLegacyTransaction != nil {
		q.Set("asLegacyTransaction", fmt.Sprintf("%t", *req.AsLegacyTransaction))
	}
	if req.PlatformFeeBps != nil {
		q.Set("platformFeeBps", fmt.Sprintf("%d", *req.PlatformFeeBps))
	}
	if req.MaxAccounts != nil {
		q.Set("maxAccounts", fmt.Sprintf("%d", *req.MaxAccounts))
	}
	if req.DynamicSlippage != nil {
		q.Set("dynamicSlippage", fmt.Sprintf("%t", *req.DynamicSlippage))
	}

	var out QuoteResponse
	if err := c.do(ctx, http.MethodGet, "/swap/v1/quote?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Swap asks Jupiter to build a serialized transaction for a quote.
func (c *Client) Swap(ctx context.Context, req SwapRequest) (*SwapResponse, error) {
	if req.QuoteResponse == nil || len(req.QuoteResponse.RoutePlan) == 0 {
		return nil, fmt.Errorf("invalid quote: no route plan available")
	}
	if strings.TrimSpace(req.UserPublicKey) == "" {
		return nil, fmt.Errorf("userPublicKey is required")
	}

	var out SwapResponse
	if err := c.do(ctx, http.MethodPost, "/swap/v1/swap", req, &out); err != nil {
		return nil, err
	}
	if out.SwapTransaction == "" {
		return nil, fmt.Errorf("no swap transaction returned from jupiter")
	}
	return &out, nil
}

// Prices returns USD prices keyed by mint. Mints Jupiter does not price are absent.
func (c *Client) Prices(ctx context.Context, mints ...string) (map[string]PriceInfo, error) {
	if len(mints) == 0 {
		return map[string]PriceInfo{}, nil
	}

	q := url.Values{}
	q.Set("ids", strings.Join(mints, ","))

	out := map[string]PriceInfo{}
	if err := c.do(ctx, http.MethodGet, "/price/v3?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Price returns the USD price of one mint and whether Jupiter priced it.
func (c *Client) Price(ctx context.Context, mint string) (float64, bool, error) {
	prices, err := c.Prices(ctx, mint)
	if err != nil {
		return 0, false, err
	}
	p, ok := prices[mint]
	if !ok || p.USDPrice <= 0 {
		return 0, false, nil
	}
	return p.USDPrice, true, nil
}

func (c *Client) SearchTokens(ctx context.Context, query string) ([]TokenInfo, error) {
	q := url.Values{}
	q.Set("query", query)

	var out []TokenInfo
	if err := c.do(ctx, http.MethodGet, "/tokens/v2/search?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TokensByTag lists tokens carrying a tag such as "verified".
func (c *Client) TokensByTag(ctx context.Context, tag string) ([]TokenInfo, error) {
	q := url.Values{}
	q.Set("query", tag)

	var out []TokenInfo
	if err := c.do(ctx, http.MethodGet, "/tokens/v2/tag?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode jupiter request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("accept", "application/json")
	if in != nil {
		httpReq.Header.Set("content-type", "application/json")
	}
	if c.APIKey != "" {
		httpReq.Header.Set("x-api-key", c.APIKey)
	}

	res, err := c.HTTP.Do(httpReq)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	b, _ := io.ReadAll(res.Body)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &HTTPError{StatusCode: res.StatusCode, Body: b}
	}

	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode jupiter response: %w", err)
	}
	return nil
}
