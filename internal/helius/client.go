// Package helius reads token metadata from the Helius API.
package helius

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bankii-labs/bankiiswap/internal/constants"
)

const DefaultBaseURL = "https://api.helius.xyz"

// ErrNoAPIKey is returned when lookups are attempted without a key.
var ErrNoAPIKey = errors.New("helius api key not configured")

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
		HTTP:    &http.Client{Timeout: constants.HeliusTimeout},
	}
}

func (c *Client) Enabled() bool {
	return c.APIKey != ""
}

// TokenMetadata returns metadata for a mint, or nil when Helius has none.
func (c *Client) TokenMetadata(ctx context.Context, mint string) (*TokenMetadata, error) {
	if !c.Enabled() {
		return nil, ErrNoAPIKey
	}

	q := url.Values{}
	q.Set("api-key", c.APIKey)
	q.Set("mint", mint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v0/token-metadata?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helius returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return decodeMetadata(body)
}

// decodeMetadata accepts either an array (first element wins) or a single object.
func decodeMetadata(body []byte) (*TokenMetadata, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []TokenMetadata
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		if len(list) == 0 {
			return nil, nil
		}
		return &list[0], nil
	}

	var one TokenMetadata
	if err := json.Unmarshal(body, &one); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &one, nil
}

type TokenMetadata struct {
	Mint     string    `json:"mint"`
	Name     string    `json:"name,omitempty"`
	Symbol   string    `json:"symbol,omitempty"`
	Image    string    `json:"image,omitempty"`
	Decimals *int      `json:"decimals,omitempty"`
	Tags     []string  `json:"tags,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

type Metadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Image  string `json:"image"`
}

// DisplayName prefers the nested metadata name.
func (m *TokenMetadata) DisplayName() string {
	if m.Metadata != nil && m.Metadata.Name != "" {
		return m.Metadata.Name
	}
	return m.Name
}

func (m *TokenMetadata) DisplaySymbol() string {
	if m.Metadata != nil && m.Metadata.Symbol != "" {
		return m.Metadata.Symbol
	}
	return m.Symbol
}

func (m *TokenMetadata) ImageURI() string {
	if m.Metadata != nil && m.Metadata.Image != "" {
		return m.Metadata.Image
	}
	return m.Image
}
