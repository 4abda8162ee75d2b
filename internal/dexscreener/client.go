package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bankii-labs/bankiiswap/internal/constants"
)

const (
	DefaultBaseURL = "https://api.dexscreener.com"

	// CDNBaseURL serves token images and prefixes relative image paths.
	CDNBaseURL = "https://dd.dexscreener.com"

	userAgent = "BankiiSwap/1.0"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: constants.DexScreenerTimeout},
	}
}

// TokenPairs returns every pair DexScreener knows for a token. A 404 is an empty result.
func (c *Client) TokenPairs(ctx context.Context, mint string) ([]Pair, error) {
	u := fmt.Sprintf("%s/latest/dex/tokens/%s", c.BaseURL, url.PathEscape(mint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var payload PairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload.Pairs, nil
}

// BestPair picks the Solana pair whose base token is mint, preferring Raydium and then
// the deepest USD liquidity.
func BestPair(pairs []Pair, mint string) (*Pair, bool) {
	var candidates []Pair
	for _, p := range pairs {
		if p.ChainID == "solana" && strings.EqualFold(p.BaseToken.Address, mint) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := candidates[i].DexID == "raydium", candidates[j].DexID == "raydium"
		if ri != rj {
			return ri
		}
		return candidates[i].Liquidity.USD > candidates[j].Liquidity.USD
	})
	return &candidates[0], true
}

// LogoURI returns the pair image, then the base token logo, then the CDN path for the token.
// Relative paths are resolved against the CDN.
func (p *Pair) LogoURI() string {
	logo := p.Info.ImageURL
	if logo == "" {
		logo = p.BaseToken.LogoURI
	}
	if logo == "" {
		logo = fmt.Sprintf("%s/ds-data/tokens/solana/%s.png?key=da8880", CDNBaseURL, p.BaseToken.Address)
	}
	if !strings.HasPrefix(logo, "http") {
		logo = CDNBaseURL + logo
	}
	return logo
}

// PriceUSD parses priceUsd. ok is false when it is missing or not a positive number.
func (p *Pair) PriceUSD() (float64, bool) {
	if p.PriceUsd == "" {
		return 0, false
	}
	px, err := strconv.ParseFloat(p.PriceUsd, 64)
	if err != nil || px <= 0 {
		return 0, false
	}
	return px, true
}
