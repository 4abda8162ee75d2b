package models

// Token sources
const (
	SourceDexScreener = "dexscreener"
	SourceJupiter     = "jupiter"
	SourceHelius      = "helius"
	SourceLocal       = "local"
	SourcePlaceholder = "placeholder"
)

type Token struct {
	Address  string   `json:"address" yaml:"address"`
	Name     string   `json:"name" yaml:"name"`
	Symbol   string   `json:"symbol" yaml:"symbol"`
	Decimals int      `json:"decimals" yaml:"decimals"`
	LogoURI  string   `json:"logoURI" yaml:"logoURI"`
	Verified bool     `json:"verified" yaml:"verified"`
	Tags     []string `json:"tags" yaml:"tags"`

	Price  *float64 `json:"price,omitempty" yaml:"-"`
	Source string   `json:"source,omitempty" yaml:"-"`

	DexScreener *DexScreenerData `json:"dexScreenerData,omitempty" yaml:"-"`
}

type DexScreenerData struct {
	DexID          string  `json:"dexId"`
	PairAddress    string  `json:"pairAddress"`
	LiquidityUSD   float64 `json:"liquidityUsd"`
	Volume24h      float64 `json:"volume24h"`
	PriceChange24h float64 `json:"priceChange24h"`
}
