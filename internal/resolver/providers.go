package resolver

import (
	"context"
	"strings"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/dexscreener"
	"github.com/bankii-labs/bankiiswap/internal/helius"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/models"
)

// Provider looks up metadata for a mint. It returns (nil, nil) when the mint is unknown to it.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, mint string) (*models.Token, error)
}

// DexScreenerPairs is the part of the DexScreener client the resolver needs.
type DexScreenerPairs interface {
	TokenPairs(ctx context.Context, mint string) ([]dexscreener.Pair, error)
}

type dexScreenerProvider struct {
	client DexScreenerPairs
}

func NewDexScreenerProvider(client DexScreenerPairs) Provider {
	return &dexScreenerProvider{client: client}
}

func (p *dexScreenerProvider) Name() string { return models.SourceDexScreener }

func (p *dexScreenerProvider) Lookup(ctx context.Context, mint string) (*models.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DexScreenerTimeout)
	defer cancel()

	pairs, err := p.client.TokenPairs(ctx, mint)
	if err != nil {
		return nil, err
	}
	best, ok := dexscreener.BestPair(pairs, mint)
	if !ok {
		return nil, nil
	}

	base := best.BaseToken
	t := &models.Token{
		Address:  firstNonEmpty(base.Address, mint),
		Name:     firstNonEmpty(base.Name, "Unknown Token"),
		Symbol:   firstNonEmpty(base.Symbol, "UNK"),
		Decimals: 6,
		LogoURI:  best.LogoURI(),
		Tags:     []string{"unverified"},
		Source:   models.SourceDexScreener,
		DexScreener: &models.DexScreenerData{
			DexID:          best.DexID,
			PairAddress:    best.PairAddress,
			LiquidityUSD:   best.Liquidity.USD,
			Volume24h:      best.Volume.H24,
			PriceChange24h: best.PriceChange.H24,
		},
	}
	if base.Decimals != nil {
		t.Decimals = *base.Decimals
	}
	if px, ok := best.PriceUSD(); ok {
		t.Price = &px
	}
	return t, nil
}

// TokenSearcher is the part of the Jupiter client the resolver needs.
type TokenSearcher interface {
	SearchTokens(ctx context.Context, query string) ([]jupiter.TokenInfo, error)
}

type jupiterProvider struct {
	client TokenSearcher
}

func NewJupiterProvider(client TokenSearcher) Provider {
	return &jupiterProvider{client: client}
}

func (p *jupiterProvider) Name() string { return models.SourceJupiter }

func (p *jupiterProvider) Lookup(ctx context.Context, mint string) (*models.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.JupiterTimeout)
	defer cancel()

	list, err := p.client.SearchTokens(ctx, mint)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}

	info := list[0]
	for _, t := range list {
		if t.ID == mint || t.Address == mint {
			info = t
			break
		}
	}

	t := &models.Token{
		Address:  firstNonEmpty(info.Mint(), mint),
		Name:     firstNonEmpty(info.Name, "Token "+short(mint)+"..."),
		Symbol:   firstNonEmpty(info.Symbol, "TOKEN_"+short(mint)),
		Decimals: info.DecimalsOr(6),
		LogoURI:  NormalizeLogo(info.Logo()),
		Verified: info.IsVerifiedToken(),
		Tags:     info.Tags,
		Source:   models.SourceJupiter,
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	if info.USDPrice > 0 {
		px := info.USDPrice
		t.Price = &px
	}
	return t, nil
}

// MetadataSource is the part of the Helius client the resolver needs.
type MetadataSource interface {
	Enabled() bool
	TokenMetadata(ctx context.Context, mint string) (*helius.TokenMetadata, error)
}

type heliusProvider struct {
	client MetadataSource
}

func NewHeliusProvider(client MetadataSource) Provider {
	return &heliusProvider{client: client}
}

func (p *heliusProvider) Name() string { return models.SourceHelius }

func (p *heliusProvider) Lookup(ctx context.Context, mint string) (*models.Token, error) {
	if !p.client.Enabled() {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, constants.HeliusTimeout)
	defer cancel()

	md, err := p.client.TokenMetadata(ctx, mint)
	if err != nil || md == nil {
		return nil, err
	}

	t := &models.Token{
		Address:  firstNonEmpty(md.Mint, mint),
		Name:     firstNonEmpty(md.DisplayName(), "Token "+short(mint)+"..."),
		Symbol:   firstNonEmpty(md.DisplaySymbol(), "TOKEN_"+short(mint)),
		Decimals: 6,
		LogoURI:  NormalizeLogo(md.ImageURI()),
		Tags:     md.Tags,
		Source:   models.SourceHelius,
	}
	if md.Decimals != nil {
		t.Decimals = *md.Decimals
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return t, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
