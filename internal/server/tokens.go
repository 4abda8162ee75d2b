package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/bankii-labs/bankiiswap/internal/constants"
	"github.com/bankii-labs/bankiiswap/internal/jupiter"
	"github.com/bankii-labs/bankiiswap/internal/models"
	"github.com/bankii-labs/bankiiswap/internal/resolver"
	"github.com/bankii-labs/bankiiswap/internal/tokens"
)

const verifiedTag = "verified"

func catalogToken(t jupiter.TokenInfo, verified bool) models.Token {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return models.Token{
		Address:  t.Mint(),
		Name:     t.Name,
		Symbol:   t.Symbol,
		Decimals: t.DecimalsOr(6),
		LogoURI:  resolver.NormalizeLogo(t.Logo()),
		Verified: verified,
		Tags:     tags,
		Source:   models.SourceJupiter,
	}
}

// TokenList serves the verified token list, or a search when ?search= is set
func (h *Handlers) TokenList(c echo.Context) error {
	if q := strings.TrimSpace(c.QueryParam("search")); q != "" {
		return h.searchTokens(c, q)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	list, err := h.Catalog.TokensByTag(ctx, verifiedTag)
	if err != nil {
		h.Logger.WithError(err).Error("failed to fetch verified token list")
		return c.JSON(http.StatusInternalServerError, TokenListResponse{
			Error:             "Failed to fetch token list from provider",
			Tokens:            []models.Token{},
			VerifiedAddresses: []string{},
		})
	}

	out := TokenListResponse{
		Tokens:            make([]models.Token, 0, len(list)),
		VerifiedAddresses: make([]string, 0, len(list)),
	}
	for _, t := range list {
		out.Tokens = append(out.Tokens, catalogToken(t, true))
		out.VerifiedAddresses = append(out.VerifiedAddresses, t.Mint())
	}
	return c.JSON(http.StatusOK, out)
}

// searchTokens asks the catalog and falls back to the bundled list when it fails.
func (h *Handlers) searchTokens(c echo.Context, q string) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	var verified, found []jupiter.TokenInfo
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		verified, err = h.Catalog.TokensByTag(gctx, verifiedTag)
		return err
	})
	g.Go(func() error {
		var err error
		found, err = h.Catalog.SearchTokens(gctx, q)
		return err
	})

	if err := g.Wait(); err != nil {
		h.Logger.WithError(err).WithField("query", q).Warn("token search failed, using local list")
		return c.JSON(http.StatusOK, TokenSearchResponse{
			Query:             q,
			Results:           h.Tokens.Search(q),
			VerifiedAddresses: tokens.KnownVerifiedAddresses(),
			Fallback:          true,
		})
	}

	verifiedSet := make(map[string]bool, len(verified))
	addrs := make([]string, 0, len(verified))
	for _, t := range verified {
		if !verifiedSet[t.Mint()] {
			verifiedSet[t.Mint()] = true
			addrs = append(addrs, t.Mint())
		}
	}

	results := make([]models.Token, 0, len(found))
	for _, t := range found {
		isVerified := verifiedSet[t.Mint()] || t.IsVerifiedToken() || tokens.IsKnownVerified(t.Mint())
		results = append(results, catalogToken(t, isVerified))
	}

	return c.JSON(http.StatusOK, TokenSearchResponse{
		Query:             q,
		Results:           results,
		VerifiedAddresses: addrs,
	})
}

// TokenSearch resolves a pasted mint address through the metadata providers
func (h *Handlers) TokenSearch(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), constants.TokenSearchTimeout)
	defer cancel()

	res, err := h.Resolver.Resolve(ctx, c.QueryParam("q"))
	if err != nil {
		return h.fail(c, err, "Search failed")
	}
	if !res.Found {
		return c.JSON(http.StatusNotFound, TokenNotFoundResponse{Error: "Token not found", Fallback: res.Token})
	}
	return c.JSON(http.StatusOK, res.Token)
}
