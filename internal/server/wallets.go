package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bankii-labs/bankiiswap/internal/favorites"
	"github.com/bankii-labs/bankiiswap/internal/history"
	"github.com/bankii-labs/bankiiswap/internal/models"
)

func walletParam(c echo.Context) string {
	return strings.TrimSpace(c.Param("wallet"))
}

// HistoryList returns the wallet's most recent swaps, newest first
func (h *Handlers) HistoryList(c echo.Context) error {
	wallet := walletParam(c)
	if wallet == "" {
		return h.err(c, http.StatusBadRequest, "wallet required", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	entries, err := h.History.List(ctx, wallet)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to load history", map[string]any{"err": err.Error()})
	}
	if entries == nil {
		entries = []models.SwapHistoryEntry{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{Wallet: wallet, Entries: entries})
}

// HistoryAdd prepends a swap to the wallet's history
func (h *Handlers) HistoryAdd(c echo.Context) error {
	wallet := walletParam(c)

	var entry models.SwapHistoryEntry
	if err := c.Bind(&entry); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if strings.TrimSpace(entry.TxID) == "" {
		return h.err(c, http.StatusBadRequest, "txId required", map[string]any{"txId": "required"})
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.History.Add(ctx, wallet, entry); err != nil {
		if errors.Is(err, history.ErrInvalidWallet) {
			return h.err(c, http.StatusBadRequest, "wallet required", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to save history", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusCreated, entry)
}

// FavoritesList returns the wallet's favorite mints
func (h *Handlers) FavoritesList(c echo.Context) error {
	wallet := walletParam(c)
	if wallet == "" {
		return h.err(c, http.StatusBadRequest, "wallet required", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	mints, err := h.Favorites.List(ctx, wallet)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to load favorites", map[string]any{"err": err.Error()})
	}
	if mints == nil {
		mints = []string{}
	}
	return c.JSON(http.StatusOK, FavoritesResponse{Wallet: wallet, Mints: mints})
}

// FavoritesAdd marks a mint as favorite
func (h *Handlers) FavoritesAdd(c echo.Context) error {
	var req FavoriteRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	mint := strings.TrimSpace(req.Mint)

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Favorites.Add(ctx, walletParam(c), mint); err != nil {
		return h.favoritesErr(c, err)
	}
	return c.JSON(http.StatusOK, FavoriteToggleResponse{Mint: mint, Favorite: true})
}

// FavoritesRemove unmarks a mint
func (h *Handlers) FavoritesRemove(c echo.Context) error {
	mint := strings.TrimSpace(c.Param("mint"))

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Favorites.Remove(ctx, walletParam(c), mint); err != nil {
		return h.favoritesErr(c, err)
	}
	return c.JSON(http.StatusOK, FavoriteToggleResponse{Mint: mint, Favorite: false})
}

func (h *Handlers) favoritesErr(c echo.Context, err error) error {
	switch {
	case errors.Is(err, favorites.ErrInvalidWallet):
		return h.err(c, http.StatusBadRequest, "wallet required", nil)
	case errors.Is(err, favorites.ErrInvalidMint):
		return h.err(c, http.StatusBadRequest, "invalid token mint", nil)
	default:
		return h.err(c, http.StatusInternalServerError, "failed to update favorites", map[string]any{"err": err.Error()})
	}
}

// PortfolioGet values every token the wallet has swapped
func (h *Handlers) PortfolioGet(c echo.Context) error {
	wallet := walletParam(c)
	if wallet == "" {
		return h.err(c, http.StatusBadRequest, "wallet required", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	p, err := h.Portfolio.ForWallet(ctx, wallet)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to build portfolio", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, p)
}
