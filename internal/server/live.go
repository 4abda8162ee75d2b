package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	liveWriteWait  = 10 * time.Second
	livePingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The feed is public and read-only.
	CheckOrigin: func(*http.Request) bool { return true },
}

// LiveSwaps streams logged swaps over a websocket. ?wallet= narrows the feed to one wallet.
func (h *Handlers) LiveSwaps(c echo.Context) error {
	if h.Live == nil {
		return h.err(c, http.StatusServiceUnavailable, "live feed not configured", nil)
	}
	wallet := strings.TrimSpace(c.QueryParam("wallet"))

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.Logger.WithError(err).Debug("websocket upgrade failed")
		return nil
	}
	defer conn.Close()

	// Hijacked connections keep whatever deadlines the http server had set.
	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	h.Metrics.RecordLiveConnectionChange(1)
	defer h.Metrics.RecordLiveConnectionChange(-1)

	shutdown := h.feedContext()
	ctx, cancel := context.WithCancel(shutdown)
	defer cancel()
	defer func() {
		if shutdown.Err() != nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(liveWriteWait))
		}
	}()

	swaps, err := h.Live.SubscribeSwaps(ctx)
	if err != nil {
		h.Logger.WithError(err).Warn("live feed subscribe failed")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(liveWriteWait))
		return nil
	}

	// The client never sends data; reading surfaces its close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-swaps:
			if !ok {
				return nil
			}
			if wallet != "" && l.WalletAddress != wallet {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
			if err := conn.WriteJSON(l); err != nil {
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return nil
			}
		}
	}
}
