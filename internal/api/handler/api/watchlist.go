package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/newthinker/marketlens/internal/api/response"
	"github.com/newthinker/marketlens/internal/app"
	"github.com/newthinker/marketlens/internal/core"
)

// WatchlistApp is the slice of app.App the watchlist routes drive.
type WatchlistApp interface {
	GetWatchlistItems() []app.WatchlistItem
	AddToWatchlist(symbol string) (bool, error)
	RemoveFromWatchlist(symbol string) bool
	RunOnce(ctx context.Context) int
	GetStats() app.Stats
}

type WatchlistHandler struct {
	app WatchlistApp
}

// NewWatchlistHandler creates a new watchlist handler.
func NewWatchlistHandler(app WatchlistApp) *WatchlistHandler {
	return &WatchlistHandler{app: app}
}

// AddRequest is the body of POST /api/v1/watchlist.
type AddRequest struct {
	Symbol string `json:"symbol"`
}

// maxAddBody caps the add request body.
const maxAddBody = 1 << 10

func decodeAdd(w http.ResponseWriter, r *http.Request) (string, error) {
	var req AddRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAddBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return "", core.WrapError(core.ErrInvalidRequest, err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return "", core.WrapError(core.ErrInvalidSymbol, errors.New("symbol is required"))
	}
	return symbol, nil
}

// List handles GET /api/v1/watchlist.
func (h *WatchlistHandler) List(w http.ResponseWriter, r *http.Request) {
	items := h.app.GetWatchlistItems()
	response.JSON(w, http.StatusOK, map[string]any{
		"symbols": items,
		"count":   len(items),
	})
}

// Add handles POST /api/v1/watchlist. A new symbol answers 201, one that
// is already watched answers 200.
func (h *WatchlistHandler) Add(w http.ResponseWriter, r *http.Request) {
	symbol, err := decodeAdd(w, r)
	if err == nil {
		var added bool
		if added, err = h.app.AddToWatchlist(symbol); err == nil {
			status := http.StatusOK
			if added {
				status = http.StatusCreated
			}
			response.JSON(w, status, map[string]any{"symbol": symbol, "added": added})
			return
		}
	}
	response.Fail(w, err)
}

// Remove handles DELETE /api/v1/watchlist/{symbol}.
func (h *WatchlistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	if !h.app.RemoveFromWatchlist(symbol) {
		response.Fail(w, core.WrapError(core.ErrNotFound, fmt.Errorf("%s is not watched", symbol)))
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"symbol": symbol, "removed": true})
}

// Refresh handles POST /api/v1/watchlist/refresh by starting one refresh
// cycle in the background.
func (h *WatchlistHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	items := h.app.GetWatchlistItems()

	go h.app.RunOnce(context.Background())

	response.JSON(w, http.StatusAccepted, map[string]any{
		"triggered":     true,
		"symbols_count": len(items),
	})
}

// Stats handles GET /api/v1/stats.
func (h *WatchlistHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.app.GetStats())
}
