package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/newthinker/marketlens/internal/api/response"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/storage/signal"
)

// DefaultSignalLimit is the page size when limit is absent.
const DefaultSignalLimit = 50

// SignalsHandler serves routed signals from the signal store.
type SignalsHandler struct {
	store signal.Store
}

// NewSignalsHandler creates a new signals handler.
func NewSignalsHandler(store signal.Store) *SignalsHandler {
	return &SignalsHandler{store: store}
}

// parseTime accepts RFC 3339 timestamps or bare dates.
func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func badParam(name string, err error) error {
	return core.WrapError(core.ErrInvalidRequest, fmt.Errorf("%s: %w", name, err))
}

// signalFilter reads the list query. Absent parameters keep their zero
// value; malformed ones are rejected rather than ignored.
func signalFilter(q url.Values) (signal.ListFilter, error) {
	f := signal.ListFilter{
		Symbol:   q.Get("symbol"),
		Strategy: q.Get("strategy"),
		Action:   core.Action(q.Get("action")),
		Limit:    DefaultSignalLimit,
	}

	var err error
	for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
		if v := q.Get(name); v != "" {
			if *dst, err = parseTime(v); err != nil {
				return f, badParam(name, err)
			}
		}
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(name); v != "" {
			if *dst, err = strconv.Atoi(v); err != nil || *dst < 0 {
				return f, badParam(name, fmt.Errorf("want a non-negative integer, got %q", v))
			}
		}
	}
	if v := q.Get("min_confidence"); v != "" {
		if f.MinConfidence, err = strconv.ParseFloat(v, 64); err != nil || f.MinConfidence < 0 || f.MinConfidence > 1 {
			return f, badParam("min_confidence", fmt.Errorf("want a number in [0,1], got %q", v))
		}
	}
	if f.Limit == 0 {
		f.Limit = DefaultSignalLimit
	}
	return f.Normalize(), nil
}

// List handles GET /api/v1/signals.
func (h *SignalsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := signalFilter(r.URL.Query())
	if err != nil {
		response.Fail(w, err)
		return
	}

	signals, err := h.store.List(r.Context(), filter)
	if err != nil {
		response.Fail(w, err)
		return
	}
	total, err := h.store.Count(r.Context(), filter)
	if err != nil {
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"signals": signals,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// GetByID handles GET /api/v1/signals/{id}.
func (h *SignalsHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	sig, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, sig)
}
