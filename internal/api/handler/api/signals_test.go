package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/storage/signal"
)

func seedSignals(t *testing.T) (*signal.MemoryStore, string) {
	t.Helper()
	store := signal.NewMemoryStore(100)
	id, err := store.Save(context.Background(), core.Signal{
		Symbol:      "AAPL",
		Action:      core.ActionBuy,
		Confidence:  0.85,
		Strategy:    "advisor",
		GeneratedAt: testNow,
	})
	require.NoError(t, err)
	_, err = store.Save(context.Background(), core.Signal{
		Symbol:      "GOOG",
		Action:      core.ActionSell,
		Confidence:  0.7,
		Strategy:    "advisor",
		GeneratedAt: testNow.Add(-48 * time.Hour),
	})
	require.NoError(t, err)
	return store, id
}

func TestSignalsHandler_List(t *testing.T) {
	store, _ := seedSignals(t)
	handler := NewSignalsHandler(store)

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/signals", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w)
	assert.Len(t, data["signals"], 2)
	assert.EqualValues(t, 2, data["total"])
	assert.EqualValues(t, DefaultSignalLimit, data["limit"])
}

func TestSignalsHandler_ListWithFilters(t *testing.T) {
	store, _ := seedSignals(t)
	handler := NewSignalsHandler(store)

	tests := []struct {
		query string
		want  int
	}{
		{"?symbol=AAPL", 1},
		{"?action=sell", 1},
		{"?from=2024-03-01", 1},
		{"?to=2024-02-28T00:00:00Z", 1},
		{"?strategy=momentum", 0},
		{"?limit=1", 1},
		{"?symbol=aapl", 1},
		{"?min_confidence=0.8", 1},
		{"?min_confidence=0.5", 2},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/signals"+tt.query, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Len(t, decodeData(t, w)["signals"], tt.want)
		})
	}
}

func TestSignalsHandler_ListRejectsBadParams(t *testing.T) {
	store, _ := seedSignals(t)
	handler := NewSignalsHandler(store)

	for _, query := range []string{
		"?from=yesterday",
		"?to=2024-13-01",
		"?limit=ten",
		"?offset=-1",
		"?min_confidence=high",
		"?min_confidence=1.5",
	} {
		t.Run(query, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/signals"+query, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, core.ErrInvalidRequest.Code, decodeError(t, w).Code)
		})
	}
}

func TestSignalsHandler_GetByID(t *testing.T) {
	store, id := seedSignals(t)
	handler := NewSignalsHandler(store)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/"+id, nil)
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	handler.GetByID(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AAPL", decodeData(t, w)["symbol"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/signals/missing", nil)
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	handler.GetByID(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
