package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

func TestJSON_Success(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"hello": "world"}

	JSON(w, http.StatusOK, data)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected application/json content type")
	}

	var resp SuccessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data == nil {
		t.Error("expected data in response")
	}
	if resp.Meta.Timestamp.IsZero() {
		t.Error("expected timestamp in meta")
	}
}

func TestError_WithCoreError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusBadRequest, core.ErrConfigInvalid)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "CONFIG_INVALID" {
		t.Errorf("expected CONFIG_INVALID, got %s", resp.Error.Code)
	}
	if resp.Error.Cause != "" {
		t.Errorf("expected no cause, got %q", resp.Error.Cause)
	}
}

func TestError_WrappedCause(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusServiceUnavailable, core.WrapError(core.ErrNoDataAvailable, errors.New("all stages failed")))

	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "NO_DATA_AVAILABLE" || resp.Error.Cause != "all stages failed" {
		t.Errorf("unexpected error body %+v", resp.Error)
	}
}

func TestError_PlainError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusInternalServerError, errors.New("boom"))

	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Code != "INTERNAL_ERROR" || resp.Error.Cause != "" {
		t.Errorf("internal errors should not leak, got %+v", resp.Error)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.NewProviderError("finnhub", core.ErrNotFound, 404, nil), http.StatusNotFound},
		{core.NewProviderError("finnhub", core.ErrRateLimited, 429, nil), http.StatusTooManyRequests},
		{core.NewProviderError("finnhub", core.ErrAuth, 401, nil), http.StatusUnauthorized},
		{core.WrapError(core.ErrInvalidSymbol, nil), http.StatusBadRequest},
		{core.WrapError(core.ErrConfigMissing, nil), http.StatusBadRequest},
		{core.WrapError(core.ErrInvalidRequest, errors.New("limit")), http.StatusBadRequest},
		{core.WrapError(core.ErrNoDataAvailable, nil), http.StatusServiceUnavailable},
		{core.NewProviderError("polygon", core.ErrNetwork, 503, nil), http.StatusBadGateway},
		{core.NewProviderError("polygon", core.ErrMalformedResponse, 200, nil), http.StatusBadGateway},
		{core.WrapError(core.ErrJobNotFound, nil), http.StatusNotFound},
		{fmt.Errorf("twitter topic: %w", core.NewProviderError("twitter", core.ErrRateLimited, 429, nil)), http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFail_SetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	pe := core.NewProviderError("alpha_vantage", core.ErrRateLimited, 429, nil)
	pe.RetryAfter = 1500 * time.Millisecond

	Fail(w, pe)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Errorf("expected Retry-After 2, got %q", got)
	}
}

func TestRelayError(t *testing.T) {
	limited := core.NewProviderError("twitter", core.ErrRateLimited, 429, nil)
	limited.RetryAfter = 60 * time.Second

	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter int64
	}{
		{"rate limited", limited, http.StatusTooManyRequests, "", 60},
		{"auth", core.NewProviderError("twitter", core.ErrAuth, 401, nil), http.StatusUnauthorized, "", 0},
		{"not found", core.NewProviderError("twitter", core.ErrNotFound, 404, nil), http.StatusNotFound, "", 0},
		{"network", core.NewProviderError("twitter", core.ErrNetwork, 502, nil), http.StatusBadGateway, "NETWORK_ERROR", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RelayError(w, tt.err)

			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
			var body RelayErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error == "" || body.Code != tt.code || body.RetryAfter != tt.retryAfter {
				t.Errorf("unexpected relay body %+v", body)
			}
		})
	}
}
