// Package middleware holds HTTP middleware specific to the API surface.
package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/newthinker/marketlens/internal/api/response"
	"github.com/newthinker/marketlens/internal/core"
)

const (
	// APIKeyHeader carries the client API key.
	APIKeyHeader = "X-API-Key"
	// APIKeyParam is accepted on GET requests, for EventSource clients
	// that cannot set headers.
	APIKeyParam = "api_key"
)

// APIKeyAuth accepts any of keys from the X-API-Key header, a bearer token
// or the api_key query parameter on GET. Empty keys are ignored; with none
// left, authentication is disabled.
func APIKeyAuth(keys ...string) func(http.Handler) http.Handler {
	var accepted [][]byte
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			accepted = append(accepted, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(accepted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := credential(r)
			if provided == "" {
				deny(w, "missing API key")
				return
			}
			if !matches(accepted, []byte(provided)) {
				deny(w, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func credential(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get(APIKeyParam)
	}
	return ""
}

// matches compares against every key so timing does not reveal which one hit.
func matches(accepted [][]byte, provided []byte) bool {
	ok := 0
	for _, k := range accepted {
		ok |= subtle.ConstantTimeCompare(provided, k)
	}
	return ok == 1
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="marketlens"`)
	response.Error(w, http.StatusUnauthorized, core.WrapError(core.ErrAuth, errors.New(msg)))
}
