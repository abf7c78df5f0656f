package llm

import (
	"net/http"

	"github.com/newthinker/marketlens/internal/core"
)

// Classify wraps a backend failure that carried an HTTP status. Rate limits
// and rejected keys keep their own kinds; everything else is ErrLLMFailed.
func Classify(provider string, status int, err error) error {
	kind := core.ErrLLMFailed
	switch {
	case status == http.StatusTooManyRequests:
		kind = core.ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = core.ErrAuth
	}
	return core.NewProviderError(provider, kind, status, err)
}
