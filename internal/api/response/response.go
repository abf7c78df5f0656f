// Package response writes the JSON envelopes used by every API handler.
package response

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

// Meta contains response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
}

// SuccessResponse is the standard success response format.
type SuccessResponse struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// RelayErrorResponse is the flat error body of the Twitter relay routes.
type RelayErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	RetryAfter int64  `json:"retryAfter,omitempty"` // seconds
}

// JSON writes a success response with data.
func JSON(w http.ResponseWriter, status int, data any) {
	Raw(w, status, SuccessResponse{
		Data: data,
		Meta: Meta{Timestamp: time.Now().UTC()},
	})
}

// Raw writes v as JSON without the envelope.
func Raw(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error to its HTTP status by taxonomy kind.
func StatusFor(err error) int {
	switch core.KindOf(err) {
	case core.ErrNotFound, core.ErrJobNotFound:
		return http.StatusNotFound
	case core.ErrRateLimited:
		return http.StatusTooManyRequests
	case core.ErrAuth:
		return http.StatusUnauthorized
	case core.ErrInvalidSymbol, core.ErrInvalidRequest, core.ErrConfigInvalid, core.ErrConfigMissing:
		return http.StatusBadRequest
	case core.ErrNoDataAvailable:
		return http.StatusServiceUnavailable
	case core.ErrNetwork, core.ErrMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Fail writes err with the status StatusFor picks, adding Retry-After to
// rate-limit responses when the upstream supplied one.
func Fail(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusTooManyRequests {
		setRetryAfter(w, err)
	}
	Error(w, status, err)
}

// Error writes an error response.
func Error(w http.ResponseWriter, status int, err error) {
	detail := ErrorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	}

	if kind := core.KindOf(err); kind != nil {
		detail.Code = kind.Code
		detail.Message = kind.Message
	}
	var coreErr *core.Error
	switch {
	case errors.As(err, &coreErr) && err == error(coreErr):
		if coreErr.Cause != nil {
			detail.Cause = coreErr.Cause.Error()
		}
	case err != nil && detail.Code != "INTERNAL_ERROR":
		detail.Cause = err.Error()
	}

	Raw(w, status, ErrorResponse{Error: detail})
}

// RelayError writes err in the relay's flat format. Rate-limit responses
// carry retryAfter; unexpected failures carry the error code.
func RelayError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	body := RelayErrorResponse{Error: relayMessage(status, err)}

	switch status {
	case http.StatusTooManyRequests:
		body.RetryAfter = setRetryAfter(w, err)
	case http.StatusNotFound, http.StatusUnauthorized:
	default:
		if kind := core.KindOf(err); kind != nil {
			body.Code = kind.Code
		}
	}
	Raw(w, status, body)
}

func relayMessage(status int, err error) string {
	switch status {
	case http.StatusTooManyRequests:
		return "Rate limit exceeded. Please try again in a few minutes."
	case http.StatusUnauthorized:
		return "Twitter API authentication failed. Please check the bearer token."
	case http.StatusNotFound:
		return "Not found"
	}
	return err.Error()
}

func setRetryAfter(w http.ResponseWriter, err error) int64 {
	d := core.RetryAfter(err)
	if d <= 0 {
		return 0
	}
	secs := int64(math.Ceil(d.Seconds()))
	w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	return secs
}
