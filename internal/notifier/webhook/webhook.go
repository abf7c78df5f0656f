// Package webhook posts routed signals as JSON to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/httpx"
)

const (
	// SignatureHeader carries the hex HMAC-SHA256 of the body when a secret is set.
	SignatureHeader = "X-MarketLens-Signature"
	// DeliveryHeader carries a unique id per delivery, stable across retries.
	DeliveryHeader = "X-MarketLens-Delivery"

	defaultRetryWait = 500 * time.Millisecond
)

// Doer is the subset of an HTTP client the notifier needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tune delivery.
type Options struct {
	Headers map[string]string
	// Secret signs each body with HMAC-SHA256.
	Secret string
	// Retries is how many extra attempts a 5xx or transport failure gets.
	Retries   int
	RetryWait time.Duration
}

// Webhook delivers signals to one URL.
type Webhook struct {
	url    string
	opts   Options
	client Doer
}

// New creates a webhook notifier for url.
func New(url string, opts Options) (*Webhook, error) {
	if url == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("webhook: url is required"))
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	return &Webhook{
		url:    url,
		opts:   opts,
		client: httpx.New(30 * time.Second),
	}, nil
}

// WithClient replaces the HTTP client.
func (w *Webhook) WithClient(c Doer) *Webhook {
	w.client = c
	return w
}

func (w *Webhook) Name() string { return "webhook" }

type signalPayload struct {
	Type        string         `json:"type"`
	ID          string         `json:"id,omitempty"`
	Symbol      string         `json:"symbol"`
	Action      core.Action    `json:"action"`
	Confidence  float64        `json:"confidence"`
	Price       float64        `json:"price"`
	Reason      string         `json:"reason,omitempty"`
	Strategy    string         `json:"strategy,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GeneratedAt string         `json:"generated_at"`
}

type batchPayload struct {
	Type    string          `json:"type"`
	Count   int             `json:"count"`
	Signals []signalPayload `json:"signals"`
}

func (w *Webhook) Send(ctx context.Context, signal core.Signal) error {
	return w.post(ctx, toPayload(signal))
}

func (w *Webhook) SendBatch(ctx context.Context, signals []core.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	batch := batchPayload{Type: "batch", Count: len(signals), Signals: make([]signalPayload, len(signals))}
	for i, sig := range signals {
		batch.Signals[i] = toPayload(sig)
	}
	return w.post(ctx, batch)
}

func toPayload(s core.Signal) signalPayload {
	return signalPayload{
		Type:        "signal",
		ID:          s.ID,
		Symbol:      s.Symbol,
		Action:      s.Action,
		Confidence:  s.Confidence,
		Price:       s.Price,
		Reason:      s.Reason,
		Strategy:    s.Strategy,
		Metadata:    s.Metadata,
		GeneratedAt: s.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// retryable marks failures worth another attempt.
type retryable struct{ error }

func (w *Webhook) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}
	delivery := uuid.NewString()

	var lastErr error
	for attempt := 0; attempt <= w.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.opts.RetryWait * time.Duration(attempt)):
			}
		}

		lastErr = w.attempt(ctx, delivery, body)
		if _, again := lastErr.(retryable); !again {
			return lastErr
		}
	}
	return lastErr.(retryable).error
}

func (w *Webhook) attempt(ctx context.Context, delivery string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, delivery)
	for k, v := range w.opts.Headers {
		req.Header.Set(k, v)
	}
	if w.opts.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.opts.Secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return retryable{fmt.Errorf("webhook: request failed: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 500:
		return retryable{fmt.Errorf("webhook: server returned %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return fmt.Errorf("webhook: endpoint rejected delivery with %d", resp.StatusCode)
	}
	return nil
}
