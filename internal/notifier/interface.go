// Package notifier fans routed signals out to delivery channels. A
// Registry holds the channels and bounds each delivery with a timeout.
package notifier

import (
	"context"

	"github.com/newthinker/marketlens/internal/core"
)

// Notifier is one delivery channel. Name must be unique within a Registry.
type Notifier interface {
	Name() string
	Send(ctx context.Context, signal core.Signal) error
	// SendBatch delivers a refresh cycle's signals together. An empty
	// slice sends nothing.
	SendBatch(ctx context.Context, signals []core.Signal) error
}
