// Package execution places limit orders and works them to completion.
package execution

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stoilsteve-hub/MyAIBotSteve/internal/types"
)

// Executor works an order intent until it fills, times out, or fails.
type Executor interface {
	// Execute places and manages the order described by intent. A clean
	// no-fill timeout returns a non-nil outcome with TimedOut set and a
	// nil error; errors are reserved for API failures.
	Execute(ctx context.Context, intent types.OrderIntent) (*types.OrderOutcome, error)
}

// NewClientOrderID generates a unique client order ID with an embedded
// timestamp for log correlation.
func NewClientOrderID() string {
	return time.Now().UTC().Format("20060102-150405") + "-" + uuid.New().String()[:8]
}
