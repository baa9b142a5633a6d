// Package inbound defines the inbound port interfaces for the judgment gate.
// Inbound adapters (HTTP) implement these interfaces.
package inbound

import (
	"context"
)

// Transport is an inbound adapter that accepts evaluation requests.
type Transport interface {
	// Start begins accepting requests.
	// Blocks until context is cancelled or an error occurs.
	// Returns nil on graceful shutdown, error on failure.
	Start(ctx context.Context) error

	// Close gracefully shuts down the transport and cleans up resources.
	Close() error
}
