package adapter

import "context"

// Adapter represents a runtime adapter for the application
type Adapter interface {
	// Start runs the adapter until ctx is cancelled or it fails.
	Start(ctx context.Context) error
}
