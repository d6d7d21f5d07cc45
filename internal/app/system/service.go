// Package system defines the lifecycle contract shared by long-running
// components and exposes host-level observations used in operational
// diagnostics.
package system

import "context"

// Service represents a lifecycle-managed component. Background components
// implement this interface so the application can start and stop them
// deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
