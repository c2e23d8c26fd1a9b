// Package domain defines the core business types for the broadcast
// delivery engine.
//
// Types in this package are pure value objects with no behavior beyond
// the broadcast status state machine, no database dependencies, and no
// HTTP concerns. They are the shared language between the service,
// repository, and delivery layers.
package domain
