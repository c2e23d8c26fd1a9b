// Package transport sends finished broadcast content through an
// external email provider. Adapters share one interface so the
// delivery executor never knows which provider is configured.
package transport

import (
	"context"
	"errors"
)

// Message is one outbound broadcast send.
type Message struct {
	From     string            `json:"from"`
	FromName string            `json:"from_name,omitempty"`
	To       []string          `json:"to"`
	Subject  string            `json:"subject"`
	HTML     string            `json:"html"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// Result is the provider's acknowledgement of an accepted message.
type Result struct {
	// ProviderID is the opaque message id used for later stats
	// correlation.
	ProviderID string
}

// ErrRejected indicates the provider refused the message outright.
var ErrRejected = errors.New("transport rejected message")

// Transport is the external email-sending collaborator.
type Transport interface {
	Send(ctx context.Context, msg Message) (*Result, error)
}
