// Package noop provides a Publisher that drops every event, for
// deployments without a message broker.
package noop

import (
	"context"

	"github.com/google/uuid"
)

// Publisher discards all published events.
type Publisher struct{}

// New creates a no-op publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish drops the payload and returns a synthetic message id.
func (*Publisher) Publish(_ context.Context, _ string, _ any) (string, error) {
	return uuid.NewString(), nil
}
