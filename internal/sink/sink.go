// Package sink defines output backends for canvaswatch events.
package sink

import (
	"context"

	"github.com/hazyhaar/canvaswatch/mutation"
)

// Sink is the output interface. Implementations deliver captured events to
// different backends (stdout, webhook, SQLite, in-process callback).
type Sink interface {
	Send(ctx context.Context, ev mutation.Event) error
	Close() error
}
