package sink

import (
	"context"

	"github.com/hazyhaar/canvaswatch/mutation"
)

// EventFunc is called for each event (in-process, zero serialisation).
type EventFunc func(ctx context.Context, ev mutation.Event) error

// Callback delivers events via Go function calls. This is the fire-and-
// forget downstream path for consumers living in the same binary.
type Callback struct {
	onEvent EventFunc
}

// NewCallback creates a Callback sink. The handler may be nil.
func NewCallback(onEvent EventFunc) *Callback {
	return &Callback{onEvent: onEvent}
}

func (c *Callback) Send(ctx context.Context, ev mutation.Event) error {
	if c.onEvent != nil {
		return c.onEvent(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
