package canvaswatch

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/canvaswatch/internal/sink"
	"github.com/hazyhaar/canvaswatch/mutation"
)

// Sink is the output interface for captured events.
type Sink = sink.Sink

// EventFunc is called for each event by the callback sink.
type EventFunc = sink.EventFunc

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink with no serialisation.
func NewCallbackSink(onEvent func(ctx context.Context, ev mutation.Event) error) Sink {
	return sink.NewCallback(onEvent)
}

// NewStoreSink opens an SQLite event journal at path. The caller imports
// the driver: import _ "modernc.org/sqlite".
func NewStoreSink(path string) (Sink, error) {
	return sink.NewStore(path)
}
