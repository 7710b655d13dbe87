// Package mutation defines the structured types emitted by canvaswatch.
// These are the public API contract: any consumer (replay engines, custom
// pipelines) imports this package to receive and process canvas observations.
package mutation

// API identifies the drawing API family that produced a record.
type API string

const (
	API2D     API = "2d"
	APIWebGL  API = "webgl"
	APIWebGL2 API = "webgl2"
)

// Command is one structured drawing-command description. The engine never
// interprets commands; it only batches and forwards them.
type Command struct {
	Property string `json:"property"`
	Args     []any  `json:"args,omitempty"`
	Setter   bool   `json:"setter,omitempty"`
}

// Record is a single intercepted drawing call: the command plus the API
// family tag. Immutable once created; owned by whichever queue holds it.
type Record struct {
	Type    API     `json:"type"`
	Command Command `json:"command"`
}

// Event is the atomic unit emitted downstream. One event = all commands
// collected for one surface during a single rendering cycle (interception
// mode), or one synthetic redraw (sampling mode).
type Event struct {
	ID        int64     `json:"id"`   // recording id assigned by the surface registry
	Type      API       `json:"type"` // drawing API family, uniform across Commands
	Commands  []Command `json:"commands"`
	Seq       uint64    `json:"seq,omitempty"`        // monotonically increasing per session (gap detection)
	SessionID string    `json:"session_id,omitempty"` // UUIDv7 of the recording session
	Timestamp int64     `json:"timestamp,omitempty"`  // epoch milliseconds at emission
}

// SnapshotCommands builds the synthetic command sequence for a sampled
// redraw: clear the full surface, then draw the encoded bitmap at the
// origin. Downstream consumers replay it like any intercepted batch.
func SnapshotCommands(width, height int, image string) []Command {
	return []Command{
		{Property: "clearRect", Args: []any{0, 0, width, height}},
		{Property: "drawImage", Args: []any{image, 0, 0}},
	}
}
