package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/canvaswatch/mutation"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS canvas_events (
	event_rowid  INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT    NOT NULL,
	recording_id INTEGER NOT NULL,
	type         TEXT    NOT NULL,
	seq          INTEGER NOT NULL,
	commands     TEXT    NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_canvas_events_recording
	ON canvas_events(recording_id, seq);
`

// Store persists events to an SQLite journal so a replay engine can read
// the stream back later. Production-safe pragmas are applied via EXEC
// (driver-agnostic); the caller imports the driver, e.g.
//
//	import _ "modernc.org/sqlite"
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the journal at path.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Send(ctx context.Context, ev mutation.Event) error {
	commands, err := json.Marshal(ev.Commands)
	if err != nil {
		return fmt.Errorf("store: marshal commands: %w", err)
	}

	ts := ev.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO canvas_events (session_id, recording_id, type, seq, commands, created_at)
		VALUES (?,?,?,?,?,?)`,
		ev.SessionID, ev.ID, string(ev.Type), ev.Seq, string(commands), ts)
	if err != nil {
		return fmt.Errorf("store: insert event: %w", err)
	}
	return nil
}

// EventsByRecording reads back the journalled events for one recording id,
// ordered by sequence. Diagnostic/replay helper.
func (s *Store) EventsByRecording(ctx context.Context, recordingID int64) ([]mutation.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, recording_id, type, seq, commands, created_at
		FROM canvas_events WHERE recording_id = ? ORDER BY seq`, recordingID)
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var out []mutation.Event
	for rows.Next() {
		var ev mutation.Event
		var typ, commands string
		if err := rows.Scan(&ev.SessionID, &ev.ID, &typ, &ev.Seq, &commands, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		ev.Type = mutation.API(typ)
		if err := json.Unmarshal([]byte(commands), &ev.Commands); err != nil {
			return nil, fmt.Errorf("store: unmarshal commands: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) Close() error { return s.db.Close() }
