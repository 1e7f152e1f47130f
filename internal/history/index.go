package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name       TEXT PRIMARY KEY,
	digest     TEXT NOT NULL,
	size       INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	seq    INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL DEFAULT '',
	kind   TEXT NOT NULL,
	ts     INTEGER NOT NULL,
	line   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS events_kind ON events(kind);
CREATE INDEX IF NOT EXISTS events_run ON events(run_id);
`

// Index is a SQLite view over the snapshot directory and event log. It is
// derived data; Reindex rebuilds it from the files.
type Index struct {
	conn *sql.DB
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*Index, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history index: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping history index: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	conn.Exec("PRAGMA busy_timeout=5000")

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}
	return &Index{conn: conn}, nil
}

// Close closes the database.
func (ix *Index) Close() error {
	return ix.conn.Close()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// AddSnapshot upserts one snapshot row.
func (ix *Index) AddSnapshot(s SnapshotInfo) error {
	return addSnapshot(ix.conn, s)
}

func addSnapshot(db execer, s SnapshotInfo) error {
	_, err := db.Exec(`INSERT INTO snapshots (name, digest, size, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET digest = excluded.digest, size = excluded.size, created_at = excluded.created_at`,
		s.Name, s.Digest, s.Size, s.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("indexing snapshot %s: %w", s.Name, err)
	}
	return nil
}

// AddEvent appends one event row. line is the exact log line.
func (ix *Index) AddEvent(e Event, line string) error {
	return addEvent(ix.conn, e, line)
}

func addEvent(db execer, e Event, line string) error {
	_, err := db.Exec(`INSERT INTO events (run_id, kind, ts, line) VALUES (?, ?, ?, ?)`,
		e.RunID, e.Kind, e.TS.UnixMilli(), line)
	if err != nil {
		return fmt.Errorf("indexing event %s: %w", e.Kind, err)
	}
	return nil
}

// Reindex drops every row and rebuilds the index from the store's files in
// one transaction.
func (ix *Index) Reindex(s *Store) (snapshots, events int, err error) {
	snaps, err := s.ListSnapshots()
	if err != nil {
		return 0, 0, err
	}
	lines, err := s.readLines()
	if err != nil {
		return 0, 0, err
	}

	tx, err := ix.conn.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("starting reindex: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{"DELETE FROM snapshots", "DELETE FROM events", "DELETE FROM sqlite_sequence WHERE name = 'events'"} {
		if _, err := tx.Exec(q); err != nil {
			return 0, 0, fmt.Errorf("clearing index: %w", err)
		}
	}
	for _, sn := range snaps {
		if err := addSnapshot(tx, sn); err != nil {
			return 0, 0, err
		}
	}
	for _, line := range lines {
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if err := addEvent(tx, e, string(line)); err != nil {
			return 0, 0, err
		}
		events++
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing reindex: %w", err)
	}
	return len(snaps), events, nil
}

// Snapshots returns indexed snapshots, newest first.
func (ix *Index) Snapshots() ([]SnapshotInfo, error) {
	rows, err := ix.conn.Query(`SELECT name, digest, size, created_at FROM snapshots ORDER BY name DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var s SnapshotInfo
		var created int64
		if err := rows.Scan(&s.Name, &s.Digest, &s.Size, &created); err != nil {
			return nil, err
		}
		s.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// EventCounts returns the number of indexed events per kind.
func (ix *Index) EventCounts() (map[string]int, error) {
	rows, err := ix.conn.Query(`SELECT kind, COUNT(*) FROM events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		out[kind] = n
	}
	return out, rows.Err()
}

// LastEvent returns the most recent event of kind, or nil.
func (ix *Index) LastEvent(kind string) (*Event, error) {
	var line string
	err := ix.conn.QueryRow(`SELECT line FROM events WHERE kind = ? ORDER BY seq DESC LIMIT 1`, kind).Scan(&line)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last %s: %w", kind, err)
	}
	var e Event
	if err := json.Unmarshal([]byte(line), &e); err != nil {
		return nil, err
	}
	return &e, nil
}
