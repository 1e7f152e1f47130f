// Package history persists the run history of the project graph: an
// append-only event log and timestamped snapshots of each compiled graph.
//
// Every write here is best-effort from the caller's point of view. Record
// logs failures and never returns them, so history can never block the
// reconciliation result.
package history

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"projectgraph/internal/cas"
)

// Event kinds written by the engine.
const (
	EventGraphGenerated = "graph_generated"
	EventAuditPerformed = "audit_performed"
	EventCommitGrouped  = "commit_grouped"
)

// Event is one line of the event log. Payload keys are flattened next to
// ts, runId and event.
type Event struct {
	TS      time.Time
	RunID   string
	Kind    string
	Payload map[string]any
}

func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Payload)+3)
	for k, v := range e.Payload {
		m[k] = v
	}
	m["ts"] = e.TS.UTC().Format(time.RFC3339Nano)
	if e.RunID != "" {
		m["runId"] = e.RunID
	}
	m["event"] = e.Kind
	return cas.CanonicalJSON(m)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if s, ok := m["ts"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("event ts: %w", err)
		}
		e.TS = t
	}
	e.RunID, _ = m["runId"].(string)
	e.Kind, _ = m["event"].(string)
	delete(m, "ts")
	delete(m, "runId")
	delete(m, "event")
	if len(m) > 0 {
		e.Payload = m
	}
	return nil
}

// HistoryWriteError wraps a failed history write. Record logs it.
type HistoryWriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *HistoryWriteError) Error() string {
	return fmt.Sprintf("history %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *HistoryWriteError) Unwrap() error { return e.Err }

// Store owns the snapshot directory and the event log.
type Store struct {
	Dir        string
	EventsPath string
	// Index, when set, is kept in step with every successful write.
	Index  *Index
	Logger *slog.Logger
}

const (
	snapshotPrefix = "graph-"
	snapshotSuffix = ".json"
)

// SnapshotName returns the file name of the snapshot taken at t.
func SnapshotName(t time.Time) string {
	return snapshotPrefix + cas.Stamp(t) + snapshotSuffix
}

func (s *Store) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// AppendEvent appends one line to the event log. Earlier lines are never
// touched.
func (s *Store) AppendEvent(e Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return &HistoryWriteError{Op: "encode event", Path: s.EventsPath, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(s.EventsPath), 0755); err != nil {
		return &HistoryWriteError{Op: "append event", Path: s.EventsPath, Err: err}
	}
	f, err := os.OpenFile(s.EventsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return &HistoryWriteError{Op: "append event", Path: s.EventsPath, Err: err}
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return &HistoryWriteError{Op: "append event", Path: s.EventsPath, Err: err}
	}
	if err := f.Close(); err != nil {
		return &HistoryWriteError{Op: "append event", Path: s.EventsPath, Err: err}
	}

	if s.Index != nil {
		if err := s.Index.AddEvent(e, string(line)); err != nil {
			s.logger().Warn("history index update failed", "error", err)
		}
	}
	return nil
}

// Snapshot writes compiled as the snapshot for time t and returns its name.
// A second snapshot in the same second replaces the first.
func (s *Store) Snapshot(compiled []byte, t time.Time) (string, error) {
	name := SnapshotName(t)
	target := filepath.Join(s.Dir, name)
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", &HistoryWriteError{Op: "snapshot", Path: target, Err: err}
	}

	tmp, err := os.CreateTemp(s.Dir, ".snapshot-*")
	if err != nil {
		return "", &HistoryWriteError{Op: "snapshot", Path: target, Err: err}
	}
	if _, err := tmp.Write(compiled); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", &HistoryWriteError{Op: "snapshot", Path: target, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", &HistoryWriteError{Op: "snapshot", Path: target, Err: err}
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", &HistoryWriteError{Op: "snapshot", Path: target, Err: err}
	}

	if s.Index != nil {
		info := SnapshotInfo{Name: name, Digest: cas.Blake3HashHex(compiled), Size: int64(len(compiled)), CreatedAt: t.UTC().Truncate(time.Second)}
		if err := s.Index.AddSnapshot(info); err != nil {
			s.logger().Warn("history index update failed", "error", err)
		}
	}
	return name, nil
}

// Record snapshots compiled and appends e. Failures are logged at WARN and
// swallowed.
func (s *Store) Record(compiled []byte, e Event) {
	if compiled != nil {
		if _, err := s.Snapshot(compiled, e.TS); err != nil {
			s.logger().Warn("snapshot not written", "error", err)
		}
	}
	if err := s.AppendEvent(e); err != nil {
		s.logger().Warn("event not written", "event", e.Kind, "error", err)
	}
}

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	Name      string
	Digest    string
	Size      int64
	CreatedAt time.Time
}

// ListSnapshots returns the snapshots on disk, oldest first.
func (s *Store) ListSnapshots() ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history dir: %w", err)
	}

	var out []SnapshotInfo
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
		created, err := time.Parse(cas.SnapshotTimeFormat, stamp)
		if err != nil {
			continue
		}
		digest, size, err := digestFile(filepath.Join(s.Dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading snapshot %s: %w", name, err)
		}
		out = append(out, SnapshotInfo{
			Name:      name,
			Digest:    digest,
			Size:      size,
			CreatedAt: created,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// digestFile streams path through BLAKE3 and returns the hex digest and size.
func digestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := cas.NewBlake3Hasher()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ReadEvents decodes the event log in order. Blank lines are skipped; a
// malformed line is an error naming its line number.
func (s *Store) ReadEvents() ([]Event, error) {
	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(lines))
	for i, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", s.EventsPath, i+1, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *Store) readLines() ([][]byte, error) {
	f, err := os.Open(s.EventsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading event log: %w", err)
	}
	return lines, nil
}
