package history

import (
	"archive/tar"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"projectgraph/internal/cas"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	cache := t.TempDir()
	return &Store{
		Dir:        filepath.Join(cache, "history"),
		EventsPath: filepath.Join(cache, "events.ndjson"),
	}
}

var t0 = time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

func TestAppendEvent_AppendsLines(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.AppendEvent(Event{TS: t0, RunID: "r1", Kind: EventGraphGenerated, Payload: map[string]any{"observedCounts": map[string]int{"entities": 3}}}))
	first, err := os.ReadFile(s.EventsPath)
	require.NoError(t, err)

	require.NoError(t, s.AppendEvent(Event{TS: t0.Add(time.Second), RunID: "r2", Kind: EventAuditPerformed}))
	both, err := os.ReadFile(s.EventsPath)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(both, first), "earlier lines are never rewritten")
	assert.Equal(t, 2, strings.Count(string(both), "\n"))
	assert.Equal(t, `{"event":"graph_generated","observedCounts":{"entities":3},"runId":"r1","ts":"2025-03-04T05:06:07Z"}`+"\n", string(first))

	events, err := s.ReadEvents()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "r1", events[0].RunID)
	assert.Equal(t, EventAuditPerformed, events[1].Kind)
	assert.True(t, events[1].TS.Equal(t0.Add(time.Second)))
	assert.Equal(t, map[string]any{"entities": float64(3)}, events[0].Payload["observedCounts"])
}

func TestSnapshot_NameAndSameSecondOverwrite(t *testing.T) {
	s := newStore(t)

	name, err := s.Snapshot([]byte(`{"v":1}`), t0)
	require.NoError(t, err)
	assert.Equal(t, "graph-20250304050607.json", name)

	again, err := s.Snapshot([]byte(`{"v":2}`), t0.Add(400*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, name, again)

	_, err = s.Snapshot([]byte(`{"v":3}`), t0.Add(time.Second))
	require.NoError(t, err)

	snaps, err := s.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "graph-20250304050607.json", snaps[0].Name)
	assert.True(t, snaps[0].CreatedAt.Equal(t0))

	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data))

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestSnapshotName_UsesUTC(t *testing.T) {
	local := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3*3600))
	assert.Equal(t, "graph-20250102000405.json", SnapshotName(local))
}

func TestRecord_IsBestEffort(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	var logs bytes.Buffer
	s := &Store{
		Dir:        filepath.Join(blocker, "history"),
		EventsPath: filepath.Join(blocker, "events.ndjson"),
		Logger:     slog.New(slog.NewTextHandler(&logs, nil)),
	}

	s.Record([]byte(`{}`), Event{TS: t0, Kind: EventGraphGenerated})

	assert.Contains(t, logs.String(), "snapshot not written")
	assert.Contains(t, logs.String(), "event not written")

	_, err := s.Snapshot([]byte(`{}`), t0)
	var hwe *HistoryWriteError
	assert.ErrorAs(t, err, &hwe)
}

func TestReadEvents_MissingLogIsEmpty(t *testing.T) {
	events, err := newStore(t).ReadEvents()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReadEvents_MalformedLine(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.EventsPath, []byte("{\"event\":\"a\",\"ts\":\"2025-01-01T00:00:00Z\"}\n\nnot json\n"), 0644))
	_, err := s.ReadEvents()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}

func TestIndex_TracksWritesAndReindexes(t *testing.T) {
	s := newStore(t)
	ix, err := OpenIndex(filepath.Join(filepath.Dir(s.Dir), "history.sqlite"))
	require.NoError(t, err)
	defer ix.Close()
	s.Index = ix

	s.Record([]byte(`{"a":1}`), Event{TS: t0, RunID: "r1", Kind: EventGraphGenerated})
	s.Record(nil, Event{TS: t0.Add(time.Minute), RunID: "r2", Kind: EventAuditPerformed})
	s.Record([]byte(`{"a":2}`), Event{TS: t0.Add(time.Hour), RunID: "r3", Kind: EventGraphGenerated})

	snaps, err := ix.Snapshots()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "graph-20250304060607.json", snaps[0].Name, "newest first")

	// Digests streamed from the files match the ones recorded at write time.
	onDisk, err := s.ListSnapshots()
	require.NoError(t, err)
	require.Len(t, onDisk, 2)
	assert.Equal(t, cas.Blake3HashHex([]byte(`{"a":2}`)), onDisk[1].Digest)
	assert.Equal(t, int64(7), onDisk[1].Size)
	assert.Equal(t, snaps[0].Digest, onDisk[1].Digest)

	counts, err := ix.EventCounts()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{EventGraphGenerated: 2, EventAuditPerformed: 1}, counts)

	last, err := ix.LastEvent(EventGraphGenerated)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "r3", last.RunID)

	// Rebuild from files after the index lost a row.
	_, err = ix.conn.Exec("DELETE FROM events WHERE run_id = 'r1'")
	require.NoError(t, err)
	nSnaps, nEvents, err := ix.Reindex(s)
	require.NoError(t, err)
	assert.Equal(t, 2, nSnaps)
	assert.Equal(t, 3, nEvents)

	counts, err = ix.EventCounts()
	require.NoError(t, err)
	assert.Equal(t, 2, counts[EventGraphGenerated])

	none, err := ix.LastEvent(EventCommitGrouped)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestExport(t *testing.T) {
	s := newStore(t)
	_, err := s.Snapshot([]byte(`{"a":1}`), t0)
	require.NoError(t, err)
	require.NoError(t, s.AppendEvent(Event{TS: t0, Kind: EventGraphGenerated}))

	var buf bytes.Buffer
	n, err := s.Export(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dec, err := zstd.NewReader(&buf)
	require.NoError(t, err)
	defer dec.Close()

	tr := tar.NewReader(dec)
	contents := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		contents[hdr.Name] = string(data)
	}

	names := make([]string, 0, len(contents))
	for k := range contents {
		names = append(names, k)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"events.ndjson", "history/graph-20250304050607.json"}, names)
	assert.Equal(t, `{"a":1}`, contents["history/graph-20250304050607.json"])
}
