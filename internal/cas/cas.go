// Package cas provides content digests and stable JSON encoding for the
// artifacts the engine persists.
package cas

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"time"

	"lukechampine.com/blake3"
)

// SnapshotTimeFormat is the fixed-width, second-granularity stamp used in
// snapshot file names (YYYYMMDDHHMMSS, UTC).
const SnapshotTimeFormat = "20060102150405"

// ISOTimeFormat is the millisecond UTC layout used in human-facing reports.
const ISOTimeFormat = "2006-01-02T15:04:05.000Z"

// Stamp formats t as a snapshot stamp.
func Stamp(t time.Time) string {
	return t.UTC().Format(SnapshotTimeFormat)
}

// ISO formats t in ISOTimeFormat.
func ISO(t time.Time) string {
	return t.UTC().Format(ISOTimeFormat)
}

// Blake3Hash computes a BLAKE3-256 hash of data.
func Blake3Hash(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

// Blake3HashHex computes a BLAKE3-256 hash and returns it as hex.
func Blake3HashHex(data []byte) string {
	return hex.EncodeToString(Blake3Hash(data))
}

// NewBlake3Hasher returns a streaming BLAKE3 hasher whose digest matches
// Blake3Hash.
func NewBlake3Hasher() *blake3.Hasher {
	return blake3.New(32, nil)
}

// CanonicalJSON encodes v with sorted object keys and no HTML escaping.
// encoding/json already sorts map keys; struct fields keep declaration order,
// which is fixed at compile time, so the output is stable for equal inputs.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// IndentJSON is CanonicalJSON with two-space indentation and a trailing
// newline, the layout used for files meant to be read by people.
func IndentJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DigestJSON returns the BLAKE3 hex digest of v's canonical encoding.
func DigestJSON(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	return Blake3HashHex(data), nil
}
