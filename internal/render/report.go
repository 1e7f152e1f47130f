package render

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"projectgraph/internal/cas"
	"projectgraph/internal/drift"
)

// MaxSamples caps the keys listed per side in the drift summary.
const MaxSamples = 20

// WriteDriftSummary writes the memory-bank drift report: both counts, then
// up to MaxSamples keys from each side.
func WriteDriftSummary(w io.Writer, r drift.Report, now time.Time) error {
	bw := bufio.NewWriter(w)
	lines := []string{
		"# Graph Drift",
		"",
		"Generated: " + cas.ISO(now),
		"",
		fmt.Sprintf("- observedNotDeclared: %d", len(r.ObservedNotDeclared)),
		fmt.Sprintf("- declaredNotObserved: %d", len(r.DeclaredNotObserved)),
		"",
		"## Samples",
		"",
	}
	for _, k := range head(r.ObservedNotDeclared, MaxSamples) {
		lines = append(lines, "- observed only: "+k)
	}
	for _, k := range head(r.DeclaredNotObserved, MaxSamples) {
		lines = append(lines, "- declared only: "+k)
	}
	bw.WriteString(strings.Join(lines, "\n"))
	return bw.Flush()
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// DriftSection is the README "Drift" section body for r.
func DriftSection(r drift.Report) string {
	return fmt.Sprintf("\n## Drift\n\n- observedNotDeclared: %d\n- declaredNotObserved: %d\n\n",
		len(r.ObservedNotDeclared), len(r.DeclaredNotObserved))
}

// InjectSection replaces the "## header" section of content with body. The
// replaced span runs to the next "## " heading outside a ``` fence, or to the
// end. When the header is absent body is appended. Leading newlines of body
// are dropped when the section already starts a line, so repeated injection
// is stable.
func InjectSection(content, header, body string) string {
	marker := "## " + header
	start := headingIndex(content, marker)
	if start < 0 {
		return content + body
	}
	if start == 0 || content[start-1] == '\n' {
		body = strings.TrimLeft(body, "\n")
	}
	rest := content[start+len(marker):]
	if end := sectionEnd(rest); end >= 0 {
		return content[:start] + body + rest[end:]
	}
	return content[:start] + body
}

// headingIndex returns the offset of the first line equal to marker that is
// not inside a ``` fence, or -1.
func headingIndex(content, marker string) int {
	inFence := false
	for off := 0; off < len(content); {
		line := content[off:]
		next := strings.IndexByte(line, '\n')
		if next >= 0 {
			line = line[:next]
		}
		switch {
		case strings.HasPrefix(line, "```"):
			inFence = !inFence
		case !inFence && strings.TrimRight(line, " \r") == marker:
			return off
		}
		if next < 0 {
			break
		}
		off += next + 1
	}
	return -1
}

// sectionEnd returns the index of the newline before the next level-two
// heading in rest, skipping the first line and fenced blocks, or -1.
func sectionEnd(rest string) int {
	inFence := false
	i := strings.IndexByte(rest, '\n')
	for i >= 0 {
		line := rest[i+1:]
		next := strings.IndexByte(line, '\n')
		if next >= 0 {
			line = line[:next]
		}
		switch {
		case strings.HasPrefix(line, "```"):
			inFence = !inFence
		case !inFence && strings.HasPrefix(line, "## "):
			return i
		}
		if next < 0 {
			return -1
		}
		i += next + 1
	}
	return -1
}

// UpdateFileSection applies InjectSection to the file at path, creating it
// when missing.
func UpdateFileSection(path, header, body string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	updated := InjectSection(string(data), header, body)
	return WriteFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, updated)
		return err
	})
}

// AuditLogLine is the line appended to the memory-bank audit log.
func AuditLogLine(now time.Time, mode drift.Mode, inSync bool) string {
	scope := "Full Project"
	if mode == drift.ModeIncremental {
		scope = "Committed Files"
	}
	status := "WARNINGS"
	if inSync {
		status = "OK"
	}
	return fmt.Sprintf("Audit performed on %s. Scope: %s. Status: %s.\n", cas.ISO(now), scope, status)
}

// AppendLine appends line to the file at path, creating parent directories.
func AppendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return f.Close()
}

// WriteFile renders into memory and replaces path in one write, so a failed
// render never truncates the previous artifact.
func WriteFile(path string, render func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
