// Package compile runs the external declarative-config compiler that turns the
// project graph source into a single JSON document.
package compile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"projectgraph/internal/graph"
)

// Compiler turns source into a compiled JSON document written at out.
type Compiler interface {
	Compile(ctx context.Context, source, out string) error
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, source, out string) error

func (f CompilerFunc) Compile(ctx context.Context, source, out string) error {
	return f(ctx, source, out)
}

// ConfigCompileError reports a failed compile. It is fatal for the run.
type ConfigCompileError struct {
	Source string
	Stderr string
	Err    error
}

func (e *ConfigCompileError) Error() string {
	msg := fmt.Sprintf("compiling %s: %v", e.Source, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ConfigCompileError) Unwrap() error { return e.Err }

// Jsonnet invokes the jsonnet binary with the graph directory on the import
// path and the current time bound to the "timestamp" external variable.
type Jsonnet struct {
	// Bin defaults to "jsonnet" on PATH.
	Bin string
	// Now is used for the timestamp variable; defaults to time.Now.
	Now func() time.Time
}

func (j Jsonnet) Compile(ctx context.Context, source, out string) error {
	bin := j.Bin
	if bin == "" {
		bin = "jsonnet"
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}

	args := []string{
		"-J", filepath.Dir(source),
		"--ext-str", "timestamp=" + now().UTC().Format(time.RFC3339),
		"-o", out,
		source,
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = filepath.Dir(source)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &ConfigCompileError{Source: source, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// Run compiles source into out and decodes the result. On any failure the
// partial output file is removed and a *ConfigCompileError is returned.
func Run(ctx context.Context, c Compiler, source, out string) (*graph.Document, error) {
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return nil, &ConfigCompileError{Source: source, Err: fmt.Errorf("creating cache dir: %w", err)}
	}
	if err := c.Compile(ctx, source, out); err != nil {
		os.Remove(out)
		var cce *ConfigCompileError
		if errors.As(err, &cce) {
			return nil, cce
		}
		return nil, &ConfigCompileError{Source: source, Err: err}
	}
	doc, err := graph.Load(out)
	if err != nil {
		os.Remove(out)
		return nil, &ConfigCompileError{Source: source, Err: err}
	}
	return doc, nil
}
