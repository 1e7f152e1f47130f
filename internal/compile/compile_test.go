package compile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_DecodesOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, ".cache", "graph.json")

	c := CompilerFunc(func(_ context.Context, _, out string) error {
		return os.WriteFile(out, []byte(`{"entities":{"src/a.ts":{"type":"SourceFile","path":"src/a.ts"}}}`), 0644)
	})

	doc, err := Run(context.Background(), c, filepath.Join(dir, "project_graph.jsonnet"), out)
	require.NoError(t, err)
	assert.Contains(t, doc.Entities, "src/a.ts")
	assert.FileExists(t, out)
}

func TestRun_FailureRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "graph.json")

	c := CompilerFunc(func(_ context.Context, _, out string) error {
		if err := os.WriteFile(out, []byte(`{"entit`), 0644); err != nil {
			return err
		}
		return errors.New("exit status 1")
	})

	_, err := Run(context.Background(), c, "src.jsonnet", out)
	var cce *ConfigCompileError
	require.ErrorAs(t, err, &cce)
	assert.Equal(t, "src.jsonnet", cce.Source)
	assert.NoFileExists(t, out)
}

func TestRun_InvalidJSONIsCompileError(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "graph.json")

	c := CompilerFunc(func(_ context.Context, _, out string) error {
		return os.WriteFile(out, []byte("not json"), 0644)
	})

	_, err := Run(context.Background(), c, "src.jsonnet", out)
	var cce *ConfigCompileError
	require.ErrorAs(t, err, &cce)
	assert.NoFileExists(t, out)
}

func TestJsonnet_MissingBinary(t *testing.T) {
	dir := t.TempDir()
	j := Jsonnet{Bin: filepath.Join(dir, "no-such-jsonnet")}

	_, err := Run(context.Background(), j, filepath.Join(dir, "project_graph.jsonnet"), filepath.Join(dir, "graph.json"))
	var cce *ConfigCompileError
	require.ErrorAs(t, err, &cce)
	assert.Contains(t, cce.Error(), "project_graph.jsonnet")
}
