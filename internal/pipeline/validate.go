package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"projectgraph/internal/graph"
	"projectgraph/internal/validate"
)

// Validate checks a compiled graph. path defaults to the cached compiled
// graph; when that file does not exist the source is compiled first.
func Validate(ctx context.Context, opts Options, path string) (*graph.Document, validate.Result, error) {
	r, err := newRun(opts)
	if err != nil {
		return nil, validate.Result{}, err
	}

	var doc *graph.Document
	if path == "" {
		path = r.layout.CompiledGraph()
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			r.logger.Info("compiled graph missing, compiling source", "path", r.layout.Rel(path))
			doc, err = r.compileScratch(ctx)
		} else {
			doc, err = graph.Load(path)
		}
	} else {
		doc, err = graph.Load(path)
	}
	if err != nil {
		return nil, validate.Result{}, err
	}

	res, err := validate.Validate(doc, validate.Options{Root: r.layout.Root})
	return doc, res, err
}
