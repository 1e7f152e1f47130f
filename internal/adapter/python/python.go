// Package python extracts observed Python modules and their imports.
package python

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"projectgraph/internal/adapter"
	"projectgraph/internal/graph"
	"projectgraph/internal/ignore"
)

const Name = "python"

func init() {
	adapter.DefaultRegistry.Register(Name, func() adapter.Adapter { return &Adapter{} })
}

// Adapter walks the whole project root for .py files. Import targets are
// module names and stay unresolved.
type Adapter struct{}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Extract(ctx context.Context, root string) (*graph.Graph, error) {
	m, err := ignore.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}

	g := graph.New()
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	err = ignore.Walk(root, ".", m, func(rel string) error {
		if !strings.HasSuffix(rel, ".py") {
			return nil
		}
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		tree, err := parser.ParseCtx(ctx, nil, content)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", rel, err)
		}
		mods := modules(tree.RootNode(), content)
		tree.Close()

		g.Entities[rel] = graph.Entity{Type: graph.TypePythonSource, Path: rel}
		for _, mod := range mods {
			g.Relations[rel+"::"+graph.RelImports+"::"+mod] = graph.Relation{
				From: rel,
				To:   mod,
				Type: graph.RelImports,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// modules lists imported module names: every name of "import a, b.c as d"
// and the module of "from x import y", including relative ones like "." or
// "..pkg".
func modules(root *sitter.Node, content []byte) []string {
	var out []string
	iter := sitter.NewIterator(root, sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				c := n.NamedChild(i)
				switch c.Type() {
				case "dotted_name":
					out = append(out, c.Content(content))
				case "aliased_import":
					if name := c.ChildByFieldName("name"); name != nil {
						out = append(out, name.Content(content))
					}
				}
			}
		case "import_from_statement", "future_import_statement":
			if mod := n.ChildByFieldName("module_name"); mod != nil {
				out = append(out, mod.Content(content))
			} else if n.Type() == "future_import_statement" {
				out = append(out, "__future__")
			}
		}
	}
	return out
}
