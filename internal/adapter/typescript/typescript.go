// Package typescript extracts observed entities and relative import relations
// from TypeScript and JavaScript sources using tree-sitter.
package typescript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"projectgraph/internal/adapter"
	"projectgraph/internal/graph"
	"projectgraph/internal/ignore"
)

// Name is the registry name of this adapter.
const Name = "typescript"

func init() {
	adapter.DefaultRegistry.Register(Name, func() adapter.Adapter { return New() })
}

// Roots are the directories scanned under the project root.
var Roots = []string{"src", "electron"}

// Adapter scans Roots for .ts, .tsx, .js and .jsx files.
type Adapter struct {
	Roots []string
}

// New returns an adapter with the default roots.
func New() *Adapter {
	return &Adapter{Roots: Roots}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Extract(ctx context.Context, root string) (*graph.Graph, error) {
	m, err := ignore.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading ignore rules: %w", err)
	}

	g := graph.New()
	parser := sitter.NewParser()
	defer parser.Close()

	for _, dir := range a.Roots {
		err := ignore.Walk(root, dir, m, func(rel string) error {
			lang := language(rel)
			if lang == nil {
				return nil
			}
			content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
			if err != nil {
				return fmt.Errorf("reading %s: %w", rel, err)
			}
			specs, err := imports(ctx, parser, lang, content)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", rel, err)
			}

			g.Entities[rel] = graph.Entity{Type: entityType(rel), Path: rel}
			for _, spec := range specs {
				if !relative(spec) {
					continue
				}
				g.Relations[rel+"::"+graph.RelImports+"::"+spec] = graph.Relation{
					From: rel,
					To:   spec,
					Type: graph.RelImports,
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

func language(rel string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".ts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	case ".js", ".jsx":
		return javascript.GetLanguage()
	}
	return nil
}

func entityType(rel string) string {
	switch {
	case strings.HasPrefix(rel, "electron/"):
		return graph.TypeElectronSource
	case strings.HasSuffix(rel, ".tsx"):
		return graph.TypeReactSource
	}
	return graph.TypeSourceFile
}

func relative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

// imports returns every module specifier in source order: static and
// side-effect imports, re-exports, import = require(), dynamic import() and
// require().
func imports(ctx context.Context, parser *sitter.Parser, lang *sitter.Language, content []byte) ([]string, error) {
	parser.SetLanguage(lang)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	var specs []string
	iter := sitter.NewIterator(tree.RootNode(), sitter.DFSMode)
	for {
		n, err := iter.Next()
		if err != nil || n == nil {
			break
		}
		switch n.Type() {
		case "import_statement", "export_statement":
			if src := n.ChildByFieldName("source"); src != nil {
				specs = append(specs, unquote(src.Content(content)))
			}
		case "import_require_clause":
			if s, ok := literalArg(n, content); ok {
				specs = append(specs, s)
			}
		case "call_expression":
			if s, ok := callSpecifier(n, content); ok {
				specs = append(specs, s)
			}
		}
	}
	return specs, nil
}

// callSpecifier matches import("x") and require("x") with a literal argument.
func callSpecifier(n *sitter.Node, content []byte) (string, bool) {
	fn := n.ChildByFieldName("function")
	args := n.ChildByFieldName("arguments")
	if fn == nil || args == nil {
		return "", false
	}
	switch {
	case fn.Type() == "import":
	case fn.Type() == "identifier" && fn.Content(content) == "require":
	default:
		return "", false
	}
	return literalArg(args, content)
}

// literalArg returns the first string child of n. Template literals count
// when they have no substitutions.
func literalArg(n *sitter.Node, content []byte) (string, bool) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		a := n.NamedChild(i)
		switch a.Type() {
		case "string":
			return unquote(a.Content(content)), true
		case "template_string":
			if s := a.Content(content); !strings.Contains(s, "${") {
				return unquote(s), true
			}
		}
	}
	return "", false
}

func unquote(s string) string {
	return strings.Trim(s, "\"'`")
}
