// Package apttest provides helpers for testing annotation processors against
// packages whose sources are held in memory.
package apttest

import (
	"context"
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jhump/annogen"
	"github.com/jhump/annogen/processor"
)

// Source is an in-memory package. Its sources may only import packages from
// the standard library.
type Source struct {
	// Path is the package's import path.
	Path string
	// Dir is the directory of the package. If empty, it is "/src/" + Path.
	Dir string
	// Files maps file names to contents.
	Files map[string]string
}

func (s Source) dir() string {
	if s.Dir != "" {
		return s.Dir
	}
	return "/src/" + s.Path
}

// Loader is a processor.Loader for in-memory packages. Files in the overlay
// given to Load are added to the package whose directory contains them, which
// mirrors how generated files join their package on disk.
type Loader struct {
	Sources []Source
	// Loads counts calls to Load.
	Loads int
}

var _ processor.Loader = (*Loader)(nil)

// Load parses and type-checks all sources.
func (l *Loader) Load(ctx context.Context, overlay map[string][]byte) ([]*processor.Package, error) {
	l.Loads++
	srcs := append([]Source(nil), l.Sources...)
	sort.Slice(srcs, func(i, j int) bool { return srcs[i].Path < srcs[j].Path })
	pkgs := make([]*processor.Package, 0, len(srcs))
	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files := map[string][]byte{}
		for name, content := range src.Files {
			files[filepath.Join(src.dir(), name)] = []byte(content)
		}
		for p, content := range overlay {
			if filepath.Dir(p) == filepath.Clean(src.dir()) {
				files[p] = content
			}
		}
		pkg, err := check(src.Path, src.dir(), files)
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

func check(pkgPath, dir string, files map[string][]byte) (*processor.Package, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	fset := token.NewFileSet()
	pkg := &processor.Package{Path: pkgPath, Dir: dir, Fset: fset}
	for _, name := range names {
		f, err := parser.ParseFile(fset, name, files[name], parser.ParseComments)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		pkg.Files = append(pkg.Files, f)
	}
	if len(pkg.Files) == 0 {
		return nil, fmt.Errorf("package %s has no files", pkgPath)
	}
	pkg.Name = pkg.Files[0].Name.Name

	pkg.Info = &types.Info{
		Types:      map[ast.Expr]types.TypeAndValue{},
		Defs:       map[*ast.Ident]types.Object{},
		Uses:       map[*ast.Ident]types.Object{},
		Implicits:  map[ast.Node]types.Object{},
		Selections: map[*ast.SelectorExpr]*types.Selection{},
		Scopes:     map[ast.Node]*types.Scope{},
	}
	conf := types.Config{
		Importer: importer.ForCompiler(fset, "source", nil),
		Error: func(err error) {
			pkg.TypeErrors = append(pkg.TypeErrors, err)
		},
	}
	// errors are recorded by the callback above
	pkg.Types, _ = conf.Check(pkgPath, fset, pkg.Files, pkg.Info)
	return pkg, nil
}

// Package type-checks a single in-memory package, failing the test if the
// sources cannot be parsed. Type errors are kept in the package's TypeErrors.
func Package(t testing.TB, pkgPath string, files map[string]string) *processor.Package {
	t.Helper()
	l := &Loader{Sources: []Source{{Path: pkgPath, Files: files}}}
	pkgs, err := l.Load(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, pkgs, 1)
	return pkgs[0]
}

// Context extracts the annotated elements of a single in-memory package and
// fails the test if any extraction diagnostics are reported.
func Context(t testing.TB, pkgPath string, files map[string]string) *processor.Context {
	t.Helper()
	c := processor.NewContext(Package(t, pkgPath, files))
	require.Empty(t, c.Diagnostics())
	return c
}

// Elements returns the annotated elements of a single in-memory package.
func Elements(t testing.TB, pkgPath string, files map[string]string) []*processor.AnnotatedElement {
	t.Helper()
	return Context(t, pkgPath, files).Elements()
}

// Find returns the element with the given name, failing the test if there is
// none. Fields and methods are named "Type.Member".
func Find(t testing.TB, elements []*processor.AnnotatedElement, name string) *processor.AnnotatedElement {
	t.Helper()
	for _, el := range elements {
		n := el.Name
		if el.Kind == annogen.Fields || el.Kind == annogen.Methods {
			n = el.Enclosing[strings.LastIndexByte(el.Enclosing, '.')+1:] + "." + el.Name
		}
		if n == name {
			return el
		}
	}
	require.Failf(t, "element not found", "no element named %s", name)
	return nil
}
