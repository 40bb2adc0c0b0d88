package processor

import (
	"context"
	"errors"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Package is a parsed and type-checked package whose annotations are
// processed.
type Package struct {
	// Path is the package's import path.
	Path string
	// Name is the package's name.
	Name string
	// Dir is the directory that contains the package's sources.
	Dir string

	Fset  *token.FileSet
	Files []*ast.File
	Types *types.Package
	Info  *types.Info

	// TypeErrors are errors found while type-checking. They do not stop
	// processing since they are often caused by references to declarations
	// that have not been generated yet.
	TypeErrors []error
}

// DeclaringFile returns the file that contains the given position, or nil if
// it is not in this package.
func (p *Package) DeclaringFile(pos token.Pos) *ast.File {
	for _, f := range p.Files {
		if f.FileStart <= pos && pos <= f.FileEnd {
			return f
		}
	}
	return nil
}

// Loader loads the packages to process. It is called once per round. The
// overlay maps absolute file paths to contents of files generated so far,
// which may not exist on disk (e.g. in a dry run).
type Loader interface {
	Load(ctx context.Context, overlay map[string][]byte) ([]*Package, error)
}

// PackagesLoader is the default Loader. It uses golang.org/x/tools/go/packages
// and so resolves patterns the same way the go command does.
type PackagesLoader struct {
	Dir          string
	Patterns     []string
	BuildTags    []string
	IncludeTests bool
	Env          []string
}

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedSyntax |
	packages.NeedTypes |
	packages.NeedTypesInfo |
	packages.NeedTypesSizes |
	packages.NeedModule

// Load loads the packages that match the configured patterns. List and
// syntax errors are returned as an error. Type errors are recorded in each
// package's TypeErrors.
func (l *PackagesLoader) Load(ctx context.Context, overlay map[string][]byte) ([]*Package, error) {
	cfg := &packages.Config{
		Context: ctx,
		Mode:    loadMode,
		Dir:     l.Dir,
		Env:     l.Env,
		Tests:   l.IncludeTests,
		Overlay: overlay,
	}
	if len(l.BuildTags) > 0 {
		cfg.BuildFlags = []string{"-tags=" + strings.Join(l.BuildTags, ",")}
	}
	patterns := l.Patterns
	if len(patterns) == 0 {
		patterns = []string{"."}
	}
	escaped := make([]string, len(patterns))
	for i := range patterns {
		escaped[i] = "pattern=" + patterns[i]
	}
	pkgs, err := packages.Load(cfg, escaped...)
	if err != nil {
		return nil, err
	}

	var errs []error
	byPath := map[string]*packages.Package{}
	for _, p := range pkgs {
		if strings.HasSuffix(p.ID, ".test") {
			// synthesized test main
			continue
		}
		for _, e := range p.Errors {
			if e.Kind != packages.TypeError {
				errs = append(errs, e)
			}
		}
		// with tests, a package is listed once without test files and once
		// with them; keep the variant with the most files
		if prev, ok := byPath[p.PkgPath]; !ok || len(p.Syntax) > len(prev.Syntax) {
			byPath[p.PkgPath] = p
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	paths := make([]string, 0, len(byPath))
	for path := range byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	res := make([]*Package, 0, len(paths))
	for _, path := range paths {
		p := byPath[path]
		if p.Types == nil {
			return nil, fmt.Errorf("package %s could not be loaded", path)
		}
		pkg := &Package{
			Path:  p.PkgPath,
			Name:  p.Name,
			Fset:  p.Fset,
			Files: p.Syntax,
			Types: p.Types,
			Info:  p.TypesInfo,
		}
		if len(p.GoFiles) > 0 {
			pkg.Dir = filepath.Dir(p.GoFiles[0])
		}
		for _, e := range p.Errors {
			if e.Kind == packages.TypeError {
				pkg.TypeErrors = append(pkg.TypeErrors, e)
			}
		}
		res = append(res, pkg)
	}
	return res, nil
}
