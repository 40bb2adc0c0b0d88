package processor

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"path"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/jhump/annogen"
	"github.com/jhump/annogen/parser"
)

// Context represents a single loaded package and provides access to all
// annotations and annotated elements encountered in it.
type Context struct {
	// Package holds all information about the package being processed. It
	// provides access to the ASTs of files in the package as well as the
	// results of type analysis, to allow for introspection of package elements.
	Package *Package

	allElements  []*AnnotatedElement
	byObject     map[types.Object]*AnnotatedElement
	byKind       map[annogen.ElementKind][]*AnnotatedElement
	byAnnotation map[annoType][]*AnnotatedElement
	processed    map[*ast.CommentGroup]struct{}
	diagnostics  []Diagnostic
}

type annoType struct {
	packagePath, name string
}

// NewContext extracts all annotated elements from the given package. Problems
// with annotation syntax are available from the Diagnostics method; the
// elements in question are skipped.
func NewContext(pkg *Package) *Context {
	c := &Context{
		Package:      pkg,
		byObject:     map[types.Object]*AnnotatedElement{},
		byKind:       map[annogen.ElementKind][]*AnnotatedElement{},
		byAnnotation: map[annoType][]*AnnotatedElement{},
		processed:    map[*ast.CommentGroup]struct{}{},
	}
	for _, file := range pkg.Files {
		c.computeAnnotationsFromFile(file)
	}
	return c
}

// Elements returns all annotated elements of the package, in source order.
func (c *Context) Elements() []*AnnotatedElement {
	return c.allElements
}

// NumElements returns the number of annotated elements for the context's
// package.
func (c *Context) NumElements() int {
	return len(c.allElements)
}

// GetElement returns the annotation element at the given index. The given index
// must be greater than or equal to zero and less than c.NumElements().
func (c *Context) GetElement(index int) *AnnotatedElement {
	return c.allElements[index]
}

// ElementForObject returns the annotated element for the given object, or nil
// if the object has no annotations.
func (c *Context) ElementForObject(obj types.Object) *AnnotatedElement {
	return c.byObject[obj]
}

// ElementsOfKind returns a slice of annotated elements of the given kind.
func (c *Context) ElementsOfKind(k annogen.ElementKind) []*AnnotatedElement {
	return c.byKind[k]
}

// ElementsAnnotatedWith returns a slice of elements that have been annotated
// with the given annotation type.
func (c *Context) ElementsAnnotatedWith(packagePath, typeName string) []*AnnotatedElement {
	return c.byAnnotation[annoType{packagePath: packagePath, name: typeName}]
}

// Diagnostics returns the problems found while extracting annotations.
func (c *Context) Diagnostics() []Diagnostic {
	return c.diagnostics
}

func (c *Context) computeAnnotationsFromFile(file *ast.File) {
	quals := c.qualifiers(file)
	for _, decl := range file.Decls {
		switch decl := decl.(type) {
		case *ast.GenDecl:
			for _, s := range decl.Specs {
				switch spec := s.(type) {
				case *ast.ValueSpec:
					doc := spec.Doc
					if (doc == nil || len(doc.List) == 0) && len(decl.Specs) == 1 {
						doc = decl.Doc
					}
					kind := annogen.Variables
					if decl.Tok == token.CONST {
						kind = annogen.Constants
					}
					for _, id := range spec.Names {
						c.computeAnnotationsFromElement(file, quals, kind, id, doc, c.Package.Path, nil)
					}
				case *ast.TypeSpec:
					doc := spec.Doc
					if (doc == nil || len(doc.List) == 0) && len(decl.Specs) == 1 {
						doc = decl.Doc
					}
					c.computeAnnotationsFromType(file, quals, spec, doc)
				}
			}
		case *ast.FuncDecl:
			if decl.Recv == nil || len(decl.Recv.List) == 0 {
				c.computeAnnotationsFromElement(file, quals, annogen.Functions, decl.Name, decl.Doc, c.Package.Path, nil)
				continue
			}
			recv := receiverTypeName(decl.Recv.List[0].Type)
			enclosing := c.Package.Path + "." + recv
			var parent *AnnotatedElement
			if obj := c.Package.Types.Scope().Lookup(recv); obj != nil {
				parent = c.byObject[obj]
			}
			c.computeAnnotationsFromElement(file, quals, annogen.Methods, decl.Name, decl.Doc, enclosing, parent)
		}
	}

	ast.Inspect(file, func(node ast.Node) bool {
		var doc *ast.CommentGroup
		switch node := node.(type) {
		case *ast.ImportSpec:
			doc = node.Doc
		case *ast.TypeSpec:
			doc = node.Doc
		case *ast.ValueSpec:
			doc = node.Doc
		case *ast.GenDecl:
			doc = node.Doc
		case *ast.FuncDecl:
			doc = node.Doc
		case *ast.Field:
			doc = node.Doc
		case *ast.File:
			doc = node.Doc
		}
		if doc == nil {
			return true
		}
		if _, ok := c.processed[doc]; ok {
			return true
		}
		if pos, found := c.hasAnnotations(doc, quals); found {
			c.diagnostics = append(c.diagnostics, Diagnostic{
				Severity: SeverityError,
				Pos:      c.Package.Fset.Position(pos),
				Message:  "annotations are only allowed on top-level types, functions, variables, and constants or fields and methods of top-level types",
			})
		}
		return true
	})
}

func receiverTypeName(expr ast.Expr) string {
	for {
		switch e := expr.(type) {
		case *ast.StarExpr:
			expr = e.X
		case *ast.ParenExpr:
			expr = e.X
		case *ast.IndexExpr:
			expr = e.X
		case *ast.IndexListExpr:
			expr = e.X
		case *ast.Ident:
			return e.Name
		default:
			return ""
		}
	}
}

func (c *Context) computeAnnotationsFromType(file *ast.File, quals qualifiers, spec *ast.TypeSpec, doc *ast.CommentGroup) {
	ae := c.computeAnnotationsFromElement(file, quals, annogen.Types, spec.Name, doc, c.Package.Path, nil)
	enclosing := c.Package.Path + "." + spec.Name.Name
	switch t := spec.Type.(type) {
	case *ast.InterfaceType:
		if t.Methods == nil {
			return
		}
		for _, method := range t.Methods.List {
			if len(method.Names) == 0 {
				// embedded interface
				continue
			}
			for _, n := range method.Names {
				c.computeAnnotationsFromElement(file, quals, annogen.Methods, n, method.Doc, enclosing, ae)
			}
		}
	case *ast.StructType:
		if t.Fields == nil {
			return
		}
		for _, fld := range t.Fields.List {
			names := fld.Names
			if names == nil {
				// anonymous/embedded field
				if id := embeddedName(fld.Type); id != nil {
					names = []*ast.Ident{id}
				}
			}
			for _, n := range names {
				c.computeAnnotationsFromElement(file, quals, annogen.Fields, n, fld.Doc, enclosing, ae)
			}
		}
	}
}

func embeddedName(expr ast.Expr) *ast.Ident {
	switch e := expr.(type) {
	case *ast.StarExpr:
		return embeddedName(e.X)
	case *ast.SelectorExpr:
		return e.Sel
	case *ast.IndexExpr:
		return embeddedName(e.X)
	case *ast.IndexListExpr:
		return embeddedName(e.X)
	case *ast.Ident:
		return e
	default:
		return nil
	}
}

func (c *Context) computeAnnotationsFromElement(file *ast.File, quals qualifiers, kind annogen.ElementKind, id *ast.Ident, doc *ast.CommentGroup, enclosing string, parent *AnnotatedElement) *AnnotatedElement {
	if doc == nil || id == nil || id.Name == "_" {
		return nil
	}
	obj := c.Package.Info.ObjectOf(id)
	if obj == nil {
		return nil
	}
	if ae, ok := c.byObject[obj]; ok {
		// already processed this one
		return ae
	}
	annos, err := c.parseAnnotations(quals, doc)
	if err != nil {
		c.diagnostics = append(c.diagnostics, DiagnosticFromError(nil, c.Package.Fset.Position(doc.Pos()), err))
		return nil
	}
	if len(annos) == 0 {
		return nil
	}

	ae := &AnnotatedElement{
		Name:        id.Name,
		Kind:        kind,
		Enclosing:   enclosing,
		Obj:         obj,
		Ident:       id,
		File:        file,
		Pos:         c.Package.Fset.Position(id.Pos()),
		Parent:      parent,
		Context:     c,
		Annotations: annos,
	}
	c.byObject[obj] = ae
	c.allElements = append(c.allElements, ae)
	c.byKind[kind] = append(c.byKind[kind], ae)
	seen := map[annoType]struct{}{}
	for _, anno := range annos {
		at := annoType{packagePath: anno.Package, name: anno.Name}
		if _, ok := seen[at]; !ok {
			seen[at] = struct{}{}
			c.byAnnotation[at] = append(c.byAnnotation[at], ae)
		}
	}
	if parent != nil {
		parent.Children = append(parent.Children, ae)
	}
	return ae
}

// qualifiers maps the qualifiers usable in a file's annotations to package
// import paths. The empty qualifier maps to the package of a dot import.
type qualifiers map[string]string

func (c *Context) qualifiers(file *ast.File) qualifiers {
	q := qualifiers{annogen.DefaultQualifier: annogen.PackagePath}
	for _, imp := range file.Imports {
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		switch {
		case imp.Name == nil || imp.Name.Name == "_":
			q[c.importedPackageName(importPath)] = importPath
		case imp.Name.Name == ".":
			q[""] = importPath
		default:
			q[imp.Name.Name] = importPath
		}
	}
	return q
}

func (c *Context) importedPackageName(importPath string) string {
	if c.Package.Types != nil {
		for _, p := range c.Package.Types.Imports() {
			if p.Path() == importPath {
				return p.Name()
			}
		}
	}
	if importPath == annogen.PackagePath {
		return annogen.DefaultQualifier
	}
	return path.Base(importPath)
}

// hasAnnotations returns true if the given comment has a line that starts an
// annotation with a known qualifier.
func (c *Context) hasAnnotations(doc *ast.CommentGroup, quals qualifiers) (token.Pos, bool) {
	for _, l := range doc.List {
		for _, line := range strings.Split(commentText(l.Text), "\n") {
			if _, ok := annotationQualifier(line, quals); ok {
				return l.Slash, true
			}
		}
	}
	return token.NoPos, false
}

// annotationQualifier returns the qualifier of the annotation that starts the
// given line, if the line starts an annotation and its qualifier is known.
func annotationQualifier(line string, quals qualifiers) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "@") {
		return "", false
	}
	line = line[1:]
	end := strings.IndexFunc(line, func(r rune) bool {
		return r != '_' && !('a' <= r && r <= 'z') && !('A' <= r && r <= 'Z') && !('0' <= r && r <= '9')
	})
	var qual string
	switch {
	case end > 0 && line[end] == '.':
		qual = line[:end]
	case end == 0 || line == "":
		return "", false
	default:
		// unqualified, which refers to a dot import
	}
	_, ok := quals[qual]
	return qual, ok
}

func commentText(txt string) string {
	if strings.HasPrefix(txt, "/*") {
		txt = strings.TrimSuffix(txt[2:], "*/")
	} else {
		txt = strings.TrimPrefix(txt, "//")
	}
	return txt
}

func (c *Context) parseAnnotations(quals qualifiers, doc *ast.CommentGroup) ([]AnnotationMirror, error) {
	c.processed[doc] = struct{}{}
	buf, adjuster := c.extractAnnotations(doc, quals)
	if buf == nil {
		return nil, nil
	}

	annos, perr := parser.ParseAnnotations("", buf)
	if perr != nil {
		pos := adjuster.adjustPosition(perr.Pos())
		return nil, NewErrorWithPosition(pos, perr.Underlying())
	}

	mirrors := make([]AnnotationMirror, 0, len(annos))
	for _, anno := range annos {
		m, err := convertAnnotation(quals, anno, adjuster)
		if err != nil {
			return nil, err
		}
		mirrors = append(mirrors, m)
	}
	return mirrors, nil
}

func convertAnnotation(quals qualifiers, a parser.Annotation, adjuster posAdjuster) (AnnotationMirror, error) {
	m := AnnotationMirror{
		Qualifier: a.Type.PackageAlias,
		Name:      a.Type.Name,
		Pos:       adjuster.adjustPosition(a.Pos),
		Package:   quals[a.Type.PackageAlias],
	}
	if m.Package == annogen.PackagePath {
		m.Definition = annogen.LookupDefinition(m.Name)
	}
	if a.Value == nil {
		return m, nil
	}
	agg, isAgg := a.Value.(parser.AggregateNode)
	if a.Parenthesized || !isAgg {
		m.Positional = &MirrorField{Value: a.Value, Pos: adjuster.adjustPosition(a.Value.Pos())}
		return m, nil
	}
	for _, el := range agg.Contents {
		pos := adjuster.adjustPosition(el.Pos())
		if !el.HasKey {
			return m, NewErrorWithPosition(pos, fmt.Errorf("values of %v must be named, like {Member: value}", m))
		}
		ref, ok := el.Key.(parser.RefNode)
		if !ok || ref.Ident.PackageAlias != "" {
			return m, NewErrorWithPosition(pos, fmt.Errorf("member name of %v must be an identifier", m))
		}
		m.Fields = append(m.Fields, MirrorField{
			Name:  ref.Ident.Name,
			Value: el.Value,
			Pos:   adjuster.adjustPosition(el.Value.Pos()),
		})
	}
	return m, nil
}

// extractAnnotations returns the part of the comment that contains
// annotations. Annotations come last in a doc comment: they start at the first
// line that begins with '@' and a known qualifier and continue to the end of
// the comment.
func (c *Context) extractAnnotations(doc *ast.CommentGroup, quals qualifiers) (*bytes.Buffer, posAdjuster) {
	var buf bytes.Buffer
	var adjuster posAdjuster
	found := false
	var pos token.Position
	for _, l := range doc.List {
		txt := commentText(l.Text)

		pos = c.Package.Fset.Position(l.Slash)
		// skip past opening "//" or "/*"
		pos.Offset += 2
		pos.Column += 2

		for _, line := range strings.Split(txt, "\n") {
			if !found {
				if _, ok := annotationQualifier(line, quals); ok {
					found = true
				}
			}
			if found {
				adjuster = append(adjuster, posAdj{outOffset: buf.Len(), inPos: pos})
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
			pos.Offset += len(line) + 1
			pos.Line++
			pos.Column = 1
		}

		// set this so we can record end of input as the last entry in adjuster
		pos = c.Package.Fset.Position(l.End())
	}
	if !found {
		return nil, nil
	}
	adjuster = append(adjuster, posAdj{outOffset: buf.Len(), inPos: pos})
	return &buf, adjuster
}

type posAdj struct {
	outOffset int
	inPos     token.Position
}

type posAdjuster []posAdj

func (a posAdjuster) adjustPosition(pos scanner.Position) token.Position {
	idx := pos.Line - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(a) {
		idx = len(a) - 1
	}
	el := a[idx]
	var tok token.Position
	tok.Filename = el.inPos.Filename
	tok.Line = el.inPos.Line
	tok.Column = el.inPos.Column + pos.Column - 1
	tok.Offset = el.inPos.Offset + (pos.Offset - el.outOffset)
	return tok
}
