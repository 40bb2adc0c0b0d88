package processor

import (
	"encoding"
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"reflect"

	"github.com/jhump/annogen"
	"github.com/jhump/annogen/parser"
)

// AnnotatedElement is an element in Go source that has annotations. This
// struct provides access to the Go program element via the corresponding
// types.Object as well as references to the element in the program AST. It
// also provides access to AnnotationMirror instances for every annotation
// present on the element.
type AnnotatedElement struct {
	// The element's simple name.
	Name string
	// The kind of element.
	Kind annogen.ElementKind
	// Enclosing is the qualified name of the enclosing type for fields and
	// methods ("pkgpath.Type") and the package path for everything else.
	Enclosing string

	// The actual source element, as a types.Object.
	Obj types.Object
	// The element's name/identifier in the source AST.
	Ident *ast.Ident
	// The AST for the file in which this element is defined.
	File *ast.File
	// The location of the element's name in source.
	Pos token.Position

	// The element's parent. The parent of a field is the enclosing struct.
	// The parent of a method is its receiver type, if that type is annotated.
	Parent *AnnotatedElement
	// Child elements: annotated fields and methods of an annotated type.
	Children []*AnnotatedElement

	// The processor context for the package in which this element is defined.
	Context *Context

	// The annotations defined on this element, in source order.
	Annotations []AnnotationMirror
}

// Key returns a stable identity for the element, which is the same across
// rounds even though each round loads packages again.
func (e *AnnotatedElement) Key() string {
	return fmt.Sprintf("%v:%s.%s", e.Kind, e.Enclosing, e.Name)
}

// String describes the element for humans, e.g. "type example.com/foo.Person".
func (e *AnnotatedElement) String() string {
	var kind string
	switch e.Kind {
	case annogen.Types:
		kind = "type"
	case annogen.Fields:
		kind = "field"
	case annogen.Methods:
		kind = "method"
	case annogen.Functions:
		kind = "func"
	case annogen.Variables:
		kind = "var"
	case annogen.Constants:
		kind = "const"
	}
	return fmt.Sprintf("%s %s.%s", kind, e.Enclosing, e.Name)
}

// FindAnnotations returns annotation mirrors whose annotation type is the given
// type. The given type is described by its package path and name.
func (e *AnnotatedElement) FindAnnotations(packagePath, name string) []AnnotationMirror {
	var matches []AnnotationMirror
	for _, m := range e.Annotations {
		if m.Package == packagePath && m.Name == name {
			matches = append(matches, m)
		}
	}
	return matches
}

// HasAnnotationsFrom returns true if any of the element's annotations belong
// to the given package.
func (e *AnnotatedElement) HasAnnotationsFrom(packagePath string) bool {
	for _, m := range e.Annotations {
		if m.Package == packagePath {
			return true
		}
	}
	return false
}

// AnnotationMirror is a view of an annotation instance that appears in source.
// Its values are kept as parsed expressions until the mirror is reified into
// the Go type that defines the annotation.
type AnnotationMirror struct {
	// Package is the import path the annotation's qualifier resolves to. It is
	// empty if the qualifier could not be resolved.
	Package string
	// Qualifier is the qualifier as written in source.
	Qualifier string
	// Name is the simple name of the annotation type.
	Name string
	// Pos is the location in source where this annotation is defined.
	Pos token.Position
	// Definition describes the annotation type. It is nil for annotations
	// that are not defined by the annogen package.
	Definition *annogen.Definition

	// Fields are the member values given in braces, in source order.
	Fields []MirrorField
	// Positional is the value given in parentheses, or nil.
	Positional *MirrorField
}

// MirrorField is one member value of an annotation.
type MirrorField struct {
	// Name is the member name. It is empty for positional values.
	Name  string
	Value parser.ExpressionNode
	Pos   token.Position
}

// String returns the annotation as it would be written, without values.
func (m AnnotationMirror) String() string {
	if m.Qualifier == "" {
		return "@" + m.Name
	}
	return fmt.Sprintf("@%s.%s", m.Qualifier, m.Name)
}

// Reify populates the given annotation value with the data in this mirror.
// The given value must be a pointer to the struct type described by the
// mirror's Definition. Members that are absent get their default values.
//
// The returned error is an *ErrorWithPosition that identifies the offending
// value for unknown members, values of the wrong type, repeated members, and
// missing required members.
func (m AnnotationMirror) Reify(target interface{}) error {
	if m.Definition == nil {
		return NewErrorWithPosition(m.Pos, fmt.Errorf("unknown annotation %v", m))
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("cannot reify into non-pointer value of type %T", target)
	}
	if rv.Elem().Type() != m.Definition.Type {
		return fmt.Errorf("annotation mirror of type %s cannot be reified into value of type %T", m.Definition.Name, target)
	}
	rv.Elem().Set(m.Definition.New().Elem())

	set := map[string]token.Position{}
	assign := func(md *annogen.MemberDefinition, f MirrorField) error {
		if prev, ok := set[md.Name]; ok {
			return NewErrorWithPosition(f.Pos, fmt.Errorf("member %s of %v already set at %v", md.Name, m, prev))
		}
		set[md.Name] = f.Pos
		if err := assignValue(rv.Elem().Field(md.Index), f.Value, m.Qualifier); err != nil {
			return NewErrorWithPosition(f.Pos, fmt.Errorf("member %s of %v: %w", md.Name, m, err))
		}
		return nil
	}

	if m.Positional != nil {
		md := m.Definition.PositionalMember()
		if md == nil {
			return NewErrorWithPosition(m.Positional.Pos, fmt.Errorf("%v does not accept a value", m))
		}
		if err := assign(md, *m.Positional); err != nil {
			return err
		}
	}
	for _, f := range m.Fields {
		md := m.Definition.Member(f.Name)
		if md == nil {
			return NewErrorWithPosition(f.Pos, fmt.Errorf("%v has no member named %s", m, f.Name))
		}
		if err := assign(md, f); err != nil {
			return err
		}
	}
	for _, md := range m.Definition.Members {
		if _, ok := set[md.Name]; !ok && md.Required {
			return NewErrorWithPosition(m.Pos, fmt.Errorf("%v is missing required member %s", m, md.Name))
		}
	}
	return nil
}

var typeOfTextUnmarshaler = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// assignValue stores the value of the given expression into target. The
// qualifier is the one used for the annotation itself; references to named
// constants must use it or no qualifier at all.
func assignValue(target reflect.Value, exp parser.ExpressionNode, qualifier string) error {
	if reflect.PointerTo(target.Type()).Implements(typeOfTextUnmarshaler) {
		var text string
		switch exp := exp.(type) {
		case parser.RefNode:
			if exp.Ident.PackageAlias != "" && exp.Ident.PackageAlias != qualifier {
				return fmt.Errorf("%v does not refer to a %v constant", exp.Ident, target.Type())
			}
			text = exp.Ident.Name
		case parser.LiteralNode:
			if exp.Val == nil || exp.Val.Kind() != constant.String {
				return fmt.Errorf("cannot use %v as %v value", describeLiteral(exp), target.Type())
			}
			text = constant.StringVal(exp.Val)
		default:
			return fmt.Errorf("cannot use aggregate as %v value", target.Type())
		}
		return target.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(text))
	}

	switch target.Kind() {
	case reflect.Slice:
		agg, ok := exp.(parser.AggregateNode)
		if !ok {
			// a single value is a slice of one element
			agg = parser.AggregateNode{Contents: []parser.Element{{Value: exp}}}
		}
		s := reflect.MakeSlice(target.Type(), len(agg.Contents), len(agg.Contents))
		for i, el := range agg.Contents {
			if el.HasKey {
				return fmt.Errorf("slice elements cannot have keys")
			}
			if err := assignValue(s.Index(i), el.Value, qualifier); err != nil {
				return err
			}
		}
		target.Set(s)
		return nil
	}

	lit, ok := exp.(parser.LiteralNode)
	if !ok {
		if ref, ok := exp.(parser.RefNode); ok {
			return fmt.Errorf("cannot use %v as %v value", ref.Ident, target.Type())
		}
		return fmt.Errorf("cannot use aggregate as %v value", target.Type())
	}
	if lit.Val == nil {
		return fmt.Errorf("cannot use nil as %v value", target.Type())
	}
	v := lit.Val
	switch target.Kind() {
	case reflect.String:
		if v.Kind() == constant.String {
			target.SetString(constant.StringVal(v))
			return nil
		}
	case reflect.Bool:
		if v.Kind() == constant.Bool {
			target.SetBool(constant.BoolVal(v))
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Kind() == constant.Int {
			i, exact := constant.Int64Val(v)
			if !exact || target.OverflowInt(i) {
				return fmt.Errorf("%v overflows %v", v, target.Type())
			}
			target.SetInt(i)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if v.Kind() == constant.Int {
			u, exact := constant.Uint64Val(v)
			if !exact || target.OverflowUint(u) {
				return fmt.Errorf("%v overflows %v", v, target.Type())
			}
			target.SetUint(u)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if v.Kind() == constant.Int || v.Kind() == constant.Float {
			f, _ := constant.Float64Val(v)
			if target.OverflowFloat(f) {
				return fmt.Errorf("%v overflows %v", v, target.Type())
			}
			target.SetFloat(f)
			return nil
		}
	}
	return fmt.Errorf("cannot use %v as %v value", describeLiteral(lit), target.Type())
}

func describeLiteral(lit parser.LiteralNode) string {
	if lit.Val == nil {
		return "nil"
	}
	switch lit.Val.Kind() {
	case constant.String:
		return fmt.Sprintf("string %s", lit.Val.ExactString())
	case constant.Bool:
		return fmt.Sprintf("bool %s", lit.Val)
	case constant.Int:
		return fmt.Sprintf("int %s", lit.Val)
	case constant.Float:
		return fmt.Sprintf("float %s", lit.Val)
	default:
		return lit.Val.String()
	}
}
