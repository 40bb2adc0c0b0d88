package model

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jhump/annogen"
	"github.com/jhump/annogen/processor"
)

// Build validates the given annotated elements and groups them into
// generation units. Only annotations of the annogen package are considered.
//
// An element that fails validation contributes diagnostics, not units, and
// does not prevent other elements from producing units. Elements are visited
// in source order, so when two of them map to the same generated type, the
// first one wins and the other is reported.
//
// Units are returned sorted by package and then by the source position of
// their first origin.
func Build(elements []*processor.AnnotatedElement, opts Options) ([]*GenerationUnit, []processor.Diagnostic) {
	b := newUnitBuilder(opts)
	var methods []pendingMethod
	for _, el := range sortedElements(elements) {
		for _, m := range el.Annotations {
			if m.Package != annogen.PackagePath {
				continue
			}
			if m.Definition == nil {
				b.errorf(el, m.Pos, "unknown annotation %v", m)
				continue
			}
			if !m.Definition.Allows(el.Kind) {
				b.errorf(el, m.Pos, "%v cannot be used on %v", m, el.Kind)
				continue
			}
			switch m.Definition.Type {
			case typeOfBuilder:
				var a annogen.Builder
				if b.reify(el, m, &a) {
					b.addBuilder(el, m, a)
				}
			case typeOfSerializer:
				var a annogen.Serializer
				if b.reify(el, m, &a) {
					b.addSerializer(el, m, a)
				}
			case typeOfSerializeMethod:
				var a annogen.SerializeMethod
				if b.reify(el, m, &a) {
					// resolved once all serializers are known
					methods = append(methods, pendingMethod{el: el, mirror: m, anno: a})
				}
			case typeOfFacade:
				var a annogen.Facade
				if b.reify(el, m, &a) {
					b.addFacade(el, m, a)
				}
			default:
				b.errorf(el, m.Pos, "%v is not supported by this generator", m)
			}
		}
	}
	for _, pm := range methods {
		b.addSerializeMethod(pm)
	}
	return b.result()
}

var (
	typeOfBuilder         = reflect.TypeOf(annogen.Builder{})
	typeOfSerializer      = reflect.TypeOf(annogen.Serializer{})
	typeOfSerializeMethod = reflect.TypeOf(annogen.SerializeMethod{})
	typeOfFacade          = reflect.TypeOf(annogen.Facade{})
)

type pendingMethod struct {
	el     *processor.AnnotatedElement
	mirror processor.AnnotationMirror
	anno   annogen.SerializeMethod
}

type claim struct {
	group string
	el    *processor.AnnotatedElement
}

type unitBuilder struct {
	opts        Options
	units       map[string]*GenerationUnit
	order       []*GenerationUnit
	claims      map[string]claim
	serializers map[*types.TypeName][]*GenerationUnit
	diags       []processor.Diagnostic
}

func newUnitBuilder(opts Options) *unitBuilder {
	def := DefaultOptions()
	if opts.BuilderSuffix == "" {
		opts.BuilderSuffix = def.BuilderSuffix
	}
	if opts.SerializerSuffix == "" {
		opts.SerializerSuffix = def.SerializerSuffix
	}
	if opts.SetterPrefix == "" {
		opts.SetterPrefix = def.SetterPrefix
	}
	return &unitBuilder{
		opts:        opts,
		units:       map[string]*GenerationUnit{},
		claims:      map[string]claim{},
		serializers: map[*types.TypeName][]*GenerationUnit{},
	}
}

func (b *unitBuilder) result() ([]*GenerationUnit, []processor.Diagnostic) {
	units := make([]*GenerationUnit, len(b.order))
	copy(units, b.order)
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].Package != units[j].Package {
			return units[i].Package < units[j].Package
		}
		return positionLess(units[i].Origins[0].Pos, units[j].Origins[0].Pos)
	})
	return units, b.diags
}

func (b *unitBuilder) errorf(el *processor.AnnotatedElement, pos token.Position, format string, args ...interface{}) {
	b.diags = append(b.diags, processor.Errorf(el, pos, format, args...))
}

func (b *unitBuilder) reify(el *processor.AnnotatedElement, m processor.AnnotationMirror, target interface{}) bool {
	if err := m.Reify(target); err != nil {
		b.diags = append(b.diags, processor.DiagnosticFromError(el, m.Pos, err))
		return false
	}
	return true
}

// register makes the given unit the owner of its generated names. It reports
// and returns false if a name is already claimed by another unit or declared
// in the package by hand-written code.
func (b *unitBuilder) register(group string, u *GenerationUnit, el *processor.AnnotatedElement, m processor.AnnotationMirror) bool {
	names := []string{u.Target}
	if c := u.Constructor(); c != "" {
		names = append(names, c)
	}
	for _, name := range names {
		qn := u.Package + "." + name
		if c, ok := b.claims[qn]; ok {
			b.errorf(el, m.Pos, "duplicate generated name %s: already generated for %v at %v", qn, c.el, c.el.Pos)
			return false
		}
		if pos, ok := declaredInPackage(el, name); ok {
			b.errorf(el, m.Pos, "cannot generate %s: %s is already declared at %v", u.Target, name, pos)
			return false
		}
	}
	file := u.Package + "/" + u.FileName()
	if c, ok := b.claims[file]; ok {
		b.errorf(el, m.Pos, "cannot generate %s: file %s is already generated for %v at %v", u.Target, u.FileName(), c.el, c.el.Pos)
		return false
	}
	for _, name := range names {
		b.claims[u.Package+"."+name] = claim{group: group, el: el}
	}
	b.claims[file] = claim{group: group, el: el}
	b.units[group] = u
	b.order = append(b.order, u)
	return true
}

func (b *unitBuilder) checkIdentifier(el *processor.AnnotatedElement, pos token.Position, what, name string) bool {
	if !token.IsIdentifier(name) || name == "_" {
		b.errorf(el, pos, "%s %q is not a valid Go identifier", what, name)
		return false
	}
	return true
}

func (b *unitBuilder) structSubject(el *processor.AnnotatedElement, m processor.AnnotationMirror) (*types.Named, *types.Struct, bool) {
	tn, ok := el.Obj.(*types.TypeName)
	if !ok {
		b.errorf(el, m.Pos, "%v can only be used on types", m)
		return nil, nil, false
	}
	if tn.IsAlias() {
		b.errorf(el, m.Pos, "%v cannot be used on type alias %s", m, tn.Name())
		return nil, nil, false
	}
	named, ok := tn.Type().(*types.Named)
	if !ok {
		b.errorf(el, m.Pos, "%v requires a named type", m)
		return nil, nil, false
	}
	if named.TypeParams().Len() > 0 {
		b.errorf(el, m.Pos, "%v cannot be used on generic type %s", m, tn.Name())
		return nil, nil, false
	}
	st, ok := named.Underlying().(*types.Struct)
	if !ok {
		b.errorf(el, m.Pos, "%v requires a struct type, but %s is %s", m, tn.Name(), describeType(named.Underlying()))
		return nil, nil, false
	}
	return named, st, true
}

func (b *unitBuilder) methodSubject(el *processor.AnnotatedElement, m processor.AnnotationMirror) (*types.Func, *types.Signature, *types.Named, bool) {
	fn, ok := el.Obj.(*types.Func)
	if !ok {
		b.errorf(el, m.Pos, "%v can only be used on methods", m)
		return nil, nil, nil, false
	}
	sig := fn.Type().(*types.Signature)
	if sig.Recv() == nil {
		b.errorf(el, m.Pos, "%v can only be used on methods", m)
		return nil, nil, nil, false
	}
	t := sig.Recv().Type()
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	named, ok := t.(*types.Named)
	if !ok {
		b.errorf(el, m.Pos, "%v requires a method of a named type", m)
		return nil, nil, nil, false
	}
	named = named.Origin()
	if named.TypeParams().Len() > 0 {
		b.errorf(el, m.Pos, "%v cannot be used on methods of generic type %s", m, named.Obj().Name())
		return nil, nil, nil, false
	}
	if _, ok := named.Underlying().(*types.Interface); ok {
		b.errorf(el, m.Pos, "%v requires a method of a concrete type, but %s is an interface", m, named.Obj().Name())
		return nil, nil, nil, false
	}
	return fn, sig, named, true
}

func (b *unitBuilder) newUnit(kind UnitKind, el *processor.AnnotatedElement, named *types.Named, target string) *GenerationUnit {
	pkg := named.Obj().Pkg()
	return &GenerationUnit{
		Kind:        kind,
		Target:      target,
		Package:     pkg.Path(),
		PackageName: pkg.Name(),
		Subject:     named,
		Origins:     []*processor.AnnotatedElement{el},
	}
}

func (b *unitBuilder) addBuilder(el *processor.AnnotatedElement, m processor.AnnotationMirror, a annogen.Builder) {
	named, st, ok := b.structSubject(el, m)
	if !ok {
		return
	}
	target := a.Name
	if target == "" {
		target = named.Obj().Name() + b.opts.BuilderSuffix
	}
	if !b.checkIdentifier(el, m.Pos, "builder name", target) {
		return
	}
	u := b.newUnit(BuilderUnit, el, named, target)

	failed := false
	setters := map[string]string{}
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if f.Name() == "_" {
			continue
		}
		pos := fieldPosition(el, f)
		if isInvalid(f.Type()) {
			b.errorf(el, pos, "field %s of %s has an invalid type", f.Name(), named.Obj().Name())
			failed = true
			continue
		}
		setter := b.opts.SetterPrefix + exportedName(f.Name())
		if prev, ok := setters[setter]; ok {
			b.errorf(el, pos, "fields %s and %s of %s both need setter %s", prev, f.Name(), named.Obj().Name(), setter)
			failed = true
			continue
		}
		if setter == "Build" || !token.IsIdentifier(setter) {
			b.errorf(el, pos, "field %s of %s needs setter %s, which is not allowed", f.Name(), named.Obj().Name(), setter)
			failed = true
			continue
		}
		setters[setter] = f.Name()
		u.Members = append(u.Members, Member{
			Name:  setter,
			Kind:  Setter,
			Field: f.Name(),
			Type:  f.Type(),
			Pos:   pos,
		})
	}
	if failed {
		return
	}
	u.Members = append(u.Members, Member{Name: "Build", Kind: BuildMethod, Type: named, Pos: el.Pos})

	group := fmt.Sprintf("builder:%s:%s", qualifiedTypeName(named), target)
	b.register(group, u, el, m)
}

func (b *unitBuilder) addSerializer(el *processor.AnnotatedElement, m processor.AnnotationMirror, a annogen.Serializer) {
	named, st, ok := b.structSubject(el, m)
	if !ok {
		return
	}
	target := a.Name
	if target == "" {
		target = named.Obj().Name() + b.opts.SerializerSuffix
	}
	if !b.checkIdentifier(el, m.Pos, "serializer name", target) {
		return
	}
	u := b.newUnit(SerializerUnit, el, named, target)
	u.FieldFormat = a.FieldFormat
	u.Prettify = a.Prettify

	failed := false
	keys := map[string]string{}
	for i := 0; i < st.NumFields(); i++ {
		f := st.Field(i)
		if f.Name() == "_" {
			continue
		}
		pos := fieldPosition(el, f)
		if isInvalid(f.Type()) {
			b.errorf(el, pos, "field %s of %s has an invalid type", f.Name(), named.Obj().Name())
			failed = true
			continue
		}
		key := a.FieldFormat.Apply(f.Name())
		if prev, ok := keys[key]; ok {
			b.errorf(el, pos, "fields %s and %s of %s are both serialized as %q", prev, f.Name(), named.Obj().Name(), key)
			failed = true
			continue
		}
		keys[key] = f.Name()
		u.Members = append(u.Members, Member{
			Kind:  SerializedField,
			Field: f.Name(),
			Type:  f.Type(),
			Key:   key,
			Pos:   pos,
		})
	}
	if failed {
		return
	}

	group := fmt.Sprintf("serializer:%s:%s", qualifiedTypeName(named), target)
	if b.register(group, u, el, m) {
		b.serializers[named.Obj()] = append(b.serializers[named.Obj()], u)
	}
}

func (b *unitBuilder) addSerializeMethod(pm pendingMethod) {
	el, m := pm.el, pm.mirror
	fn, sig, named, ok := b.methodSubject(el, m)
	if !ok {
		return
	}
	if sig.Params().Len() != 0 || sig.Results().Len() != 1 {
		b.errorf(el, m.Pos, "method %s must take no arguments and return exactly one value to be used with %v", fn.Name(), m)
		return
	}
	if isInvalid(sig.Results().At(0).Type()) {
		b.errorf(el, m.Pos, "method %s has an invalid result type", fn.Name())
		return
	}
	units := b.serializers[named.Obj()]
	if len(units) == 0 {
		b.errorf(el, m.Pos, "%v requires %s to be annotated with @%s.Serializer", m, named.Obj().Name(), annogen.DefaultQualifier)
		return
	}
	name := pm.anno.Name
	if name == "" {
		name = fn.Name()
	}
	for _, u := range units {
		key := u.FieldFormat.Apply(name)
		if dup := findKey(u, key); dup != "" {
			b.errorf(el, m.Pos, "method %s is serialized as %q, which is already used by %s", fn.Name(), key, dup)
			continue
		}
		u.Members = append(u.Members, Member{
			Kind:   SerializedMethod,
			Field:  fn.Name(),
			Type:   sig.Results().At(0).Type(),
			Key:    key,
			Source: el,
			Pos:    el.Pos,
		})
		u.Origins = append(u.Origins, el)
	}
}

func findKey(u *GenerationUnit, key string) string {
	for _, mem := range u.Members {
		if mem.Key == key {
			return mem.Field
		}
	}
	return ""
}

func (b *unitBuilder) addFacade(el *processor.AnnotatedElement, m processor.AnnotationMirror, a annogen.Facade) {
	fn, sig, named, ok := b.methodSubject(el, m)
	if !ok {
		return
	}
	if !b.checkIdentifier(el, m.Pos, "facade name", a.Name) {
		return
	}
	if sig.Variadic() {
		b.errorf(el, m.Pos, "%v cannot be used on variadic method %s", m, fn.Name())
		return
	}
	if fn.Name() == FacadeField {
		b.errorf(el, m.Pos, "%v cannot be used on method %s: the facade keeps the wrapped value in a field of that name", m, fn.Name())
		return
	}
	for i := 0; i < sig.Params().Len(); i++ {
		if isInvalid(sig.Params().At(i).Type()) {
			b.errorf(el, m.Pos, "method %s has a parameter with an invalid type", fn.Name())
			return
		}
	}
	for i := 0; i < sig.Results().Len(); i++ {
		if isInvalid(sig.Results().At(i).Type()) {
			b.errorf(el, m.Pos, "method %s has a result with an invalid type", fn.Name())
			return
		}
	}
	member := Member{
		Name:      fn.Name(),
		Kind:      Delegate,
		Field:     fn.Name(),
		Signature: sig,
		Source:    el,
		Pos:       el.Pos,
	}

	group := fmt.Sprintf("facade:%s:%s", qualifiedTypeName(named), a.Name)
	if u, ok := b.units[group]; ok {
		u.Members = append(u.Members, member)
		u.Origins = append(u.Origins, el)
		return
	}
	u := b.newUnit(FacadeUnit, el, named, a.Name)
	u.Members = []Member{member}
	b.register(group, u, el, m)
}

// declaredInPackage returns the position of a declaration with the given name
// in the element's package, unless that declaration is in a file generated by
// this package (which will be overwritten).
func declaredInPackage(el *processor.AnnotatedElement, name string) (token.Position, bool) {
	pkg := el.Obj.Pkg()
	if pkg == nil {
		return token.Position{}, false
	}
	obj := pkg.Scope().Lookup(name)
	if obj == nil {
		return token.Position{}, false
	}
	if el.Context == nil {
		return token.Position{}, true
	}
	p := el.Context.Package
	if f := p.DeclaringFile(obj.Pos()); f != nil {
		if tf := p.Fset.File(f.Pos()); tf != nil && strings.HasSuffix(tf.Name(), FileSuffix) && ast.IsGenerated(f) {
			return token.Position{}, false
		}
	}
	return p.Fset.Position(obj.Pos()), true
}

func fieldPosition(el *processor.AnnotatedElement, f *types.Var) token.Position {
	if el.Context != nil && f.Pos().IsValid() {
		return el.Context.Package.Fset.Position(f.Pos())
	}
	return el.Pos
}

func sortedElements(elements []*processor.AnnotatedElement) []*processor.AnnotatedElement {
	els := make([]*processor.AnnotatedElement, len(elements))
	copy(els, elements)
	sort.SliceStable(els, func(i, j int) bool {
		pi, pj := packagePath(els[i]), packagePath(els[j])
		if pi != pj {
			return pi < pj
		}
		return positionLess(els[i].Pos, els[j].Pos)
	})
	return els
}

func packagePath(el *processor.AnnotatedElement) string {
	if el.Obj != nil && el.Obj.Pkg() != nil {
		return el.Obj.Pkg().Path()
	}
	return ""
}

func positionLess(a, b token.Position) bool {
	if a.Filename != b.Filename {
		return a.Filename < b.Filename
	}
	return a.Offset < b.Offset
}

func qualifiedTypeName(named *types.Named) string {
	obj := named.Obj()
	if obj.Pkg() == nil {
		return obj.Name()
	}
	return obj.Pkg().Path() + "." + obj.Name()
}

// exportedName returns the given identifier with its first letter in upper
// case, so "name" becomes "Name" and "ID" stays "ID".
func exportedName(name string) string {
	r, sz := utf8.DecodeRuneInString(name)
	if r == '_' {
		return "X" + name
	}
	return string(unicode.ToUpper(r)) + name[sz:]
}

func isInvalid(t types.Type) bool {
	switch t := t.(type) {
	case *types.Basic:
		return t.Kind() == types.Invalid
	case *types.Pointer:
		return isInvalid(t.Elem())
	case *types.Slice:
		return isInvalid(t.Elem())
	case *types.Array:
		return isInvalid(t.Elem())
	case *types.Map:
		return isInvalid(t.Key()) || isInvalid(t.Elem())
	case *types.Chan:
		return isInvalid(t.Elem())
	default:
		return false
	}
}

func describeType(t types.Type) string {
	switch t := t.(type) {
	case *types.Interface:
		return "an interface"
	case *types.Basic:
		return fmt.Sprintf("a %s", t.Name())
	case *types.Slice:
		return "a slice"
	case *types.Array:
		return "an array"
	case *types.Map:
		return "a map"
	case *types.Pointer:
		return "a pointer"
	case *types.Signature:
		return "a func"
	case *types.Chan:
		return "a chan"
	default:
		return types.TypeString(t, nil)
	}
}
