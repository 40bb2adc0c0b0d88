// Package emit renders generation units as Go source files.
package emit

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"go/types"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/jhump/gopoet"

	"github.com/jhump/annogen/model"
	"github.com/jhump/annogen/processor"
)

// Header is the first line of every generated file. It follows the convention
// recognized by Go tools for generated code.
const Header = "// Code generated by annogen. DO NOT EDIT."

// CompilationUnit is a rendered source file.
type CompilationUnit struct {
	// Package is the import path of the file's package.
	Package string
	// FileName is the base name of the file.
	FileName string
	// Content is the gofmt-formatted source.
	Content []byte
	// Origins are the annotated elements the file was generated from.
	Origins []*processor.AnnotatedElement
}

// Error is returned when a unit cannot be rendered. Unlike diagnostics from
// model.Build, these indicate a unit that should not have passed validation.
type Error struct {
	Unit string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot emit %s: %v", e.Unit, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	bytesBuffer  = gopoet.NewPackage("bytes").Symbol("Buffer")
	jsonMarshal  = gopoet.NewPackage("encoding/json").Symbol("Marshal")
	jsonIndent   = gopoet.NewPackage("encoding/json").Symbol("MarshalIndent")
	byteSlice    = gopoet.SliceType(gopoet.BasicType(reflect.Uint8))
	reservedArgs = map[string]struct{}{"f": {}, "_": {}}
)

// Emit renders the given unit as a Go source file. The output for a given unit
// is the same every time.
func Emit(u *model.GenerationUnit) (*CompilationUnit, error) {
	if err := validate(u); err != nil {
		return nil, &Error{Unit: u.QualifiedName(), Err: err}
	}

	file := gopoet.NewGoFile(u.FileName(), u.Package, u.PackageName)
	var err error
	switch u.Kind {
	case model.BuilderUnit:
		err = emitBuilder(file, u)
	case model.SerializerUnit:
		err = emitSerializer(file, u)
	case model.FacadeUnit:
		err = emitFacade(file, u)
	default:
		err = fmt.Errorf("unsupported unit kind %v", u.Kind)
	}
	if err != nil {
		return nil, &Error{Unit: u.QualifiedName(), Err: err}
	}

	var buf bytes.Buffer
	writeHeader(&buf, u)
	if err := gopoet.WriteGoFile(&buf, file); err != nil {
		return nil, &Error{Unit: u.QualifiedName(), Err: err}
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, &Error{Unit: u.QualifiedName(), Err: fmt.Errorf("generated code does not parse: %w", err)}
	}
	return &CompilationUnit{
		Package:  u.Package,
		FileName: u.FileName(),
		Content:  src,
		Origins:  u.Origins,
	}, nil
}

func writeHeader(buf *bytes.Buffer, u *model.GenerationUnit) {
	buf.WriteString(Header)
	buf.WriteByte('\n')
	for _, o := range u.Origins {
		fmt.Fprintf(buf, "// source: %s:%d (%v)\n", filepath.Base(o.Pos.Filename), o.Pos.Line, o)
	}
	buf.WriteByte('\n')
}

func validate(u *model.GenerationUnit) error {
	if !isIdentifier(u.Target) {
		return fmt.Errorf("%q is not a valid identifier", u.Target)
	}
	if !isIdentifier(u.PackageName) {
		return fmt.Errorf("%q is not a valid package name", u.PackageName)
	}
	if u.Subject == nil {
		return fmt.Errorf("unit has no subject type")
	}
	for _, m := range u.Members {
		switch m.Kind {
		case model.Setter, model.BuildMethod, model.Delegate:
			if !isIdentifier(m.Name) {
				return fmt.Errorf("%q is not a valid method name", m.Name)
			}
		}
		switch m.Kind {
		case model.Setter, model.SerializedField, model.SerializedMethod, model.Delegate:
			if !isIdentifier(m.Field) {
				return fmt.Errorf("%q is not a valid field or method name", m.Field)
			}
		}
		if m.Kind == model.Delegate && m.Signature == nil {
			return fmt.Errorf("delegate %s has no signature", m.Name)
		}
	}
	return nil
}

func isIdentifier(s string) bool {
	return token.IsIdentifier(s) && s != "_"
}

// targetType returns the name of the generated type.
func targetType(u *model.GenerationUnit) gopoet.TypeName {
	pkg := gopoet.Package{ImportPath: u.Package, Name: u.PackageName}
	return gopoet.NamedType(pkg.Symbol(u.Target))
}

func emitBuilder(file *gopoet.GoFile, u *model.GenerationUnit) error {
	subject, err := typeName(u.Subject)
	if err != nil {
		return err
	}
	spec := gopoet.NewStructTypeSpec(u.Target, gopoet.NewField("value", subject))
	spec.SetComment(fmt.Sprintf("%s assembles values of type %s.", u.Target, u.Subject.Obj().Name()))
	file.AddType(spec)

	ptr := gopoet.PointerType(targetType(u))

	ctor := gopoet.NewFunc(u.Constructor())
	ctor.SetComment(fmt.Sprintf("%s returns a builder for values of type %s.", u.Constructor(), u.Subject.Obj().Name()))
	ctor.AddResult("", ptr)
	ctor.Printlnf("return &%s{}", u.Target)
	file.AddElement(ctor)

	rcvr := gopoet.NewPointerReceiverForType("b", spec)
	for _, m := range u.Members {
		switch m.Kind {
		case model.Setter:
			t, err := typeName(m.Type)
			if err != nil {
				return fmt.Errorf("field %s: %w", m.Field, err)
			}
			meth := gopoet.NewMethod(rcvr, m.Name)
			meth.AddArg("v", t)
			meth.AddResult("", ptr)
			meth.Printlnf("b.value.%s = v", m.Field)
			meth.Println("return b")
			file.AddElement(meth)
		case model.BuildMethod:
			meth := gopoet.NewMethod(rcvr, m.Name)
			meth.AddResult("", subject)
			meth.Println("return b.value")
			file.AddElement(meth)
		default:
			return fmt.Errorf("member kind %v cannot be used in a builder", m.Kind)
		}
	}
	return nil
}

func emitSerializer(file *gopoet.GoFile, u *model.GenerationUnit) error {
	spec := gopoet.NewStructTypeSpec(u.Target)
	spec.SetComment(fmt.Sprintf("%s writes values of type %s as JSON.", u.Target, u.Subject.Obj().Name()))
	file.AddType(spec)

	subject, err := typeName(u.Subject)
	if err != nil {
		return err
	}
	rcvr := gopoet.NewReceiverForType("s", spec)
	meth := gopoet.NewMethod(rcvr, "Serialize")
	meth.AddArg("v", gopoet.PointerType(subject))
	meth.AddResult("", byteSlice)
	meth.AddResult("", gopoet.ErrorType)

	meth.Printlnf("var buf %s", bytesBuffer)
	meth.Println("var b []byte")
	meth.Println("var err error")
	meth.Println(`buf.WriteString("{")`)
	for i, m := range u.Members {
		var access string
		switch m.Kind {
		case model.SerializedField:
			access = "v." + m.Field
		case model.SerializedMethod:
			access = "v." + m.Field + "()"
		default:
			return fmt.Errorf("member kind %v cannot be used in a serializer", m.Kind)
		}
		var prefix strings.Builder
		if i > 0 {
			prefix.WriteByte(',')
		}
		if u.Prettify {
			prefix.WriteString("\n    ")
		}
		prefix.WriteString(strconv.Quote(m.Key))
		prefix.WriteByte(':')

		if u.Prettify {
			meth.Printlnf(`b, err = %s(%s, "    ", "    ")`, jsonIndent, access)
		} else {
			meth.Printlnf("b, err = %s(%s)", jsonMarshal, access)
		}
		meth.Println("if err != nil {")
		meth.Println("return nil, err")
		meth.Println("}")
		meth.Printlnf("buf.WriteString(%q)", prefix.String())
		meth.Println("buf.Write(b)")
	}
	closing := "}"
	if u.Prettify && len(u.Members) > 0 {
		closing = "\n}"
	}
	meth.Printlnf("buf.WriteString(%q)", closing)
	if len(u.Members) == 0 {
		meth.Println("_, _ = b, err")
	}
	meth.Println("return buf.Bytes(), nil")
	file.AddElement(meth)
	return nil
}

func emitFacade(file *gopoet.GoFile, u *model.GenerationUnit) error {
	subject, err := typeName(u.Subject)
	if err != nil {
		return err
	}
	wrapped := gopoet.PointerType(subject)
	spec := gopoet.NewStructTypeSpec(u.Target, gopoet.NewField(model.FacadeField, wrapped))
	spec.SetComment(fmt.Sprintf("%s exposes selected methods of %s.", u.Target, u.Subject.Obj().Name()))
	file.AddType(spec)

	ctor := gopoet.NewFunc(u.Constructor())
	ctor.SetComment(fmt.Sprintf("%s returns a %s that delegates to the given value.", u.Constructor(), u.Target))
	ctor.AddArg("target", wrapped)
	ctor.AddResult("", targetType(u))
	ctor.Printlnf("return %s{%s: target}", u.Target, model.FacadeField)
	file.AddElement(ctor)

	rcvr := gopoet.NewReceiverForType("f", spec)
	for _, m := range u.Members {
		if m.Kind != model.Delegate {
			return fmt.Errorf("member kind %v cannot be used in a facade", m.Kind)
		}
		if m.Signature.Variadic() {
			return fmt.Errorf("method %s is variadic", m.Name)
		}
		if m.Name == model.FacadeField {
			return fmt.Errorf("method %s conflicts with the field holding the wrapped value", m.Name)
		}
		meth := gopoet.NewMethod(rcvr, m.Name)
		params := m.Signature.Params()
		args := argNames(params)
		for i := 0; i < params.Len(); i++ {
			t, err := typeName(params.At(i).Type())
			if err != nil {
				return fmt.Errorf("method %s: %w", m.Name, err)
			}
			meth.AddArg(args[i], t)
		}
		results := m.Signature.Results()
		for i := 0; i < results.Len(); i++ {
			t, err := typeName(results.At(i).Type())
			if err != nil {
				return fmt.Errorf("method %s: %w", m.Name, err)
			}
			meth.AddResult("", t)
		}
		call := fmt.Sprintf("f.%s.%s(%s)", model.FacadeField, m.Field, strings.Join(args, ", "))
		if results.Len() > 0 {
			meth.Printlnf("return %s", call)
		} else {
			meth.Println(call)
		}
		file.AddElement(meth)
	}
	return nil
}

// argNames returns names for the parameters of a delegated method. Unnamed
// parameters and those that would shadow the receiver get positional names.
func argNames(params *types.Tuple) []string {
	used := map[string]struct{}{}
	for i := 0; i < params.Len(); i++ {
		used[params.At(i).Name()] = struct{}{}
	}
	names := make([]string, params.Len())
	for i := range names {
		name := params.At(i).Name()
		if _, reserved := reservedArgs[name]; reserved || name == "" {
			name = fmt.Sprintf("p%d", i)
			for {
				if _, ok := used[name]; !ok {
					break
				}
				name += "_"
			}
			used[name] = struct{}{}
		}
		names[i] = name
	}
	return names
}
