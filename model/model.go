// Package model turns annotated elements into generation units: validated,
// self-contained descriptions of the code to generate for one target type.
package model

import (
	"fmt"
	"go/token"
	"go/types"

	"github.com/iancoleman/strcase"

	"github.com/jhump/annogen"
	"github.com/jhump/annogen/processor"
)

// FileSuffix is the suffix of the names of all generated files.
const FileSuffix = "_annogen.go"

// FacadeField is the name of the field in which a facade keeps the value it
// wraps. No delegated method may have this name.
const FacadeField = "target"

// UnitKind identifies what kind of code a GenerationUnit describes.
type UnitKind int

const (
	BuilderUnit UnitKind = iota
	SerializerUnit
	FacadeUnit
)

func (k UnitKind) String() string {
	switch k {
	case BuilderUnit:
		return "builder"
	case SerializerUnit:
		return "serializer"
	case FacadeUnit:
		return "facade"
	default:
		return fmt.Sprintf("UnitKind(%d)", int(k))
	}
}

// MemberKind identifies a member of a generated type.
type MemberKind int

const (
	// Setter is a fluent builder method that sets one field.
	Setter MemberKind = iota
	// BuildMethod returns the value assembled by a builder.
	BuildMethod
	// SerializedField is a field written by a serializer.
	SerializedField
	// SerializedMethod is a method whose result is written by a serializer.
	SerializedMethod
	// Delegate is a facade method that forwards to the wrapped value.
	Delegate
)

func (k MemberKind) String() string {
	switch k {
	case Setter:
		return "setter"
	case BuildMethod:
		return "build method"
	case SerializedField:
		return "serialized field"
	case SerializedMethod:
		return "serialized method"
	case Delegate:
		return "delegate"
	default:
		return fmt.Sprintf("MemberKind(%d)", int(k))
	}
}

// Member is one member of a generation unit.
type Member struct {
	// Name is the name of the generated method, if the member generates one.
	Name string
	Kind MemberKind
	// Field is the name of the field or method of the subject type that the
	// member reads or writes.
	Field string
	// Type is the type of the field, or the result type of the method.
	Type types.Type
	// Signature is the signature of a delegated method.
	Signature *types.Signature
	// Key is the object key written by a serializer.
	Key string
	// Source is the annotated element the member comes from. It is nil for
	// members derived from a struct field, which needs no annotation.
	Source *processor.AnnotatedElement
	Pos    token.Position
}

// GenerationUnit describes one generated type and everything that goes into
// the file that declares it.
type GenerationUnit struct {
	Kind UnitKind
	// Target is the simple name of the generated type.
	Target string
	// Package is the import path of the package the code is generated into,
	// which is the package of the subject.
	Package     string
	PackageName string
	// Subject is the annotated type the code is derived from.
	Subject *types.Named
	Members []Member
	// Origins are the annotated elements that contributed to this unit, in
	// source order. The first is the one that claimed the target name.
	Origins []*processor.AnnotatedElement

	// Serializer options.
	FieldFormat annogen.FieldFormat
	Prettify    bool
}

// QualifiedName returns the target's name qualified with its package path.
func (u *GenerationUnit) QualifiedName() string {
	return u.Package + "." + u.Target
}

// Constructor returns the name of the generated constructor function, or the
// empty string if the unit has none.
func (u *GenerationUnit) Constructor() string {
	if u.Kind == SerializerUnit {
		return ""
	}
	return "New" + u.Target
}

// FileName returns the name of the file generated for this unit.
func (u *GenerationUnit) FileName() string {
	return strcase.ToSnake(u.Target) + FileSuffix
}

// Options customize the names of generated code.
type Options struct {
	BuilderSuffix    string `mapstructure:"builder_suffix"`
	SerializerSuffix string `mapstructure:"serializer_suffix"`
	SetterPrefix     string `mapstructure:"setter_prefix"`
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		BuilderSuffix:    "Builder",
		SerializerSuffix: "Serializer",
		SetterPrefix:     "With",
	}
}
