package annogen

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
)

// PackagePath is the import path of this package. Annotations whose qualifier
// resolves to this path are the ones processed by the annogen generator.
const PackagePath = "github.com/jhump/annogen"

// DefaultQualifier is the qualifier that always refers to this package, even
// in files that do not import it. Annotations live only in comments, so most
// sources never need the import.
const DefaultQualifier = "annogen"

// Builder is an annotation that generates a builder for a struct type. The
// generated type has a constructor, one fluent setter per field of the struct
// (in declaration order), and a Build method that returns the assembled value.
// For example:
//
//    // @annogen.Builder
//    type Person struct {
//        ID   int
//        Name string
//    }
//
// generates PersonBuilder, NewPersonBuilder, WithID, WithName, and Build.
//
// The annotation is only allowed on named, non-generic struct types.
type Builder struct {
	// Name is the name of the generated type. If empty, the name of the
	// annotated type plus "Builder" is used.
	Name string `annogen:"positional"`
}

// Serializer is an annotation that generates a JSON serializer for a struct
// type. The generated type has a Serialize method that writes every field of
// the struct, plus the results of any methods annotated with SerializeMethod,
// as one JSON object. Keys are derived from field and method names using the
// configured FieldFormat.
//
// The annotation is only allowed on named, non-generic struct types.
type Serializer struct {
	// Name is the name of the generated type. If empty, the name of the
	// annotated type plus "Serializer" is used.
	Name string `annogen:"positional"`

	// FieldFormat controls how keys are derived from Go names.
	FieldFormat FieldFormat `annogen:"default=CamelCase"`

	// Prettify indicates that output is indented, one key per line.
	Prettify bool `annogen:"default=true"`
}

// SerializeMethod is an annotation for methods of a type that is annotated
// with Serializer. The method's result is written by the generated serializer
// under the given name, or under the method's name if no name is given. The
// method must accept no arguments and return exactly one value.
type SerializeMethod struct {
	Name string `annogen:"positional"`
}

// Facade is an annotation for methods. All methods of a type that name the
// same facade are exposed, and only they, by a generated wrapper type with the
// given name:
//
//    // @annogen.Facade("Greeter")
//    func (p *Person) Greet(other string) string { ... }
//
// generates type Greeter, NewGreeter(*Person) Greeter, and a Greet method
// that delegates to the wrapped *Person.
type Facade struct {
	Name string `annogen:"required,positional"`
}

// ElementKind is an enumeration of the kinds of elements that can be annotated.
type ElementKind int

const (
	// Types are top-level, named types.
	Types ElementKind = iota

	// Fields are fields of top-level, named struct types.
	Fields

	// Methods are methods of top-level, named types, including the methods
	// that comprise a top-level interface.
	Methods

	// Functions are top-level functions that are not methods.
	Functions

	// Variables are package-level variables.
	Variables

	// Constants are package-level constants.
	Constants
)

func (k ElementKind) String() string {
	switch k {
	case Types:
		return "types"
	case Fields:
		return "fields"
	case Methods:
		return "methods"
	case Functions:
		return "functions"
	case Variables:
		return "variables"
	case Constants:
		return "constants"
	default:
		return fmt.Sprintf("?%d?", int(k))
	}
}

// FieldFormat is an enumeration of the ways a Serializer derives object keys
// from Go identifiers.
type FieldFormat int

const (
	// CamelCase keys look like "fullName".
	CamelCase FieldFormat = iota
	// PascalCase keys look like "FullName".
	PascalCase
	// SnakeCase keys look like "full_name".
	SnakeCase
	// KebabCase keys look like "full-name".
	KebabCase
)

var fieldFormatNames = map[FieldFormat]string{
	CamelCase:  "CamelCase",
	PascalCase: "PascalCase",
	SnakeCase:  "SnakeCase",
	KebabCase:  "KebabCase",
}

func (f FieldFormat) String() string {
	if n, ok := fieldFormatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("FieldFormat(%d)", int(f))
}

// UnmarshalText lets annotation values refer to a format by its constant name,
// with or without a package qualifier (e.g. SnakeCase or annogen.SnakeCase).
func (f *FieldFormat) UnmarshalText(text []byte) error {
	s := string(text)
	if pos := strings.LastIndexByte(s, '.'); pos >= 0 {
		s = s[pos+1:]
	}
	for v, n := range fieldFormatNames {
		if n == s {
			*f = v
			return nil
		}
	}
	return fmt.Errorf("unknown field format %q", string(text))
}

// Apply converts the given Go identifier into a key in this format.
func (f FieldFormat) Apply(name string) string {
	switch f {
	case PascalCase:
		return strcase.ToCamel(name)
	case SnakeCase:
		return strcase.ToSnake(name)
	case KebabCase:
		return strcase.ToKebab(name)
	default:
		return strcase.ToLowerCamel(name)
	}
}
