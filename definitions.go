package annogen

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/structtag"
)

// Definition describes an annotation type: its name, the kinds of elements it
// may be applied to, and its members. Definitions are computed from the Go
// struct type that represents the annotation and the "annogen" struct tags on
// its fields.
type Definition struct {
	Name            string
	Type            reflect.Type
	AllowedElements []ElementKind
	Members         []*MemberDefinition
}

// MemberDefinition describes one member (field) of an annotation type.
type MemberDefinition struct {
	Name       string
	Index      int
	Type       reflect.Type
	Required   bool
	Positional bool
	// Default is the textual default value. It is only meaningful when
	// HasDefault is true.
	Default    string
	HasDefault bool
}

var definitions = []*Definition{
	mustDefine(Builder{}, Types),
	mustDefine(Serializer{}, Types),
	mustDefine(SerializeMethod{}, Methods),
	mustDefine(Facade{}, Methods),
}

// Definitions returns all annotation definitions, sorted by name.
func Definitions() []*Definition {
	defs := make([]*Definition, len(definitions))
	copy(defs, definitions)
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})
	return defs
}

// LookupDefinition returns the definition for the annotation with the given
// simple name or nil if there is no such annotation.
func LookupDefinition(name string) *Definition {
	for _, d := range definitions {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func mustDefine(v interface{}, allowed ...ElementKind) *Definition {
	d, err := Define(reflect.TypeOf(v), allowed...)
	if err != nil {
		panic(err)
	}
	return d
}

// Define computes the definition of the given annotation struct type. It
// returns an error if the struct tags are malformed, if more than one member
// is positional, or if a default value cannot be assigned to its member.
func Define(t reflect.Type, allowed ...ElementKind) (*Definition, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("annotation type %v must be a struct, instead is %v", t, t.Kind())
	}
	d := &Definition{Name: t.Name(), Type: t, AllowedElements: allowed}
	var positional string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			// unexported
			continue
		}
		m := &MemberDefinition{Name: f.Name, Index: i, Type: f.Type}
		if err := parseMemberTag(m, f.Tag); err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		if m.Positional {
			if positional != "" {
				return nil, fmt.Errorf("%s: members %s and %s are both positional", t.Name(), positional, m.Name)
			}
			positional = m.Name
		}
		if m.HasDefault {
			if err := Assign(reflect.New(m.Type).Elem(), m.Default); err != nil {
				return nil, fmt.Errorf("%s.%s: bad default: %w", t.Name(), f.Name, err)
			}
		}
		d.Members = append(d.Members, m)
	}
	return d, nil
}

func parseMemberTag(m *MemberDefinition, tag reflect.StructTag) error {
	tags, err := structtag.Parse(string(tag))
	if err != nil {
		return err
	}
	t, err := tags.Get("annogen")
	if err != nil {
		// no annogen tag
		return nil
	}
	for _, opt := range append([]string{t.Name}, t.Options...) {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "":
		case opt == "required":
			m.Required = true
		case opt == "positional":
			m.Positional = true
		case strings.HasPrefix(opt, "default="):
			m.Default = strings.TrimPrefix(opt, "default=")
			m.HasDefault = true
		default:
			return fmt.Errorf("unknown annogen tag option %q", opt)
		}
	}
	if m.Required && m.HasDefault {
		return fmt.Errorf("member cannot be both required and have a default")
	}
	return nil
}

// Allows returns true if the annotation may be applied to elements of the
// given kind.
func (d *Definition) Allows(k ElementKind) bool {
	for _, a := range d.AllowedElements {
		if a == k {
			return true
		}
	}
	return false
}

// Member returns the member with the given name or nil if there is none.
func (d *Definition) Member(name string) *MemberDefinition {
	for _, m := range d.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// PositionalMember returns the member that receives a value written in
// parentheses, e.g. @annogen.Facade("Name"). If no member is tagged positional,
// the first member is used. It returns nil for annotations without members.
func (d *Definition) PositionalMember() *MemberDefinition {
	for _, m := range d.Members {
		if m.Positional {
			return m
		}
	}
	if len(d.Members) > 0 {
		return d.Members[0]
	}
	return nil
}

// New returns a pointer to a new instance of the annotation type with all
// member defaults applied.
func (d *Definition) New() reflect.Value {
	v := reflect.New(d.Type)
	for _, m := range d.Members {
		if m.HasDefault {
			// cannot fail: checked by Define
			_ = Assign(v.Elem().Field(m.Index), m.Default)
		}
	}
	return v
}

// Assign parses the given text and stores it into v, which must be settable.
// Types that implement encoding.TextUnmarshaler are parsed with it. Otherwise
// strings, booleans, and numeric kinds are supported.
func Assign(v reflect.Value, text string) error {
	if v.CanAddr() {
		if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
			return u.UnmarshalText([]byte(text))
		}
	}
	switch v.Kind() {
	case reflect.String:
		v.SetString(text)
	case reflect.Bool:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(text, 0, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, err := strconv.ParseUint(text, 0, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(text, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("cannot assign text to value of type %v", v.Type())
	}
	return nil
}
