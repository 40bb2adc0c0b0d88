package annogen_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhump/annogen"
)

func TestDefinitions(t *testing.T) {
	var names []string
	for _, d := range annogen.Definitions() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Builder", "Facade", "SerializeMethod", "Serializer"}, names)

	assert.Nil(t, annogen.LookupDefinition("Nope"))

	facade := annogen.LookupDefinition("Facade")
	require.NotNil(t, facade)
	assert.Equal(t, reflect.TypeOf(annogen.Facade{}), facade.Type)
	assert.True(t, facade.Allows(annogen.Methods))
	assert.False(t, facade.Allows(annogen.Types))
	name := facade.Member("Name")
	require.NotNil(t, name)
	assert.True(t, name.Required)
	assert.True(t, name.Positional)
	assert.Same(t, name, facade.PositionalMember())

	ser := annogen.LookupDefinition("Serializer")
	require.NotNil(t, ser)
	assert.True(t, ser.Allows(annogen.Types))
	prettify := ser.Member("Prettify")
	require.NotNil(t, prettify)
	assert.True(t, prettify.HasDefault)
	assert.Equal(t, "true", prettify.Default)
	assert.Equal(t, "Name", ser.PositionalMember().Name)
	assert.Equal(t, annogen.Serializer{FieldFormat: annogen.CamelCase, Prettify: true}, ser.New().Elem().Interface())
}

type widget struct {
	Label  string  `annogen:"positional"`
	Count  int     `annogen:"default=0x10"`
	Ratio  float64 `annogen:"default=0.5"`
	Size   uint8   `annogen:"default=7"`
	Format annogen.FieldFormat
	hidden bool
}

func TestDefine(t *testing.T) {
	d, err := annogen.Define(reflect.TypeOf(widget{}), annogen.Fields, annogen.Variables)
	require.NoError(t, err)
	assert.Equal(t, "widget", d.Name)
	require.Len(t, d.Members, 5)
	assert.Nil(t, d.Member("hidden"))
	assert.Equal(t, 4, d.Member("Format").Index)
	w := d.New().Elem().Interface().(widget)
	assert.Equal(t, widget{Count: 16, Ratio: 0.5, Size: 7}, w)
}

func TestDefine_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		typ     interface{}
		message string
	}{
		{
			name:    "not a struct",
			typ:     0,
			message: "annotation type int must be a struct, instead is int",
		},
		{
			name: "two positional",
			typ: struct {
				A string `annogen:"positional"`
				B string `annogen:"positional"`
			}{},
			message: ": members A and B are both positional",
		},
		{
			name: "bad option",
			typ: struct {
				A string `annogen:"optional"`
			}{},
			message: `.A: unknown annogen tag option "optional"`,
		},
		{
			name: "required with default",
			typ: struct {
				A string `annogen:"required,default=x"`
			}{},
			message: ".A: member cannot be both required and have a default",
		},
		{
			name: "bad default",
			typ: struct {
				A bool `annogen:"default=maybe"`
			}{},
			message: `.A: bad default: strconv.ParseBool: parsing "maybe": invalid syntax`,
		},
		{
			name: "unsupported default",
			typ: struct {
				A []string `annogen:"default=x"`
			}{},
			message: ".A: bad default: cannot assign text to value of type []string",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := annogen.Define(reflect.TypeOf(tc.typ))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestFieldFormat(t *testing.T) {
	testCases := []struct {
		format annogen.FieldFormat
		input  string
		output string
	}{
		{annogen.CamelCase, "FullName", "fullName"},
		{annogen.CamelCase, "fullName", "fullName"},
		{annogen.PascalCase, "fullName", "FullName"},
		{annogen.SnakeCase, "FullName", "full_name"},
		{annogen.SnakeCase, "fullName", "full_name"},
		{annogen.KebabCase, "FullName", "full-name"},
		{annogen.KebabCase, "full_name", "full-name"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.output, tc.format.Apply(tc.input), "%v.Apply(%q)", tc.format, tc.input)
	}
}

func TestFieldFormat_UnmarshalText(t *testing.T) {
	var f annogen.FieldFormat
	require.NoError(t, f.UnmarshalText([]byte("SnakeCase")))
	assert.Equal(t, annogen.SnakeCase, f)
	require.NoError(t, f.UnmarshalText([]byte("annogen.KebabCase")))
	assert.Equal(t, annogen.KebabCase, f)
	assert.EqualError(t, f.UnmarshalText([]byte("Title")), `unknown field format "Title"`)

	assert.Equal(t, "PascalCase", annogen.PascalCase.String())
	assert.Equal(t, "FieldFormat(9)", annogen.FieldFormat(9).String())
}

func TestElementKind(t *testing.T) {
	assert.Equal(t, "types", annogen.Types.String())
	assert.Equal(t, "methods", annogen.Methods.String())
	assert.Equal(t, "constants", annogen.Constants.String())
}
