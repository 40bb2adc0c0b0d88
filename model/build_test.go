package model_test

import (
	"go/types"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhump/annogen"
	"github.com/jhump/annogen/internal/apttest"
	"github.com/jhump/annogen/model"
	"github.com/jhump/annogen/processor"
)

const pkgPath = "example.com/shapes"

func build(t *testing.T, src string) ([]*model.GenerationUnit, []processor.Diagnostic) {
	t.Helper()
	elements := apttest.Elements(t, pkgPath, map[string]string{"shapes.go": src})
	return model.Build(elements, model.DefaultOptions())
}

func messages(diags []processor.Diagnostic) []string {
	msgs := make([]string, len(diags))
	for i, d := range diags {
		msgs[i] = d.Message
	}
	return msgs
}

func TestBuild_FacadeFromSingleMethod(t *testing.T) {
	units, diags := build(t, `package shapes

type Circle struct{ r float64 }

// @annogen.Facade{Name: "Bar"}
func (c *Circle) foo() float64 { return c.r }
`)
	require.Empty(t, diags)
	require.Len(t, units, 1)
	u := units[0]
	assert.Equal(t, model.FacadeUnit, u.Kind)
	assert.Equal(t, "Bar", u.Target)
	assert.Equal(t, "NewBar", u.Constructor())
	assert.Equal(t, "bar_annogen.go", u.FileName())
	assert.Equal(t, pkgPath+".Bar", u.QualifiedName())
	assert.Equal(t, "Circle", u.Subject.Obj().Name())
	require.Len(t, u.Members, 1)
	assert.Equal(t, "foo", u.Members[0].Name)
	assert.Equal(t, model.Delegate, u.Members[0].Kind)
	require.Len(t, u.Origins, 1)
	assert.Equal(t, "foo", u.Origins[0].Name)
}

func TestBuild_DuplicateTargetName(t *testing.T) {
	units, diags := build(t, `package shapes

// @annogen.Builder("Bar")
type Square struct{ side int }

// @annogen.Builder("Bar")
type Rect struct{ w, h int }
`)
	require.Len(t, units, 1)
	assert.Equal(t, "Square", units[0].Subject.Obj().Name())
	require.Len(t, diags, 1)
	assert.Equal(t, "Rect", diags[0].Element.Name)
	assert.Equal(t, processor.SeverityError, diags[0].Severity)
	assert.Contains(t, diags[0].Message, "duplicate generated name example.com/shapes.Bar")
}

func TestBuild_DuplicateConstructorName(t *testing.T) {
	// Square's builder is named Rect, whose constructor collides with NewRect
	_, diags := build(t, `package shapes

// @annogen.Builder("Rect")
type Square struct{ side int }

func NewRect() {}
`)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "NewRect is already declared")
}

func TestBuild_DuplicateFileName(t *testing.T) {
	// both names are written to url_builder_annogen.go
	units, diags := build(t, `package shapes

// @annogen.Builder("URLBuilder")
type A struct{ X int }

// @annogen.Builder("UrlBuilder")
type B struct{ Y int }

// @annogen.Builder
type C struct{ Z int }
`)
	require.Len(t, units, 2)
	assert.Equal(t, "URLBuilder", units[0].Target)
	assert.Equal(t, "CBuilder", units[1].Target)
	require.Len(t, diags, 1)
	assert.Equal(t, "B", diags[0].Element.Name)
	assert.Contains(t, diags[0].Message, "cannot generate UrlBuilder: file url_builder_annogen.go is already generated for type example.com/shapes.A")
}

func TestBuild_FacadeMethodNamedLikeField(t *testing.T) {
	units, diags := build(t, `package shapes

type Store struct{}

// @annogen.Facade("Reader")
func (s *Store) target() int { return 0 }

// @annogen.Facade("Reader")
func (s *Store) Get() int { return 1 }
`)
	require.Len(t, units, 1)
	require.Len(t, units[0].Members, 1)
	assert.Equal(t, "Get", units[0].Members[0].Name)
	assert.Equal(t, []string{
		"@annogen.Facade cannot be used on method " + model.FacadeField + ": the facade keeps the wrapped value in a field of that name",
	}, messages(diags))
}

func TestBuild_NoElements(t *testing.T) {
	units, diags := model.Build(nil, model.DefaultOptions())
	assert.Empty(t, units)
	assert.Empty(t, diags)
}

func TestBuild_InvalidElementKind(t *testing.T) {
	units, diags := build(t, `package shapes

// @annogen.Builder
var origin int

// @annogen.Facade("Bar")
func free() {}
`)
	assert.Empty(t, units)
	require.Len(t, diags, 2)
	assert.Equal(t, "@annogen.Builder cannot be used on variables", diags[0].Message)
	assert.Equal(t, "@annogen.Facade cannot be used on functions", diags[1].Message)
}

func TestBuild_Builder(t *testing.T) {
	units, diags := build(t, `package shapes

import "time"

// @annogen.Builder
type Person struct {
	name    string
	Age     int
	ID      string
	Born    time.Time
	_       int
}
`)
	require.Empty(t, diags)
	require.Len(t, units, 1)
	u := units[0]
	assert.Equal(t, model.BuilderUnit, u.Kind)
	assert.Equal(t, "PersonBuilder", u.Target)
	assert.Equal(t, "person_builder_annogen.go", u.FileName())

	var names []string
	for _, m := range u.Members {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"WithName", "WithAge", "WithID", "WithBorn", "Build"}, names)
	assert.Equal(t, "name", u.Members[0].Field)
	assert.Equal(t, "time.Time", types.TypeString(u.Members[3].Type, nil))
	assert.Equal(t, model.BuildMethod, u.Members[4].Kind)
}

func TestBuild_BuilderOptions(t *testing.T) {
	elements := apttest.Elements(t, pkgPath, map[string]string{"shapes.go": `package shapes

// @annogen.Builder
type Point struct{ X, Y int }
`})
	units, diags := model.Build(elements, model.Options{BuilderSuffix: "Maker", SetterPrefix: "Set"})
	require.Empty(t, diags)
	require.Len(t, units, 1)
	assert.Equal(t, "PointMaker", units[0].Target)
	assert.Equal(t, "SetX", units[0].Members[0].Name)
}

func TestBuild_BuilderConflictingSetters(t *testing.T) {
	units, diags := build(t, `package shapes

// @annogen.Builder
type Point struct {
	x int
	X int
}
`)
	assert.Empty(t, units)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "both need setter WithX")
}

func TestBuild_BuilderRequiresStruct(t *testing.T) {
	units, diags := build(t, `package shapes

// @annogen.Builder
type Celsius float64

// @annogen.Builder
type Pair[T any] struct{ a, b T }
`)
	assert.Empty(t, units)
	assert.Equal(t, []string{
		"@annogen.Builder requires a struct type, but Celsius is a float64",
		"@annogen.Builder cannot be used on generic type Pair",
	}, messages(diags))
}

func TestBuild_Serializer(t *testing.T) {
	units, diags := build(t, `package shapes

// @annogen.Serializer{FieldFormat: SnakeCase, Prettify: false}
type Order struct {
	OrderID   int
	UnitPrice float64
}

// @annogen.SerializeMethod
func (o *Order) TotalCost() float64 { return o.UnitPrice }

// @annogen.SerializeMethod("Extra")
func (o Order) note() string { return "" }
`)
	require.Empty(t, diags)
	require.Len(t, units, 1)
	u := units[0]
	assert.Equal(t, model.SerializerUnit, u.Kind)
	assert.Equal(t, "OrderSerializer", u.Target)
	assert.Equal(t, "", u.Constructor())
	assert.Equal(t, annogen.SnakeCase, u.FieldFormat)
	assert.False(t, u.Prettify)

	var keys []string
	for _, m := range u.Members {
		keys = append(keys, m.Key)
	}
	assert.Equal(t, []string{"order_id", "unit_price", "total_cost", "extra"}, keys)
	assert.Equal(t, model.SerializedMethod, u.Members[2].Kind)
	assert.Equal(t, "TotalCost", u.Members[2].Field)
	assert.Len(t, u.Origins, 3)
}

func TestBuild_SerializerDefaults(t *testing.T) {
	units, diags := build(t, `package shapes

// @annogen.Serializer
type Order struct {
	OrderNumber int
}
`)
	require.Empty(t, diags)
	require.Len(t, units, 1)
	assert.True(t, units[0].Prettify)
	assert.Equal(t, annogen.CamelCase, units[0].FieldFormat)
	assert.Equal(t, "orderNumber", units[0].Members[0].Key)
}

func TestBuild_SerializeMethodErrors(t *testing.T) {
	units, diags := build(t, `package shapes

// @annogen.Serializer
type Order struct {
	Total int
}

// @annogen.SerializeMethod
func (o Order) Compute(x int) int { return x }

// @annogen.SerializeMethod("total")
func (o Order) Sum() int { return 0 }

type Other struct{}

// @annogen.SerializeMethod
func (o Other) Name() string { return "" }
`)
	require.Len(t, units, 1)
	assert.Len(t, units[0].Members, 1)
	assert.Equal(t, []string{
		"method Compute must take no arguments and return exactly one value to be used with @annogen.SerializeMethod",
		`method Sum is serialized as "total", which is already used by Total`,
		"@annogen.SerializeMethod requires Other to be annotated with @annogen.Serializer",
	}, messages(diags))
}

func TestBuild_FacadeGroupsMethods(t *testing.T) {
	units, diags := build(t, `package shapes

import "io"

type Store struct{}

// @annogen.Facade("Reader")
func (s *Store) Get(key string) ([]byte, error) { return nil, nil }

// @annogen.Facade("Writer")
func (s *Store) Put(key string, value []byte) error { return nil }

// @annogen.Facade("Reader")
func (s *Store) Open(key string) (io.ReadCloser, error) { return nil, nil }

// @annogen.Facade("Writer")
func (s *Store) Log(format string, args ...any) {}
`)
	require.Len(t, diags, 1)
	assert.Equal(t, "@annogen.Facade cannot be used on variadic method Log", diags[0].Message)
	require.Len(t, units, 2)
	assert.Equal(t, "Reader", units[0].Target)
	require.Len(t, units[0].Members, 2)
	assert.Equal(t, "Get", units[0].Members[0].Name)
	assert.Equal(t, "Open", units[0].Members[1].Name)
	assert.Len(t, units[0].Origins, 2)
	assert.Equal(t, "Writer", units[1].Target)
	assert.Len(t, units[1].Members, 1)
}

func TestBuild_FacadeRequiresName(t *testing.T) {
	units, diags := build(t, `package shapes

type Store struct{}

// @annogen.Facade
func (s *Store) Get() {}

// @annogen.Facade("not valid")
func (s *Store) Put() {}
`)
	assert.Empty(t, units)
	assert.Equal(t, []string{
		"@annogen.Facade is missing required member Name",
		`facade name "not valid" is not a valid Go identifier`,
	}, messages(diags))
}

func TestBuild_ExistingDeclaration(t *testing.T) {
	units, diags := build(t, `package shapes

// @annogen.Builder
type Point struct{ X, Y int }

type PointBuilder struct{}
`)
	assert.Empty(t, units)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "cannot generate PointBuilder: PointBuilder is already declared at")
}

func TestBuild_PreviouslyGeneratedDeclaration(t *testing.T) {
	elements := apttest.Elements(t, pkgPath, map[string]string{
		"point.go": `package shapes

// @annogen.Builder
type Point struct{ X, Y int }
`,
		"point_builder_annogen.go": `// Code generated by annogen. DO NOT EDIT.

package shapes

type PointBuilder struct{}
`,
	})
	units, diags := model.Build(elements, model.DefaultOptions())
	require.Empty(t, diags)
	require.Len(t, units, 1)
}

func TestBuild_IgnoresOtherAnnotations(t *testing.T) {
	units, diags := build(t, `package shapes

import other "example.com/other"

// @other.Thing
// @annogen.Builder
type Point struct{ X, Y int }
`)
	assert.Empty(t, diags)
	assert.Len(t, units, 1)
}

func TestBuild_Deterministic(t *testing.T) {
	src := map[string]string{
		"b.go": `package shapes

// @annogen.Builder
type B struct{ X int }

// @annogen.Serializer
type A struct{ Y int }
`,
		"a.go": `package shapes

// @annogen.Builder("Dup")
type C struct{ Z int }
`,
		"c.go": `package shapes

// @annogen.Builder("Dup")
type D struct{ Z int }
`,
	}
	var first []string
	for i := 0; i < 5; i++ {
		elements := apttest.Elements(t, pkgPath, src)
		// reverse the input to show order does not depend on it
		for l, r := 0, len(elements)-1; l < r; l, r = l+1, r-1 {
			elements[l], elements[r] = elements[r], elements[l]
		}
		units, diags := model.Build(elements, model.DefaultOptions())
		var got []string
		for _, u := range units {
			got = append(got, u.Target+" from "+u.Subject.Obj().Name())
		}
		for _, d := range diags {
			got = append(got, d.Element.Name+": "+d.Message)
		}
		if first == nil {
			first = got
			continue
		}
		assert.Equal(t, first, got)
	}
	require.Len(t, first, 4)
	assert.Equal(t, "Dup from C", first[0])
	assert.Equal(t, "BBuilder from B", first[1])
	assert.Equal(t, "ASerializer from A", first[2])
	assert.True(t, strings.HasPrefix(first[3], "D: duplicate generated name"))
}
