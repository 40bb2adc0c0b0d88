package emit

import (
	"fmt"
	"go/types"
	"reflect"

	"github.com/jhump/gopoet"
)

// typeName converts t to a gopoet.TypeName. Unlike gopoet.TypeNameForGoType,
// it accepts named types of the universe scope, like error, and reports types
// that cannot be rendered instead of panicking.
func typeName(t types.Type) (gopoet.TypeName, error) {
	switch t := types.Unalias(t).(type) {
	case *types.Named:
		obj := t.Obj()
		if t.TypeArgs().Len() > 0 {
			return nil, fmt.Errorf("instantiated generic type %v is not supported", t)
		}
		if obj.Pkg() == nil {
			return gopoet.NamedType(gopoet.Symbol{Name: obj.Name()}), nil
		}
		return gopoet.NamedType(gopoet.Symbol{
			Name:    obj.Name(),
			Package: gopoet.PackageForGoType(obj.Pkg()),
		}), nil

	case *types.Basic:
		switch {
		case t.Kind() == types.UnsafePointer:
			return gopoet.UnsafePointerType, nil
		case t.Kind() == types.Invalid, t.Info()&types.IsUntyped != 0:
			return nil, fmt.Errorf("type %v cannot be declared", t)
		}
		return gopoet.TypeNameForGoType(t), nil

	case *types.Pointer:
		elem, err := typeName(t.Elem())
		if err != nil {
			return nil, err
		}
		return gopoet.PointerType(elem), nil

	case *types.Slice:
		elem, err := typeName(t.Elem())
		if err != nil {
			return nil, err
		}
		return gopoet.SliceType(elem), nil

	case *types.Array:
		elem, err := typeName(t.Elem())
		if err != nil {
			return nil, err
		}
		return gopoet.ArrayType(elem, t.Len()), nil

	case *types.Map:
		key, err := typeName(t.Key())
		if err != nil {
			return nil, err
		}
		elem, err := typeName(t.Elem())
		if err != nil {
			return nil, err
		}
		return gopoet.MapType(key, elem), nil

	case *types.Chan:
		elem, err := typeName(t.Elem())
		if err != nil {
			return nil, err
		}
		dir := reflect.BothDir
		switch t.Dir() {
		case types.SendOnly:
			dir = reflect.SendDir
		case types.RecvOnly:
			dir = reflect.RecvDir
		}
		return gopoet.ChannelType(elem, dir), nil

	case *types.Signature:
		sig, err := signature(t)
		if err != nil {
			return nil, err
		}
		return gopoet.FuncTypeFromSig(sig), nil

	case *types.Struct:
		fields := make([]gopoet.FieldType, t.NumFields())
		for i := range fields {
			f := t.Field(i)
			ft, err := typeName(f.Type())
			if err != nil {
				return nil, err
			}
			fields[i] = gopoet.FieldType{Type: ft, Tag: reflect.StructTag(t.Tag(i))}
			if !f.Embedded() {
				fields[i].Name = f.Name()
			}
		}
		return gopoet.StructType(fields...), nil

	case *types.Interface:
		var embeds []gopoet.Symbol
		for i := 0; i < t.NumEmbeddeds(); i++ {
			named, ok := types.Unalias(t.EmbeddedType(i)).(*types.Named)
			if !ok || named.TypeArgs().Len() > 0 {
				return nil, fmt.Errorf("interface %v has an embedded element that is not supported", t)
			}
			sym := gopoet.Symbol{Name: named.Obj().Name()}
			if pkg := named.Obj().Pkg(); pkg != nil {
				sym.Package = gopoet.PackageForGoType(pkg)
			}
			embeds = append(embeds, sym)
		}
		methods := make([]gopoet.MethodType, t.NumExplicitMethods())
		for i := range methods {
			fn := t.ExplicitMethod(i)
			sig, err := signature(fn.Type().(*types.Signature))
			if err != nil {
				return nil, err
			}
			methods[i] = gopoet.MethodType{Name: fn.Name(), Signature: *sig}
		}
		return gopoet.InterfaceType(embeds, methods...), nil

	case *types.TypeParam:
		return nil, fmt.Errorf("type parameter %v is not supported", t)

	default:
		return nil, fmt.Errorf("type %v is not supported", t)
	}
}

func signature(sig *types.Signature) (*gopoet.Signature, error) {
	args, err := argTypes(sig.Params())
	if err != nil {
		return nil, err
	}
	results, err := argTypes(sig.Results())
	if err != nil {
		return nil, err
	}
	return &gopoet.Signature{Args: args, Results: results, IsVariadic: sig.Variadic()}, nil
}

func argTypes(tuple *types.Tuple) ([]gopoet.ArgType, error) {
	args := make([]gopoet.ArgType, tuple.Len())
	for i := range args {
		v := tuple.At(i)
		t, err := typeName(v.Type())
		if err != nil {
			return nil, err
		}
		args[i] = gopoet.ArgType{Name: v.Name(), Type: t}
	}
	return args, nil
}
