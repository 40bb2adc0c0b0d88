package parser

import (
	"fmt"
	"go/constant"
	"text/scanner"
)

// ExpressionNode is a node in the AST for annotation values: literals,
// references to named constants, and aggregate values.
type ExpressionNode interface {
	Pos() scanner.Position
}

// LiteralNode is an expression node that represents a literal value, such as a
// number, boolean, or string. A negated number is also a literal.
type LiteralNode struct {
	Val constant.Value // nil if literal nil
	pos scanner.Position
}

func (n LiteralNode) Pos() scanner.Position {
	return n.pos
}

// RefNode is an expression node that is a reference to an identifier, which is
// expected to resolve to a named constant (such as an enum value) or, as the
// key of an aggregate element, to the name of an annotation member.
type RefNode struct {
	Ident Identifier
}

func (n RefNode) Pos() scanner.Position {
	return n.Ident.Pos
}

// AggregateNode is an expression node that represents an aggregate value in
// braces, which could be a slice value or a set of named members.
type AggregateNode struct {
	Contents []Element
	pos      scanner.Position
}

func (n AggregateNode) Pos() scanner.Position {
	return n.pos
}

// Identifier is an AST node that refers to an identifier, possibly qualified
// with a package name/alias.
type Identifier struct {
	PackageAlias string
	Name         string
	Pos          scanner.Position
}

func (id Identifier) String() string {
	if id.PackageAlias == "" {
		return id.Name
	}
	return fmt.Sprintf("%s.%s", id.PackageAlias, id.Name)
}

// Element is an AST node for a component of an aggregate value. Elements of a
// slice have no keys. Elements that set annotation members have keys.
type Element struct {
	Key    ExpressionNode
	HasKey bool
	Value  ExpressionNode
}

func (e Element) Pos() scanner.Position {
	if e.HasKey {
		return e.Key.Pos()
	}
	return e.Value.Pos()
}

// Annotation is a fully parsed annotation. It identifies the annotation type
// and has an optional value. A value in braces is an AggregateNode whose
// elements name the members being set. A value in parentheses (indicated by
// Parenthesized) is the value of the annotation's positional member.
type Annotation struct {
	Type          Identifier
	Value         ExpressionNode
	Parenthesized bool
	Pos           scanner.Position
}
