package parser

import (
	"fmt"
	"go/constant"
	"go/token"
	"io"
	"text/scanner"
)

// ParseError is a syntax error in annotation text. It includes the position of
// the offending token.
type ParseError struct {
	err error
	pos scanner.Position
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.pos.Line, e.pos.Column, e.err)
}

func (e *ParseError) Underlying() error {
	return e.err
}

func (e *ParseError) Pos() scanner.Position {
	return e.pos
}

// ParseAnnotations parses all annotations in the given reader. The contents are
// expected to be a sequence of annotations, each starting with '@'. Annotations
// are separated by whitespace or line breaks. Values in braces or parentheses
// may span multiple lines.
//
// The syntax is:
//
//	@Name
//	@qualifier.Name
//	@qualifier.Name(value)
//	@qualifier.Name{Member: value, Other: value}
//
// where a value is a literal (string, rune, int, float, true, false, nil), a
// possibly qualified identifier, or an aggregate in braces.
func ParseAnnotations(filename string, r io.Reader) ([]Annotation, *ParseError) {
	p := parser{lex: newLexer(filename, r)}
	res, err := p.parseAll()
	if p.lex.err != nil {
		return nil, p.lex.err
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

type parser struct {
	lex   *lexer
	tok   lexeme
	depth int
}

func (p *parser) advance() {
	p.tok = p.lex.next()
	for p.depth > 0 && p.tok.kind == '\n' {
		p.tok = p.lex.next()
	}
}

func (p *parser) unexpected(expecting string) *ParseError {
	return &ParseError{
		err: fmt.Errorf("syntax error: unexpected %s, expecting %s", describe(p.tok), expecting),
		pos: p.tok.pos,
	}
}

func (p *parser) parseAll() ([]Annotation, *ParseError) {
	var res []Annotation
	p.advance()
	for {
		switch p.tok.kind {
		case '\n':
			p.advance()
		case scanner.EOF:
			return res, nil
		case '@':
			a, err := p.parseAnnotation()
			if err != nil {
				return nil, err
			}
			res = append(res, a)
			if k := p.tok.kind; k != '\n' && k != scanner.EOF && k != '@' {
				return nil, p.unexpected("end-of-line")
			}
		default:
			return nil, p.unexpected(`"@"`)
		}
	}
}

func (p *parser) parseAnnotation() (Annotation, *ParseError) {
	a := Annotation{Pos: p.tok.pos}
	p.advance()
	id, err := p.parseIdentifier()
	if err != nil {
		return Annotation{}, err
	}
	a.Type = id

	switch p.tok.kind {
	case '(':
		p.depth++
		p.advance()
		if p.tok.kind != ')' {
			v, err := p.parseExpression()
			if err != nil {
				return Annotation{}, err
			}
			a.Value = v
		}
		if p.tok.kind != ')' {
			return Annotation{}, p.unexpected(`")"`)
		}
		p.depth--
		p.advance()
		a.Parenthesized = true
	case '{':
		v, err := p.parseAggregate()
		if err != nil {
			return Annotation{}, err
		}
		a.Value = v
	}
	return a, nil
}

func (p *parser) parseIdentifier() (Identifier, *ParseError) {
	if p.tok.kind != scanner.Ident {
		return Identifier{}, p.unexpected("identifier")
	}
	id := Identifier{Name: p.tok.text, Pos: p.tok.pos}
	p.advance()
	if p.tok.kind != '.' {
		return id, nil
	}
	p.advance()
	if p.tok.kind != scanner.Ident {
		return Identifier{}, p.unexpected("identifier")
	}
	id.PackageAlias = id.Name
	id.Name = p.tok.text
	p.advance()
	return id, nil
}

func (p *parser) parseExpression() (ExpressionNode, *ParseError) {
	switch p.tok.kind {
	case scanner.Int, scanner.Float, scanner.Char, scanner.String, scanner.RawString:
		n := LiteralNode{Val: p.tok.val, pos: p.tok.pos}
		p.advance()
		return n, nil
	case '-':
		pos := p.tok.pos
		p.advance()
		if p.tok.kind != scanner.Int && p.tok.kind != scanner.Float {
			return nil, p.unexpected("number")
		}
		n := LiteralNode{Val: constant.UnaryOp(token.SUB, p.tok.val, 0), pos: pos}
		p.advance()
		return n, nil
	case scanner.Ident:
		switch p.tok.text {
		case "true", "false":
			n := LiteralNode{Val: constant.MakeBool(p.tok.text == "true"), pos: p.tok.pos}
			p.advance()
			return n, nil
		case "nil":
			n := LiteralNode{pos: p.tok.pos}
			p.advance()
			return n, nil
		}
		id, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		return RefNode{Ident: id}, nil
	case '{':
		return p.parseAggregate()
	default:
		return nil, p.unexpected("value")
	}
}

func (p *parser) parseAggregate() (ExpressionNode, *ParseError) {
	agg := AggregateNode{pos: p.tok.pos}
	p.depth++
	p.advance()
	for p.tok.kind != '}' {
		k, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		el := Element{Value: k}
		if p.tok.kind == ':' {
			p.advance()
			v, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			el = Element{Key: k, HasKey: true, Value: v}
		}
		agg.Contents = append(agg.Contents, el)
		if p.tok.kind == ',' {
			p.advance()
			continue
		}
		if p.tok.kind != '}' {
			return nil, p.unexpected(`"," or "}"`)
		}
	}
	p.depth--
	p.advance()
	return agg, nil
}
