package parser

import (
	"fmt"
	"go/constant"
	"go/token"
	"io"
	"text/scanner"
)

// lexeme is a single token produced by the lexer. Its kind is either one of
// the token classes defined by text/scanner (scanner.Ident, scanner.String,
// etc) or the rune itself for punctuation, including '\n' for end-of-line.
type lexeme struct {
	kind rune
	text string
	val  constant.Value
	pos  scanner.Position
}

type lexer struct {
	s    scanner.Scanner
	err  *ParseError
	last rune
}

func newLexer(filename string, r io.Reader) *lexer {
	var l lexer
	l.s.Init(r)
	l.s.Filename = filename
	l.s.Mode = l.s.Mode &^ (scanner.ScanComments | scanner.SkipComments)
	l.s.Whitespace = 0
	l.s.Error = func(s *scanner.Scanner, msg string) {
		if l.err == nil {
			pos := s.Position
			if !pos.IsValid() {
				pos = s.Pos()
			}
			l.err = &ParseError{err: fmt.Errorf("%s", msg), pos: pos}
		}
	}
	return &l
}

// end-of-line is ignored after these, so values can continue on the next line
var trailingRunes = map[rune]struct{}{
	',': {},
	'.': {},
	'{': {},
	'(': {},
	':': {},
	'-': {},
}

func (l *lexer) next() lexeme {
	for {
		// we handle whitespace ourselves so that we can easily know the
		// *start* position for a token (otherwise, scanner package only makes
		// easy to determine *end* position for a token)
		pos := l.s.Pos()
		r := l.s.Scan()
		if l.err != nil {
			return lexeme{kind: scanner.EOF, pos: pos}
		}
		switch r {
		case ' ', '\t', '\r':
			continue
		case '\n':
			if _, ok := trailingRunes[l.last]; ok {
				continue
			}
		}

		lx := lexeme{kind: r, text: l.s.TokenText(), pos: pos}
		switch r {
		case scanner.Int:
			lx.val = constant.MakeFromLiteral(lx.text, token.INT, 0)
		case scanner.Float:
			lx.val = constant.MakeFromLiteral(lx.text, token.FLOAT, 0)
		case scanner.Char:
			lx.val = constant.MakeFromLiteral(lx.text, token.CHAR, 0)
		case scanner.String, scanner.RawString:
			lx.val = constant.MakeFromLiteral(lx.text, token.STRING, 0)
		}
		if r != scanner.EOF {
			l.last = r
		}
		return lx
	}
}

func describe(lx lexeme) string {
	switch lx.kind {
	case scanner.EOF:
		return "end of input"
	case '\n':
		return "end-of-line"
	case scanner.Ident:
		return fmt.Sprintf("identifier %s", lx.text)
	case scanner.Int:
		return "int literal"
	case scanner.Float:
		return "float literal"
	case scanner.Char:
		return "rune literal"
	case scanner.String:
		return "string literal"
	case scanner.RawString:
		return "raw string literal"
	default:
		return fmt.Sprintf("%q", lx.kind)
	}
}
