package filter

import (
	"fmt"

	"github.com/sparrowscim/core/serr"
)

// Parser is a recursive-descent parser over the token stream produced by
// lexer, implementing RFC 7644 section 3.4.2.2's grammar with the
// standard precedence not > and > or (spec.md section 5 invariant 1),
// which the teacher's flat iterative builder in scim/base/filter.go does
// not get right for mixed and/or expressions - this parser corrects that
// rather than reproducing it.
type parser struct {
	lx   *lexer
	tok  token
	peek *token
}

func newParser(s string) (*parser, error) {
	p := &parser{lx: newLexer(s)}
	t, err := p.lx.next()
	if err != nil {
		return nil, err
	}
	p.tok = t
	return p, nil
}

func (p *parser) advance() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lx.next()
	if err != nil {
		// Lexer messages already name the offending column.
		return serr.NewInvalidFilterError(err.Error())
	}
	p.tok = t
	return nil
}

// ParseFilter parses a complete SCIM filter expression (RFC 7644 section
// 3.4.2.2). It returns a serr.ScimError with scimType invalidFilter on any
// syntax error, carrying the 1-based column of the offending token.
func ParseFilter(s string) (Node, error) {
	p, err := newParser(s)
	if err != nil {
		return nil, invalidFilterErr(err.Error(), 1)
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, invalidFilterErr(fmt.Sprintf("unexpected token %q", p.tok.text), p.tok.col)
	}
	return node, nil
}

func invalidFilterErr(msg string, col int) error {
	return serr.NewInvalidFilterError(fmt.Sprintf("%s (column %d)", msg, col))
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.tok.kind == tokNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Expr: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	switch p.tok.kind {
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, invalidFilterErr("expected ')'", p.tok.col)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil

	case tokAttrPath:
		return p.parseAttrExprOrValuePath()

	case tokEOF:
		return nil, invalidFilterErr("unexpected end of filter", p.tok.col)

	default:
		return nil, invalidFilterErr(fmt.Sprintf("unexpected token %q", p.tok.text), p.tok.col)
	}
}

// parseAttrExprOrValuePath handles "path op value", "path pr", and
// "path[subExpr]" (a ValuePath filter). A ".subAttr" after the closing
// bracket is not accepted here; ParsePath accepts that form for PATCH
// paths.
func (p *parser) parseAttrExprOrValuePath() (Node, error) {
	path, err := p.parseAttrPath()
	if err != nil {
		return nil, err
	}

	if p.tok.kind == tokLBracket {
		if err := p.advance(); err != nil {
			return nil, err
		}
		sub, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRBracket {
			return nil, invalidFilterErr("expected ']'", p.tok.col)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &ValuePath{AttrPath: path, SubExpr: sub}, nil
	}

	if p.tok.kind == tokOp && p.tok.text == string(Pr) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Attribute{Path: path, Op: Pr}, nil
	}

	if p.tok.kind != tokOp {
		return nil, invalidFilterErr(fmt.Sprintf("expected comparison operator after attribute %q", path), p.tok.col)
	}
	op := Op(p.tok.text)
	if err := p.advance(); err != nil {
		return nil, err
	}

	val, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	return &Attribute{Path: path, Op: op, Value: val}, nil
}

// parseAttrPath consumes a dotted attribute path, e.g. "name.familyName"
// or "urn:ietf:params:scim:schemas:core:2.0:User:name.familyName". ':' is
// a name rune but '.' is not, so a URN's "2.0" lexes as a word ending in
// "2", a tokDot, a number token "0" and a word starting with ":User";
// pieces that touch with no space between them are joined back together.
func (p *parser) parseAttrPath() (string, error) {
	if p.tok.kind != tokAttrPath {
		return "", invalidFilterErr("expected attribute name", p.tok.col)
	}
	path := p.tok.text
	if err := p.advance(); err != nil {
		return "", err
	}
	for p.tok.kind == tokDot {
		if err := p.advance(); err != nil {
			return "", err
		}
		prefix := ""
		if p.tok.kind == tokNumber {
			num := p.tok
			if err := p.advance(); err != nil {
				return "", err
			}
			if p.tok.col != num.col+len(num.text) {
				return "", invalidFilterErr("expected sub-attribute name after '.'", num.col)
			}
			prefix = num.text
		}
		if p.tok.kind != tokAttrPath {
			return "", invalidFilterErr("expected sub-attribute name after '.'", p.tok.col)
		}
		path += "." + prefix + p.tok.text
		if err := p.advance(); err != nil {
			return "", err
		}
	}
	return path, nil
}

func (p *parser) parseValue() (interface{}, error) {
	switch p.tok.kind {
	case tokString:
		v := p.tok.text
		return v, p.advance()
	case tokNumber:
		v := p.tok.num
		return v, p.advance()
	case tokBool:
		v := p.tok.text == "true"
		return v, p.advance()
	case tokNull:
		return nil, p.advance()
	default:
		return nil, invalidFilterErr("expected a comparison value", p.tok.col)
	}
}
