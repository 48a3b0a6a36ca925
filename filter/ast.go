// Package filter implements the SCIM filter grammar (RFC 7644 section
// 3.4.2.2) and the PATCH attribute path grammar (RFC 7644 section
// 3.5.2), lexing and parsing both into a shared AST, and evaluating
// filter ASTs against resource documents.
package filter

import (
	"fmt"
	"strings"
)

// Op is a filter comparison operator, RFC 7644 section 3.4.2.2.
type Op string

const (
	Eq Op = "eq"
	Ne Op = "ne"
	Co Op = "co"
	Sw Op = "sw"
	Ew Op = "ew"
	Gt Op = "gt"
	Ge Op = "ge"
	Lt Op = "lt"
	Le Op = "le"
	Pr Op = "pr"
)

// Node is a filter AST node. The concrete types are Attribute, Not, And,
// Or, and ValuePath.
type Node interface {
	String() string
}

// Attribute is a leaf comparison: path op value. Value is nil for Pr.
type Attribute struct {
	Path  string // dotted, schema-URN-prefixed attribute path, as written
	Op    Op
	Value interface{} // string, float64, bool, or nil
}

func (a *Attribute) String() string {
	if a.Op == Pr {
		return fmt.Sprintf("%s pr", a.Path)
	}
	return fmt.Sprintf("%s %s %s", a.Path, a.Op, formatValue(a.Value))
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return `"` + strings.ReplaceAll(t, `"`, `\"`) + `"`
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Not negates a sub-expression.
type Not struct{ Expr Node }

func (n *Not) String() string { return "not " + parenIfLogical(n.Expr) }

// And is a logical conjunction.
type And struct{ Left, Right Node }

func (n *And) String() string { return parenIfLogical(n.Left) + " and " + parenIfLogical(n.Right) }

// Or is a logical disjunction.
type Or struct{ Left, Right Node }

func (n *Or) String() string { return parenIfLogical(n.Left) + " or " + parenIfLogical(n.Right) }

// ValuePath is the "attr[subExpr]" form: subExpr is evaluated against
// each element of the multi-valued attribute named by AttrPath.
type ValuePath struct {
	AttrPath string
	SubExpr  Node
}

func (n *ValuePath) String() string { return n.AttrPath + "[" + n.SubExpr.String() + "]" }

// parenIfLogical wraps n in parentheses when printing it unparenthesized
// could change how a later parse groups it - i.e. when n itself is a Not,
// And, or Or. This is what makes String()/Parse round trip (spec.md
// section 8 invariant 5) for nested expressions.
func parenIfLogical(n Node) string {
	switch n.(type) {
	case *And, *Or, *Not:
		return "(" + n.String() + ")"
	default:
		return n.String()
	}
}
