package filter

import (
	"fmt"
	"strings"
)

// Path is a parsed PATCH attribute path (RFC 7644 section 3.5.2):
//
//	attrPath
//	attrPath "." subAttr
//	attrPath "[" valFilter "]"
//	attrPath "[" valFilter "]" "." subAttr
//
// optionally prefixed with a schema URN joined by ':', matching
// scim/base/patch.go's ParsedPath but holding the parsed pieces as plain
// strings/Nodes rather than resolved *schema.AttrType, since this package
// has no schema dependency - the patch package resolves AttrPath/SubAttr
// against a schema.Schema itself.
type Path struct {
	SchemaURN string // empty if the path was not schema-URN-prefixed
	AttrPath  string
	Filter    Node   // nil if no "[...]" selector was present
	SubAttr   string // empty if no ".subAttr" suffix was present
}

func (p *Path) String() string {
	s := p.AttrPath
	if p.Filter != nil {
		s += "[" + p.Filter.String() + "]"
	}
	if p.SubAttr != "" {
		s += "." + p.SubAttr
	}
	if p.SchemaURN != "" {
		s = p.SchemaURN + ":" + s
	}
	return s
}

// ParsePath parses a PATCH operation's "path" string.
func ParsePath(s string) (*Path, error) {
	p, err := newParser(s)
	if err != nil {
		return nil, invalidFilterErr(err.Error(), 1)
	}
	if p.tok.kind != tokAttrPath {
		return nil, invalidFilterErr("expected an attribute path", p.tok.col)
	}

	// Reassemble every dotted segment up front, the same way
	// parseAttrPath does for a filter expression: "." is not a name rune
	// (lexer.go's isNameRune), so a URN's "2.0" version component lexes
	// as its own tokDot, not a literal '.'. Splitting the schema URN off
	// a single un-reassembled token would cut standard SCIM URNs in half
	// at that dot.
	raw, err := p.parseAttrPath()
	if err != nil {
		return nil, err
	}
	schemaURN, rest := splitSchemaURN(raw)
	attrPath, subAttr := splitSubAttr(rest)

	out := &Path{SchemaURN: schemaURN, AttrPath: attrPath, SubAttr: subAttr}

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
		out.Filter = sub
	}

	if p.tok.kind == tokDot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind != tokAttrPath {
			return nil, invalidFilterErr("expected sub-attribute name after '.'", p.tok.col)
		}
		out.SubAttr = p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	if p.tok.kind != tokEOF {
		return nil, invalidFilterErr(fmt.Sprintf("unexpected trailing token %q", p.tok.text), p.tok.col)
	}
	return out, nil
}

// splitSubAttr splits a reassembled attribute path on its first '.' into
// the top-level attribute and its sub-attribute, e.g. "name.familyName"
// into "name"/"familyName". SCIM paths nest at most one level deep, so
// the first dot is the only one that can be a genuine separator here -
// any dot belonging to a URN's version component was already consumed by
// splitSchemaURN.
func splitSubAttr(rest string) (attrPath, subAttr string) {
	idx := strings.IndexByte(rest, '.')
	if idx < 0 {
		return rest, ""
	}
	return rest[:idx], rest[idx+1:]
}

// splitSchemaURN splits a "urn:...:name:attr" lexed token at the last
// colon that precedes a non-URN attribute name, recognizing the
// well-known SCIM URN prefixes (RFC 7644 section 3.10). A bare attribute
// name with no URN prefix is returned unchanged.
func splitSchemaURN(raw string) (schemaURN, attrPath string) {
	const marker = "scim:schemas:"
	idx := indexURNEnd(raw, marker)
	if idx < 0 {
		return "", raw
	}
	return raw[:idx], raw[idx+1:]
}

// indexURNEnd finds the colon separating a SCIM schema URN from the
// attribute name that follows it, returning -1 if raw has no such URN
// prefix. Once the marker is present, the split point is the last colon
// in raw.
func indexURNEnd(raw, marker string) int {
	mi := indexOf(raw, marker)
	if mi < 0 {
		return -1
	}
	// From mi, count colons: "urn:ietf:params:scim:schemas:core:2.0:User:attr"
	// The URN itself ends right before the LAST colon in the string, since
	// SCIM attribute names never themselves contain ':'.
	last := -1
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			last = i
		}
	}
	return last
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
