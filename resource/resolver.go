package resource

import (
	"strings"

	"github.com/sparrowscim/core/filter"
)

// docResolver adapts a whole Document to filter.Resolver, so a
// ResourceHandler can evaluate a search filter against a stored resource
// without duplicating the filter package's comparison rules. It reads
// caseExact off the Document's attribute sidecar (AttrAt), populated the
// last time the document went through Validate - a document that was
// never validated resolves every path as case-insensitive.
type docResolver struct {
	doc *Document
}

// NewResolver returns a filter.Resolver over doc, for a ResourceHandler's
// Search implementation to evaluate a parsed filter.Node against each
// candidate resource (spec.md section 4.3's "push filtering down to
// storage" framing - the core itself never runs this, only memstore's
// reference handler does).
func NewResolver(doc *Document) filter.Resolver {
	return docResolver{doc: doc}
}

// Get resolves path, including a dotted path into a multi-valued complex
// attribute (e.g. "emails.type") without a "[...]" selector: such a path
// has no single value, so it returns the collected slice of every
// element's sub-attribute value instead, letting evalAttribute's
// any-match handle it the same way it would a bracketed selector.
func (r docResolver) Get(path string) (interface{}, bool) {
	parts := strings.SplitN(path, ".", 2)
	top, ok := r.doc.GetTop(parts[0])
	if !ok {
		return nil, false
	}
	if len(parts) == 1 {
		return top, true
	}
	if arr, ok := top.([]interface{}); ok {
		out := make([]interface{}, 0, len(arr))
		for _, e := range arr {
			m, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			if key, ok := findKey(m, parts[1]); ok {
				out = append(out, m[key])
			}
		}
		return out, true
	}
	return r.doc.GetPath(path)
}

func (r docResolver) Elements(path string) []map[string]interface{} {
	v, ok := r.doc.GetTop(path)
	if !ok {
		return nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(arr))
	for _, e := range arr {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func (r docResolver) CaseExact(path string) bool {
	at := r.doc.AttrAt(path)
	if at == nil {
		return false
	}
	return at.CaseExact
}
