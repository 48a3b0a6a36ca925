// Package resource implements the JSON tree the core validates, coerces,
// projects and strips resource documents against (spec.md section 4.2),
// plus the attribute validator itself.
package resource

import (
	"strings"

	logger "github.com/juju/loggo"
	"github.com/sparrowscim/core/schema"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimcore.resource")
}

// Document is a minimal JSON DOM: a plain map/slice/scalar tree (exactly
// what encoding/json.Unmarshal into interface{} produces) paired with a
// sidecar table mapping dotted attribute paths to the SchemaAttribute
// that governs them. Per spec.md section 9 design note (d), leaves do
// not carry a back-pointer to their AttrType themselves - the sidecar
// avoids a cyclic node<->schema graph.
type Document struct {
	data  map[string]interface{}
	attrs map[string]*schema.AttrType
}

// NewDocument wraps a parsed JSON object. m is taken by reference, not
// copied.
func NewDocument(m map[string]interface{}) *Document {
	if m == nil {
		m = make(map[string]interface{})
	}
	return &Document{data: m, attrs: make(map[string]*schema.AttrType)}
}

// Clone produces a deep copy, used by the PATCH processor to guarantee
// atomicity (spec.md section 4.4 invariant: a failed patch leaves the
// stored resource untouched).
func (d *Document) Clone() *Document {
	return &Document{data: deepCopyMap(d.data), attrs: copyAttrMap(d.attrs)}
}

// Map returns the underlying JSON object. Callers that mutate it directly
// bypass attribute tracking; prefer SetTop/DeleteTop.
func (d *Document) Map() map[string]interface{} { return d.data }

// AttrAt returns the SchemaAttribute recorded for dotted path during the
// last Validate call, or nil if path was never visited.
func (d *Document) AttrAt(path string) *schema.AttrType {
	return d.attrs[strings.ToLower(path)]
}

func (d *Document) recordAttr(path string, at *schema.AttrType) {
	d.attrs[strings.ToLower(path)] = at
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

func copyAttrMap(m map[string]*schema.AttrType) map[string]*schema.AttrType {
	out := make(map[string]*schema.AttrType, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// findKey resolves name against m's keys case-insensitively, returning
// the actual key used (JSON object keys preserve client casing; SCIM
// attribute name matching must not).
func findKey(m map[string]interface{}, name string) (string, bool) {
	if _, ok := m[name]; ok {
		return name, true
	}
	lower := strings.ToLower(name)
	for k := range m {
		if strings.ToLower(k) == lower {
			return k, true
		}
	}
	return "", false
}

// GetTop returns the top-level value named name (case-insensitive) and
// whether it was present.
func (d *Document) GetTop(name string) (interface{}, bool) {
	key, ok := findKey(d.data, name)
	if !ok {
		return nil, false
	}
	return d.data[key], true
}

// SetTop sets a top-level attribute, overwriting any existing key that
// matches name case-insensitively.
func (d *Document) SetTop(name string, val interface{}) {
	if key, ok := findKey(d.data, name); ok {
		d.data[key] = val
		return
	}
	d.data[name] = val
}

// DeleteTop removes a top-level attribute (case-insensitive).
func (d *Document) DeleteTop(name string) {
	if key, ok := findKey(d.data, name); ok {
		delete(d.data, key)
	}
}

// GetPath resolves a dotted path (e.g. "name.familyName") against the
// document, descending into single-valued complex attributes only -
// callers walking multi-valued complex attributes must iterate each
// element map themselves (there is no single "the" value to return).
func (d *Document) GetPath(path string) (interface{}, bool) {
	parts := strings.SplitN(path, ".", 2)
	v, ok := d.GetTop(parts[0])
	if !ok || len(parts) == 1 {
		return v, ok
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	key, ok := findKey(m, parts[1])
	if !ok {
		return nil, false
	}
	return m[key], true
}

// AsSlice normalizes a multi-valued attribute's raw JSON value into a
// slice, lifting a bare scalar/object into a one-element slice exactly
// as spec.md section 4.2 rule 2 requires on inbound requests.
func AsSlice(v interface{}) []interface{} {
	if v == nil {
		return nil
	}
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return []interface{}{v}
}
