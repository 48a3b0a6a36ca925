package patch

import (
	"fmt"
	"strings"

	"github.com/sparrowscim/core/filter"
	"github.com/sparrowscim/core/resource"
	"github.com/sparrowscim/core/schema"
	"github.com/sparrowscim/core/serr"
)

// applyAdd implements RFC 7644 section 3.5.2.1. With no path, Value must
// be an object whose top-level keys are merged into the resource (each
// key interpreted as its own add). With a path naming a single-valued
// attribute, Value replaces it, except that Value's keys are merged into
// a single-valued complex attribute that already has a value. With a path
// naming a multi-valued attribute, Value's element(s) are appended; with
// a selector filter, the matching elements are replaced instead.
func applyAdd(doc *resource.Document, op *Op, rt *schema.ResourceType) error {
	if op.parsedPath == nil {
		obj, ok := op.Value.(map[string]interface{})
		if !ok {
			return serr.NewInvalidValueError("add with no path requires an object value")
		}
		for k, v := range obj {
			if err := setPathless(doc, rt, k, v); err != nil {
				return err
			}
		}
		return nil
	}

	at, container, err := resolveContainer(doc, rt, op.parsedPath)
	if err != nil {
		return err
	}

	if op.parsedPath.Filter != nil && at.MultiValued {
		return replaceFilteredElements(at, container, op.parsedPath, op.Value)
	}

	if at.MultiValued {
		existing, _ := container[at.Name].([]interface{})
		for _, v := range resource.AsSlice(op.Value) {
			existing = append(existing, v)
		}
		container[at.Name] = existing
		return nil
	}

	if at.IsComplex() {
		if existing, ok := container[at.Name].(map[string]interface{}); ok {
			newVal, ok := op.Value.(map[string]interface{})
			if !ok {
				return serr.NewInvalidValueError(fmt.Sprintf("attribute %q requires an object value", at.QualifiedName()))
			}
			for k, v := range newVal {
				existing[k] = v
			}
			return nil
		}
	}

	container[at.Name] = op.Value
	return nil
}

// applyReplace implements RFC 7644 section 3.5.2.3: with no path, Value's
// top-level keys overwrite whatever the resource already has. With a
// path, Value replaces the attribute wholesale - a selector filter on a
// multi-valued attribute replaces only the matching elements.
func applyReplace(doc *resource.Document, op *Op, rt *schema.ResourceType) error {
	if op.parsedPath == nil {
		obj, ok := op.Value.(map[string]interface{})
		if !ok {
			return serr.NewInvalidValueError("replace with no path requires an object value")
		}
		for k, v := range obj {
			doc.SetTop(k, v)
		}
		return nil
	}

	at, container, err := resolveContainer(doc, rt, op.parsedPath)
	if err != nil {
		return err
	}

	if op.parsedPath.Filter != nil && at.MultiValued {
		return replaceFilteredElements(at, container, op.parsedPath, op.Value)
	}

	container[at.Name] = op.Value
	return nil
}

// applyRemove implements RFC 7644 section 3.5.2.2. A path with no
// selector deletes the whole attribute. A path with a selector deletes
// only the matching elements of a multi-valued attribute, failing with
// noTarget if none match.
func applyRemove(doc *resource.Document, op *Op, rt *schema.ResourceType) error {
	if op.parsedPath == nil {
		return serr.NewInvalidValueError("remove requires a path")
	}

	at, container, err := resolveContainer(doc, rt, op.parsedPath)
	if err != nil {
		return err
	}

	if op.parsedPath.Filter == nil {
		if _, present := container[at.Name]; !present {
			return serr.NewNoTargetError(fmt.Sprintf("attribute %q has no value to remove", at.QualifiedName()))
		}
		delete(container, at.Name)
		return nil
	}

	if !at.MultiValued {
		return serr.NewInvalidPathError(fmt.Sprintf("attribute %q is not multiValued, it cannot be selected with a filter", at.QualifiedName()))
	}
	return removeFilteredElements(at, container, op.parsedPath)
}

// setPathless interprets one top-level key of a pathless add's object
// value, dotted sub-paths included (RFC 7644 section 3.5.2.1 permits
// e.g. {"name.givenName": "X"} as a key inside a pathless add).
func setPathless(doc *resource.Document, rt *schema.ResourceType, key string, val interface{}) error {
	pp, err := filter.ParsePath(key)
	if err != nil {
		return err
	}
	at, container, err := resolveContainer(doc, rt, pp)
	if err != nil {
		return err
	}
	container[at.Name] = val
	return nil
}

// resolveContainer resolves pp against rt's schemas and returns the
// AttrType it names plus the JSON object that directly holds it (doc's
// top-level map for a top-level attribute, or the nested complex
// attribute's map for a dotted sub-attribute path).
func resolveContainer(doc *resource.Document, rt *schema.ResourceType, pp *filter.Path) (*schema.AttrType, map[string]interface{}, error) {
	sc := rt.MainSchema()
	topContainer := doc.Map()

	if pp.SchemaURN != "" {
		if pp.SchemaURN != rt.Schema {
			sc = rt.Extension(pp.SchemaURN)
			if sc == nil {
				return nil, nil, serr.NewInvalidPathError(fmt.Sprintf("unknown schema URN %q in path", pp.SchemaURN))
			}
			ext, ok := doc.GetTop(pp.SchemaURN)
			extMap, _ := ext.(map[string]interface{})
			if !ok || extMap == nil {
				extMap = map[string]interface{}{}
				doc.SetTop(pp.SchemaURN, extMap)
			}
			topContainer = extMap
		}
	}

	at := sc.GetAtType(pp.AttrPath)
	if at == nil {
		return nil, nil, serr.NewInvalidPathError(fmt.Sprintf("unknown attribute %q", pp.AttrPath))
	}

	if at.IsReadOnly() {
		return nil, nil, serr.NewMutabilityError(fmt.Sprintf("attribute %q is readOnly", at.QualifiedName()))
	}

	if pp.SubAttr == "" || pp.Filter != nil {
		// A ".subAttr" suffix alongside a "[...]" selector (e.g.
		// "emails[type eq \"work\"].value") names a sub-attribute of
		// whichever elements the filter matches, not a sub-attribute of
		// the multi-valued attribute itself; replaceFilteredElements
		// (used by add and replace) resolves pp.SubAttr there.
		// removeFilteredElements ignores pp.SubAttr and removes each
		// matching element whole.
		return at, topContainer, nil
	}

	if !at.IsComplex() || at.MultiValued {
		return nil, nil, serr.NewInvalidPathError(fmt.Sprintf("attribute %q does not have sub-attribute %q", at.QualifiedName(), pp.SubAttr))
	}
	sub := at.SubAttr(pp.SubAttr)
	if sub == nil {
		return nil, nil, serr.NewInvalidPathError(fmt.Sprintf("unknown sub-attribute %q of %q", pp.SubAttr, at.QualifiedName()))
	}
	inner, _ := topContainer[at.Name].(map[string]interface{})
	if inner == nil {
		inner = map[string]interface{}{}
		topContainer[at.Name] = inner
	}
	return sub, inner, nil
}

func elementsOf(container map[string]interface{}, name string) []map[string]interface{} {
	raw, _ := container[name].([]interface{})
	out := make([]map[string]interface{}, 0, len(raw))
	for _, e := range raw {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func removeFilteredElements(at *schema.AttrType, container map[string]interface{}, pp *filter.Path) error {
	elems := elementsOf(container, at.Name)
	kept := make([]interface{}, 0, len(elems))
	removed := 0
	for _, e := range elems {
		if filter.Evaluate(pp.Filter, elementResolver{e}) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return serr.NewNoTargetError(fmt.Sprintf("filter on %q matched no elements", at.QualifiedName()))
	}
	container[at.Name] = kept
	return nil
}

func replaceFilteredElements(at *schema.AttrType, container map[string]interface{}, pp *filter.Path, val interface{}) error {
	elems := elementsOf(container, at.Name)
	out := make([]interface{}, 0, len(elems))
	matched := 0
	for _, e := range elems {
		if filter.Evaluate(pp.Filter, elementResolver{e}) {
			matched++
			if pp.SubAttr != "" {
				cp := make(map[string]interface{}, len(e)+1)
				for k, v := range e {
					cp[k] = v
				}
				cp[pp.SubAttr] = val
				out = append(out, cp)
			} else if nv, ok := val.(map[string]interface{}); ok {
				out = append(out, nv)
			} else {
				return serr.NewInvalidValueError(fmt.Sprintf("attribute %q requires an object value", at.QualifiedName()))
			}
			continue
		}
		out = append(out, e)
	}
	if matched == 0 {
		return serr.NewNoTargetError(fmt.Sprintf("filter on %q matched no elements", at.QualifiedName()))
	}
	container[at.Name] = out
	return nil
}

// elementResolver adapts one multi-valued-attribute element map to
// filter.Resolver for evaluating a PATCH path's selector filter.
type elementResolver struct{ elem map[string]interface{} }

func (er elementResolver) Get(path string) (interface{}, bool) {
	parts := strings.SplitN(path, ".", 2)
	key, ok := findKeyCI(er.elem, parts[0])
	if !ok {
		return nil, false
	}
	return er.elem[key], true
}

func (er elementResolver) Elements(path string) []map[string]interface{} { return nil }

func (er elementResolver) CaseExact(path string) bool { return false }

func findKeyCI(m map[string]interface{}, name string) (string, bool) {
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
