package filter

import (
	"strconv"
	"strings"
	"time"
)

// Resolver locates the value(s) of an attribute path within whatever a
// caller is filtering. It lets this package stay independent of the
// resource package: dispatch and memstore pass a thin adapter over
// resource.Document.
type Resolver interface {
	// Get returns the raw JSON value at path (case-insensitive, dotted),
	// and whether it was present at all.
	Get(path string) (interface{}, bool)
	// Elements returns the slice backing a multi-valued attribute at
	// path, or nil if path does not name a present multi-valued
	// attribute.
	Elements(path string) []map[string]interface{}
	// CaseExact reports whether string comparisons against path must be
	// case sensitive (false falls back to case-insensitive matching, the
	// SCIM default for string attributes per RFC 7643 section 2.1).
	CaseExact(path string) bool
}

// Evaluate reports whether document r satisfies filter expression n, per
// RFC 7644 section 3.4.2.2.
func Evaluate(n Node, r Resolver) bool {
	switch t := n.(type) {
	case *Attribute:
		return evalAttribute(t, r)
	case *Not:
		return !Evaluate(t.Expr, r)
	case *And:
		return Evaluate(t.Left, r) && Evaluate(t.Right, r)
	case *Or:
		return Evaluate(t.Left, r) || Evaluate(t.Right, r)
	case *ValuePath:
		elems := r.Elements(t.AttrPath)
		for _, e := range elems {
			if Evaluate(t.SubExpr, elementResolver{elem: e, caseExact: r}) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// elementResolver adapts a single multi-valued-attribute element (a
// sub-attribute map, e.g. one entry of "emails") so ValuePath's SubExpr -
// whose attribute paths are relative to the element, e.g. "type" or
// "value" - can be evaluated with the same Evaluate/evalAttribute code as
// a top-level filter.
type elementResolver struct {
	elem      map[string]interface{}
	caseExact Resolver
}

func (er elementResolver) Get(path string) (interface{}, bool) {
	key, ok := findKeyCI(er.elem, path)
	if !ok {
		return nil, false
	}
	return er.elem[key], true
}

func (er elementResolver) Elements(path string) []map[string]interface{} { return nil }

func (er elementResolver) CaseExact(path string) bool { return er.caseExact.CaseExact(path) }

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

func evalAttribute(a *Attribute, r Resolver) bool {
	v, present := r.Get(a.Path)

	if a.Op == Pr {
		return present && !isEmptyValue(v)
	}
	if !present {
		// RFC 7644 section 3.4.2.2: an undefined attribute evaluates to
		// false for every comparison operator except "ne", which it
		// satisfies vacuously (there is no value to be unequal to).
		return a.Op == Ne
	}

	// A dotted path into a multi-valued attribute without a "[...]"
	// selector (e.g. "emails.type eq \"work\"") means "any element's
	// sub-attribute matches", RFC 7644 section 3.4.2.2's implicit
	// any-match for collection paths - equivalent in effect to
	// "emails[type eq \"work\"]" but without the bracket syntax. Get
	// returns the collected slice of per-element values for such a path;
	// a scalar attribute never does.
	if elems, ok := v.([]interface{}); ok {
		caseExact := r.CaseExact(a.Path)
		for _, e := range elems {
			if evalScalar(a.Op, e, a.Value, caseExact) {
				return true
			}
		}
		return false
	}

	return evalScalar(a.Op, v, a.Value, r.CaseExact(a.Path))
}

func evalScalar(op Op, v, target interface{}, caseExact bool) bool {
	switch op {
	case Eq:
		return compareEq(v, target, caseExact)
	case Ne:
		return !compareEq(v, target, caseExact)
	case Co, Sw, Ew:
		vs, ok1 := v.(string)
		ps, ok2 := target.(string)
		if !ok1 || !ok2 {
			return false
		}
		if !caseExact {
			vs, ps = strings.ToLower(vs), strings.ToLower(ps)
		}
		switch op {
		case Co:
			return strings.Contains(vs, ps)
		case Sw:
			return strings.HasPrefix(vs, ps)
		default:
			return strings.HasSuffix(vs, ps)
		}
	case Gt, Ge, Lt, Le:
		return compareOrdered(v, target, op)
	default:
		return false
	}
}

func isEmptyValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	default:
		return false
	}
}

func compareEq(v, target interface{}, caseExact bool) bool {
	switch tv := v.(type) {
	case string:
		ts, ok := target.(string)
		if !ok {
			return false
		}
		if caseExact {
			return tv == ts
		}
		return strings.EqualFold(tv, ts)
	case bool:
		tb, ok := target.(bool)
		return ok && tv == tb
	case float64:
		tf, ok := target.(float64)
		return ok && tv == tf
	case int64:
		tf, ok := target.(float64)
		return ok && float64(tv) == tf
	case nil:
		return target == nil
	default:
		return false
	}
}

// compareOrdered implements gt/ge/lt/le. Numbers compare numerically,
// RFC 3339 dateTime strings compare chronologically, everything else
// falls back to a lexical string comparison (RFC 7644 section 3.4.2.2:
// "the meaning of these operators... is entirely dependent on the
// attribute's data type").
func compareOrdered(v, target interface{}, op Op) bool {
	if vf, ok := numberOf(v); ok {
		if tf, ok := numberOf(target); ok {
			return applyOrder(op, cmpFloat(vf, tf))
		}
	}
	vs, ok1 := v.(string)
	ts, ok2 := target.(string)
	if !ok1 || !ok2 {
		return false
	}
	if vt, err1 := time.Parse(time.RFC3339, vs); err1 == nil {
		if tt, err2 := time.Parse(time.RFC3339, ts); err2 == nil {
			return applyOrder(op, cmpTime(vt, tt))
		}
	}
	return applyOrder(op, strings.Compare(vs, ts))
}

func numberOf(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func applyOrder(op Op, cmp int) bool {
	switch op {
	case Gt:
		return cmp > 0
	case Ge:
		return cmp >= 0
	case Lt:
		return cmp < 0
	case Le:
		return cmp <= 0
	default:
		return false
	}
}
