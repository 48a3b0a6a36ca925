package resource

import (
	"sort"
	"strings"
)

// SortDocuments orders docs by the value at sortBy (a dotted GetPath
// expression, e.g. "name.familyName") per RFC 7644 section 3.4.2.3.
// Documents missing the attribute sort after every document that has it.
// A no-op if sortBy is empty, so callers can call it unconditionally.
func SortDocuments(docs []*Document, sortBy, sortOrder string) {
	if sortBy == "" {
		return
	}
	descending := strings.EqualFold(sortOrder, "descending")
	sort.SliceStable(docs, func(i, j int) bool {
		vi, oki := docs[i].GetPath(sortBy)
		vj, okj := docs[j].GetPath(sortBy)
		if !oki || !okj {
			return oki && !okj
		}
		less, ok := lessValue(vi, vj)
		if !ok {
			return false
		}
		if descending {
			return !less
		}
		return less
	})
}

// lessValue compares two scalar attribute values the way a SCIM "sortBy"
// comparison does (RFC 7644 section 3.4.2.3 borrows the ordering rules of
// the "gt"/"lt" filter operators), reporting ok=false for types that have
// no defined order (booleans, complex values, incomparable pairs).
func lessValue(a, b interface{}) (less bool, ok bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return false, false
		}
		return strings.ToLower(av) < strings.ToLower(bv), true
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return false, false
		}
		return av < bv, true
	default:
		return false, false
	}
}
