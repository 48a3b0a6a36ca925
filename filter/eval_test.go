package filter

import "strings"

// docResolver is a minimal Resolver over a JSON-shaped map, used only by
// this package's own tests; the resource package provides the real
// adapter used at runtime.
type docResolver struct {
	data          map[string]interface{}
	caseExactAttr map[string]bool
}

func (d docResolver) Get(path string) (interface{}, bool) {
	parts := strings.SplitN(path, ".", 2)
	v, ok := findCI(d.data, parts[0])
	if !ok || len(parts) == 1 {
		return v, ok
	}
	if arr, ok := v.([]interface{}); ok {
		out := make([]interface{}, 0, len(arr))
		for _, e := range arr {
			if m, ok := e.(map[string]interface{}); ok {
				if sv, ok := findCI(m, parts[1]); ok {
					out = append(out, sv)
				}
			}
		}
		return out, true
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return findCI(m, parts[1])
}

func (d docResolver) Elements(path string) []map[string]interface{} {
	v, ok := findCI(d.data, path)
	if !ok {
		return nil
	}
	s, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(s))
	for _, e := range s {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func (d docResolver) CaseExact(path string) bool { return d.caseExactAttr[strings.ToLower(path)] }

func findCI(m map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	lower := strings.ToLower(name)
	for k, v := range m {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	return nil, false
}
