package memstore

import (
	"github.com/sparrowscim/core/filter"
	"github.com/sparrowscim/core/resource"
)

// filterDocuments implements the "push filtering down to storage" half of
// spec.md section 4.3: the core hands a raw filter string to the
// ResourceHandler's Search, and it is this reference handler's job to
// parse and evaluate it, not the dispatcher's.
func filterDocuments(docs []*resource.Document, rawFilter string) ([]*resource.Document, error) {
	if rawFilter == "" {
		return docs, nil
	}
	node, err := filter.ParseFilter(rawFilter)
	if err != nil {
		return nil, err
	}
	out := make([]*resource.Document, 0, len(docs))
	for _, d := range docs {
		if filter.Evaluate(node, resource.NewResolver(d)) {
			out = append(out, d)
		}
	}
	return out, nil
}
