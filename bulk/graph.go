package bulk

import (
	"fmt"
	"strings"

	"github.com/sparrowscim/core/serr"
)

// topoSort orders ops so that any operation referencing another
// operation's bulkId in its data (RFC 7644 section 3.7.2's forward
// reference example) runs after the operation that produces it.
// Operations with no such dependency keep their original relative
// order. A cycle between bulkIds fails the entire request with
// invalidSyntax.
func topoSort(ops []*Op) ([]*Op, error) {
	producerOf := map[string]*Op{}
	for _, op := range ops {
		if op.BulkID != "" {
			producerOf[op.BulkID] = op
		}
	}

	deps := map[*Op][]*Op{}
	for _, op := range ops {
		for _, ref := range bulkIDRefs(op.Data) {
			if producer, ok := producerOf[ref]; ok && producer != op {
				deps[op] = append(deps[op], producer)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	state := map[*Op]int{}
	order := make([]*Op, 0, len(ops))

	var visit func(op *Op) error
	visit = func(op *Op) error {
		switch state[op] {
		case black:
			return nil
		case gray:
			return serr.NewInvalidSyntaxError(fmt.Sprintf("bulk request has a cycle in its bulkId references involving %q", op.BulkID))
		}
		state[op] = gray
		for _, dep := range deps[op] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[op] = black
		order = append(order, op)
		return nil
	}

	for _, op := range ops {
		if err := visit(op); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// unknownBulkIDRefs returns the "bulkId:<id>" references in raw whose id
// is not produced by any operation in the request at all - a forward
// reference topoSort's dependency graph could never resolve, as opposed
// to one whose producer ran but failed.
func unknownBulkIDRefs(raw []byte, known map[string]bool) []string {
	var bad []string
	for _, ref := range bulkIDRefs(raw) {
		if !known[ref] {
			bad = append(bad, ref)
		}
	}
	return bad
}

// bulkIDRefs scans raw's JSON text for "bulkId:<id>" occurrences without
// a full unmarshal - good enough since bulkId references only ever
// appear as whole string values, and a false positive inside an
// unrelated string is a degenerate bulk request, not a correctness
// concern here.
func bulkIDRefs(raw []byte) []string {
	s := string(raw)
	var refs []string
	for {
		idx := strings.Index(s, "bulkId:")
		if idx < 0 {
			break
		}
		s = s[idx+len("bulkId:"):]
		end := 0
		for end < len(s) && s[end] != '"' {
			end++
		}
		refs = append(refs, s[:end])
		s = s[end:]
	}
	return refs
}
