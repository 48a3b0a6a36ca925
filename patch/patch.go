// Package patch implements the PATCH request body (RFC 7644 section
// 3.5.2): parsing a list of add/remove/replace operations and applying
// them to a resource.Document.
package patch

import (
	"encoding/json"
	"fmt"
	"strings"

	logger "github.com/juju/loggo"
	"github.com/sparrowscim/core/filter"
	"github.com/sparrowscim/core/resource"
	"github.com/sparrowscim/core/schema"
	"github.com/sparrowscim/core/serr"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimcore.patch")
}

const patchSchema = "urn:ietf:params:scim:api:messages:2.0:PatchOp"

// Op is one operation of a PATCH request body.
type Op struct {
	Op    string      `json:"op"`
	Path  string      `json:"path,omitempty"`
	Value interface{} `json:"value,omitempty"`

	index      int
	parsedPath *filter.Path
}

// Request is a parsed PATCH request body.
type Request struct {
	Schemas    []string `json:"schemas"`
	Operations []*Op    `json:"Operations"`
}

// ParseRequest decodes and structurally validates raw into a Request,
// per spec.md section 4.4 rules 1-2. It does not resolve paths against a
// schema - Apply does that per-operation so it can report InvalidPath
// with that operation's index.
func ParseRequest(raw []byte) (*Request, error) {
	var pr Request
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, serr.NewInvalidSyntaxError("malformed PATCH request body: " + err.Error())
	}

	if len(pr.Operations) == 0 {
		return nil, serr.NewInvalidValueError("a PATCH request must contain at least one operation")
	}

	for i, op := range pr.Operations {
		op.index = i
		op.Op = strings.ToLower(strings.TrimSpace(op.Op))
		op.Path = strings.TrimSpace(op.Path)

		switch op.Op {
		case "add", "replace":
			if op.Value == nil {
				return nil, serr.NewInvalidValueError(fmt.Sprintf("operation %d (%s) requires a value", i, op.Op))
			}
		case "remove":
			if op.Path == "" {
				return nil, serr.NewInvalidValueError(fmt.Sprintf("operation %d (remove) requires a path", i))
			}
		default:
			return nil, serr.NewInvalidValueError(fmt.Sprintf("operation %d has unknown op %q", i, op.Op))
		}
	}
	return &pr, nil
}

// Apply runs every operation of pr against a clone of doc in order,
// re-validating the result against the PUT ruleset once all operations
// have applied (spec.md section 4.4 rule 5). It never mutates doc: on
// any failure the returned Document is nil and doc is untouched.
func Apply(doc *resource.Document, pr *Request, rt *schema.ResourceType) (*resource.Document, error) {
	working := doc.Clone()

	for _, op := range pr.Operations {
		if op.Path != "" {
			pp, err := filter.ParsePath(op.Path)
			if err != nil {
				return nil, annotate(err, op.index)
			}
			op.parsedPath = pp
		}

		var err error
		switch op.Op {
		case "add":
			err = applyAdd(working, op, rt)
		case "replace":
			err = applyReplace(working, op, rt)
		case "remove":
			err = applyRemove(working, op, rt)
		}
		if err != nil {
			return nil, annotate(err, op.index)
		}
	}

	out, err := resource.Validate(working, rt, resource.Request, resource.MethodPUT, &resource.Options{Stored: doc})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// annotate prefixes a failing operation's index onto the error detail
// without losing its scimType/status, so the response still reports the
// right category of failure alongside which operation caused it.
func annotate(err error, index int) error {
	se := serr.AsScimError(err)
	return se.WithDetailPrefix(fmt.Sprintf("operation %d: ", index))
}
