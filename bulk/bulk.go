// Package bulk implements the Bulk operation (RFC 7644 section 3.7):
// a list of create/update/delete operations executed against a
// dispatch.Dispatcher in dependency order, with bulkId forward
// references resolved as each operation completes. The teacher's
// net/http.go bulkUpdate handler was an empty stub, so this package is
// new code grounded on the dependency-graph description of spec.md
// section 4.6 and exercised end-to-end against memstore.
package bulk

import (
	"encoding/json"
	"fmt"
	"strings"

	logger "github.com/juju/loggo"

	"github.com/sparrowscim/core/dispatch"
	"github.com/sparrowscim/core/schema"
	"github.com/sparrowscim/core/serr"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimcore.bulk")
}

const bulkRequestSchema = "urn:ietf:params:scim:api:messages:2.0:BulkRequest"
const bulkResponseSchema = "urn:ietf:params:scim:api:messages:2.0:BulkResponse"

// Op is one operation of a bulk request body.
type Op struct {
	Method  string          `json:"method"`
	BulkID  string          `json:"bulkId,omitempty"`
	Path    string          `json:"path"`
	Version string          `json:"version,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	index int
}

// Request is a parsed Bulk request body.
type Request struct {
	Schemas      []string `json:"schemas"`
	FailOnErrors int      `json:"failOnErrors,omitempty"`
	Operations   []*Op    `json:"Operations"`
}

// OpResult is one operation's outcome in a Bulk response body.
type OpResult struct {
	Location string          `json:"location,omitempty"`
	Method   string          `json:"method"`
	BulkID   string          `json:"bulkId,omitempty"`
	Version  string          `json:"version,omitempty"`
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Response is the Bulk response body.
type Response struct {
	Schemas    []string    `json:"schemas"`
	Operations []*OpResult `json:"Operations"`
}

// Processor executes Bulk requests against a dispatch.Dispatcher.
type Processor struct {
	Dispatcher *dispatch.Dispatcher
	Registry   *schema.Registry
	// MaxOperations and MaxPayloadSize mirror
	// provider.Config.Bulk.MaxOperations/MaxPayloadSize; the caller is
	// expected to read them off the live config before calling Execute.
	MaxOperations  int
	MaxPayloadSize int
}

// ParseRequest decodes and structurally validates a Bulk request body.
func ParseRequest(raw []byte, maxPayloadSize int) (*Request, error) {
	if maxPayloadSize > 0 && len(raw) > maxPayloadSize {
		return nil, serr.NewPayloadTooLargeError(fmt.Sprintf("bulk request body of %d bytes exceeds the maximum of %d", len(raw), maxPayloadSize))
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, serr.NewInvalidSyntaxError("malformed bulk request body: " + err.Error())
	}
	if len(req.Operations) == 0 {
		return nil, serr.NewInvalidValueError("a bulk request must contain at least one operation")
	}
	if !hasSchema(req.Schemas, bulkRequestSchema) {
		return nil, serr.NewInvalidSyntaxError("the \"schemas\" attribute must list " + bulkRequestSchema)
	}
	for i, op := range req.Operations {
		op.index = i
		op.Method = strings.ToUpper(strings.TrimSpace(op.Method))
		switch op.Method {
		case "POST", "PUT", "PATCH", "DELETE":
		default:
			return nil, serr.NewInvalidValueError(fmt.Sprintf("operation %d has unsupported method %q", i, op.Method))
		}
		if op.Method == "POST" && op.BulkID == "" {
			return nil, serr.NewInvalidValueError(fmt.Sprintf("operation %d (POST) requires a bulkId", i))
		}
		if op.Path == "" {
			return nil, serr.NewInvalidValueError(fmt.Sprintf("operation %d requires a path", i))
		}
	}
	return &req, nil
}

// Execute runs req's operations against p.Dispatcher in bulkId
// dependency order (RFC 7644 section 3.7.2), substituting
// "bulkId:<id>" references in each operation's data with the resource id
// (taken from the location) of the operation that produced that bulkId
// once it has run, and
// aborting once req.FailOnErrors non-terminal failures have occurred.
// baseURL is used to build each operation's response Location exactly
// like dispatch.Request.BaseURL does for a single request.
func (p *Processor) Execute(req *Request, baseURL string) (*Response, error) {
	if p.MaxOperations > 0 && len(req.Operations) > p.MaxOperations {
		return nil, serr.NewInvalidValueError(fmt.Sprintf("bulk request has %d operations, exceeding the maximum of %d", len(req.Operations), p.MaxOperations))
	}

	order, err := topoSort(req.Operations)
	if err != nil {
		return nil, err
	}

	known := map[string]bool{}
	for _, op := range req.Operations {
		if op.BulkID != "" {
			known[op.BulkID] = true
		}
	}

	locations := map[string]string{} // bulkId -> location, populated as POSTs complete
	results := make([]*OpResult, len(req.Operations))

	failures := 0
	for _, op := range order {
		var result *OpResult

		if bad := unknownBulkIDRefs(op.Data, known); len(bad) > 0 {
			err := serr.NewInvalidValueError(fmt.Sprintf("operation %d references unknown bulkId(s) %s", op.index, strings.Join(bad, ", ")))
			se := serr.AsScimError(err)
			body, _ := json.Marshal(se)
			result = &OpResult{Method: op.Method, BulkID: op.BulkID, Status: fmt.Sprint(se.Code()), Response: body}
			failures++
		} else {
			data := substituteBulkIDs(op.Data, locations)
			rt, id := p.splitPath(op.Path, locations)

			dreq := &dispatch.Request{
				Method:       httpMethod(op.Method),
				ResourceType: rt,
				ID:           id,
				Body:         data,
				IfMatch:      op.Version,
				BaseURL:      baseURL,
			}
			resp := p.Dispatcher.Serve(dreq)

			result = &OpResult{
				Method:   op.Method,
				BulkID:   op.BulkID,
				Location: resp.Location,
				Version:  resp.ETag,
				Status:   fmt.Sprint(resp.Status),
			}
			if resp.Status >= 400 {
				result.Response = resp.Body
				failures++
			}
			if op.BulkID != "" && resp.Location != "" {
				locations[op.BulkID] = resp.Location
			}
		}

		results[op.index] = result

		if req.FailOnErrors > 0 && failures >= req.FailOnErrors {
			log.Warningf("bulk request aborted after %d failures (failOnErrors=%d)", failures, req.FailOnErrors)
			break
		}
	}

	out := &Response{Schemas: []string{bulkResponseSchema}, Operations: make([]*OpResult, 0, len(req.Operations))}
	for _, r := range results {
		if r != nil {
			out.Operations = append(out.Operations, r)
		}
	}

	return out, nil
}

func hasSchema(schemas []string, want string) bool {
	for _, s := range schemas {
		if s == want {
			return true
		}
	}
	return false
}

func httpMethod(m string) string {
	if m == "" {
		return "POST"
	}
	return m
}

// splitPath resolves a bulk operation's path ("/Users" or
// "/Users/bulkId:qwerty" or "/Users/2819c223-...") into a resource type
// name and id, resolving a bulkId reference in the id position against
// already-completed operations' locations. The resource type is looked
// up by endpoint against the registry rather than guessed by stripping a
// trailing "s", since an endpoint need not be the English plural of its
// resource type's name.
func (p *Processor) splitPath(path string, locations map[string]string) (resourceType, id string) {
	trimmed := strings.Trim(path, "/")
	parts := strings.SplitN(trimmed, "/", 2)

	if rt := p.Registry.ResourceTypeByEndpoint("/" + parts[0]); rt != nil {
		resourceType = rt.Name
	}
	if len(parts) == 1 {
		return resourceType, ""
	}
	id = parts[1]
	if strings.HasPrefix(id, "bulkId:") {
		if loc, ok := locations[strings.TrimPrefix(id, "bulkId:")]; ok {
			id = idFromLocation(loc)
		}
	}
	return resourceType, id
}

func idFromLocation(loc string) string {
	idx := strings.LastIndex(loc, "/")
	if idx < 0 {
		return loc
	}
	return loc[idx+1:]
}

// substituteBulkIDs replaces every "bulkId:<id>" string found anywhere
// in data's JSON tree with the resolved resource id of the operation
// that produced it, per RFC 7644 section 3.7.2's example 4 (a Group
// member referencing a User created earlier in the same request).
func substituteBulkIDs(data json.RawMessage, locations map[string]string) json.RawMessage {
	if len(data) == 0 || len(locations) == 0 {
		return data
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return data
	}
	v = substituteValue(v, locations)
	out, err := json.Marshal(v)
	if err != nil {
		return data
	}
	return out
}

func substituteValue(v interface{}, locations map[string]string) interface{} {
	switch t := v.(type) {
	case string:
		if strings.HasPrefix(t, "bulkId:") {
			if loc, ok := locations[strings.TrimPrefix(t, "bulkId:")]; ok {
				return idFromLocation(loc)
			}
		}
		return t
	case map[string]interface{}:
		for k, sub := range t {
			t[k] = substituteValue(sub, locations)
		}
		return t
	case []interface{}:
		for i, sub := range t {
			t[i] = substituteValue(sub, locations)
		}
		return t
	default:
		return t
	}
}
