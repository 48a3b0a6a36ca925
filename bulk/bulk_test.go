package bulk

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sparrowscim/core/dispatch"
	"github.com/sparrowscim/core/provider"
	"github.com/sparrowscim/core/resource"
	"github.com/sparrowscim/core/schema"
	"github.com/sparrowscim/core/serr"
)

const userSchemaJSON = `{
  "id": "urn:test:BulkUser",
  "name": "BulkUser",
  "description": "a fixture schema for the bulk package's own tests",
  "attributes": [
    {"name": "userName", "type": "string", "description": "d", "required": true}
  ]
}`

const groupSchemaJSON = `{
  "id": "urn:test:BulkGroup",
  "name": "BulkGroup",
  "description": "a fixture schema for the bulk package's own tests",
  "attributes": [
    {"name": "displayName", "type": "string", "description": "d", "required": true},
    {"name": "members", "type": "complex", "multiValued": true, "description": "d",
      "subAttributes": [{"name": "value", "type": "string", "description": "d"}]}
  ]
}`

// memHandler is a minimal in-memory provider.ResourceHandler, analogous to
// dispatch_test.go's fakeHandler, kept separate here since the bulk
// package's own tests exercise two resource types at once.
type memHandler struct {
	rt     *schema.ResourceType
	docs   map[string]*resource.Document
	nextID int
}

func newMemHandler(rt *schema.ResourceType) *memHandler {
	return &memHandler{rt: rt, docs: make(map[string]*resource.Document)}
}

func (h *memHandler) ResourceType() *schema.ResourceType { return h.rt }

func (h *memHandler) Create(doc *resource.Document) (*resource.Document, error) {
	h.nextID++
	id := itoa(h.nextID)
	doc.SetTop("id", id)
	resource.StampMeta(doc, h.rt.Name, "", time.Now())
	h.docs[id] = doc
	return doc, nil
}

func (h *memHandler) Get(id string) (*resource.Document, error) {
	d, ok := h.docs[id]
	if !ok {
		return nil, serr.NewNotFoundError("no such resource " + id)
	}
	return d, nil
}

func (h *memHandler) Replace(id string, doc *resource.Document, matchVersion string) (*resource.Document, error) {
	doc.SetTop("id", id)
	resource.StampMeta(doc, h.rt.Name, "", time.Now())
	h.docs[id] = doc
	return doc, nil
}

func (h *memHandler) Delete(id string, matchVersion string) error {
	delete(h.docs, id)
	return nil
}

func (h *memHandler) Search(req *provider.SearchRequest) (*provider.ListResult, error) {
	all := make([]*resource.Document, 0, len(h.docs))
	for _, d := range h.docs {
		all = append(all, d)
	}
	return &provider.ListResult{Resources: all, TotalResults: len(all)}, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newFixture(t *testing.T) (*Processor, *schema.Registry) {
	t.Helper()
	reg, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if _, err := reg.RegisterSchema([]byte(userSchemaJSON)); err != nil {
		t.Fatalf("RegisterSchema(user) error = %v", err)
	}
	if _, err := reg.RegisterSchema([]byte(groupSchemaJSON)); err != nil {
		t.Fatalf("RegisterSchema(group) error = %v", err)
	}
	userRT, err := reg.RegisterResourceType([]byte(`{"name":"BulkUser","endpoint":"/Users","schema":"urn:test:BulkUser"}`))
	if err != nil {
		t.Fatalf("RegisterResourceType(user) error = %v", err)
	}
	groupRT, err := reg.RegisterResourceType([]byte(`{"name":"BulkGroup","endpoint":"/Groups","schema":"urn:test:BulkGroup"}`))
	if err != nil {
		t.Fatalf("RegisterResourceType(group) error = %v", err)
	}

	d := dispatch.NewDispatcher(reg, provider.NewConfigAccessor(provider.DefaultConfig()))
	d.RegisterHandler(userRT.Name, newMemHandler(userRT))
	d.RegisterHandler(groupRT.Name, newMemHandler(groupRT))

	return &Processor{Dispatcher: d, Registry: reg}, reg
}

func TestParseRequestRejectsEmptyOperations(t *testing.T) {
	_, err := ParseRequest([]byte(`{"schemas":["urn:ietf:params:scim:api:messages:2.0:BulkRequest"],"Operations":[]}`), 0)
	if err == nil {
		t.Fatal("expected an error for an empty Operations list")
	}
}

func TestParseRequestRejectsPostWithoutBulkID(t *testing.T) {
	_, err := ParseRequest([]byte(`{"schemas":["urn:ietf:params:scim:api:messages:2.0:BulkRequest"],
		"Operations":[{"method":"POST","path":"/Users","data":{}}]}`), 0)
	if err == nil {
		t.Fatal("expected an error for a POST operation without a bulkId")
	}
}

func TestParseRequestRejectsPayloadOverMax(t *testing.T) {
	raw := []byte(`{"schemas":["urn:ietf:params:scim:api:messages:2.0:BulkRequest"],"Operations":[{"method":"POST","bulkId":"1","path":"/Users","data":{}}]}`)
	_, err := ParseRequest(raw, 10)
	if err == nil {
		t.Fatal("expected an error for a payload over the maximum size")
	}
}

func TestParseRequestRejectsMissingSchemaURN(t *testing.T) {
	raw := []byte(`{"Operations":[{"method":"POST","bulkId":"1","path":"/Users","data":{}}]}`)
	_, err := ParseRequest(raw, 0)
	if err == nil {
		t.Fatal("expected an error when the BulkRequest schema URN is absent")
	}
}

func TestExecuteRunsOperationsAndAssignsLocations(t *testing.T) {
	p, _ := newFixture(t)
	raw := []byte(`{"schemas":["urn:ietf:params:scim:api:messages:2.0:BulkRequest"],
		"Operations":[{"method":"POST","bulkId":"qwerty","path":"/Users","data":{"schemas":["urn:test:BulkUser"],"userName":"bjensen"}}]}`)
	req, err := ParseRequest(raw, 0)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}

	resp, err := p.Execute(req, "https://example.com")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(resp.Operations) != 1 {
		t.Fatalf("len(Operations) = %d, want 1", len(resp.Operations))
	}
	if resp.Operations[0].Status != "201" {
		t.Errorf("status = %q, want 201, response=%s", resp.Operations[0].Status, resp.Operations[0].Response)
	}
	if resp.Operations[0].Location == "" {
		t.Error("expected a location to be set")
	}
}

func TestExecuteResolvesForwardBulkIDReference(t *testing.T) {
	p, _ := newFixture(t)
	raw := []byte(`{"schemas":["urn:ietf:params:scim:api:messages:2.0:BulkRequest"],
		"Operations":[
			{"method":"POST","bulkId":"grp","path":"/Groups","data":{"schemas":["urn:test:BulkGroup"],"displayName":"g","members":[{"value":"bulkId:usr"}]}},
			{"method":"POST","bulkId":"usr","path":"/Users","data":{"schemas":["urn:test:BulkUser"],"userName":"bjensen"}}
		]}`)
	req, err := ParseRequest(raw, 0)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}

	resp, err := p.Execute(req, "https://example.com")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	for _, r := range resp.Operations {
		if r.Status != "201" {
			t.Fatalf("operation %s failed: status=%s response=%s", r.BulkID, r.Status, r.Response)
		}
	}
	// The group was posted first in the request body, but depends on
	// the user's bulkId, so topoSort must run it second despite the
	// request's literal ordering.
	if resp.Operations[0].BulkID != "grp" || resp.Operations[1].BulkID != "usr" {
		t.Errorf("response operations not in request order: %v then %v", resp.Operations[0].BulkID, resp.Operations[1].BulkID)
	}
}

func TestExecuteDetectsBulkIDCycle(t *testing.T) {
	p, _ := newFixture(t)
	raw := []byte(`{"schemas":["urn:ietf:params:scim:api:messages:2.0:BulkRequest"],
		"Operations":[
			{"method":"POST","bulkId":"a","path":"/Users","data":{"schemas":["urn:test:BulkUser"],"userName":"bulkId:b"}},
			{"method":"POST","bulkId":"b","path":"/Users","data":{"schemas":["urn:test:BulkUser"],"userName":"bulkId:a"}}
		]}`)
	req, err := ParseRequest(raw, 0)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	_, err = p.Execute(req, "")
	if err == nil {
		t.Fatal("expected a cycle error")
	}
	if se := serr.AsScimError(err); se.ScimType != "invalidSyntax" {
		t.Errorf("cycle error scimType = %q, want invalidSyntax", se.ScimType)
	}
}

func TestExecuteFailsOperationWithUnknownBulkIDReference(t *testing.T) {
	p, _ := newFixture(t)
	raw := []byte(`{"schemas":["urn:ietf:params:scim:api:messages:2.0:BulkRequest"],
		"Operations":[
			{"method":"POST","bulkId":"grp","path":"/Groups","data":{"schemas":["urn:test:BulkGroup"],
				"displayName":"Engineers","members":[{"value":"bulkId:nonexistent"}]}}
		]}`)
	req, err := ParseRequest(raw, 0)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	resp, err := p.Execute(req, "")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(resp.Operations) != 1 {
		t.Fatalf("expected 1 operation result, got %d", len(resp.Operations))
	}
	r := resp.Operations[0]
	if r.Status != "400" {
		t.Fatalf("unknown bulkId reference status = %s, want 400", r.Status)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(r.Response, &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body["scimType"] != "invalidValue" {
		t.Errorf("scimType = %v, want invalidValue", body["scimType"])
	}
}

func TestExecuteStopsAfterFailOnErrors(t *testing.T) {
	p, _ := newFixture(t)
	raw := []byte(`{"schemas":["urn:ietf:params:scim:api:messages:2.0:BulkRequest"],"failOnErrors":1,
		"Operations":[
			{"method":"POST","bulkId":"1","path":"/Users","data":{"schemas":["urn:test:BulkUser"]}},
			{"method":"POST","bulkId":"2","path":"/Users","data":{"schemas":["urn:test:BulkUser"],"userName":"ok"}}
		]}`)
	req, err := ParseRequest(raw, 0)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}

	resp, err := p.Execute(req, "")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Operations[0].Status == "201" {
		t.Fatal("expected the first operation (missing userName) to fail")
	}
	if len(resp.Operations) != 1 {
		t.Errorf("len(Operations) = %d, want 1: the second operation is skipped and omitted once failOnErrors was reached", len(resp.Operations))
	}
}
