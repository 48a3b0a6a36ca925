package patch

import (
	"testing"

	"github.com/sparrowscim/core/resource"
	"github.com/sparrowscim/core/schema"
)

const gadgetSchemaJSON = `{
  "id": "urn:test:Gadget",
  "name": "Gadget",
  "description": "a fixture schema for the patch package's own tests",
  "attributes": [
    {"name": "userName", "type": "string", "description": "d", "required": true},
    {"name": "displayName", "type": "string", "description": "d"},
    {"name": "tag", "type": "string", "description": "d", "mutability": "immutable"},
    {"name": "name", "type": "complex", "description": "d",
      "subAttributes": [
        {"name": "familyName", "type": "string", "description": "d"},
        {"name": "givenName", "type": "string", "description": "d"}
      ]},
    {"name": "emails", "type": "complex", "multiValued": true, "description": "d",
      "subAttributes": [
        {"name": "value", "type": "string", "description": "d"},
        {"name": "type", "type": "string", "description": "d"},
        {"name": "primary", "type": "boolean", "description": "d"}
      ]}
  ]
}`

func newGadgetRT(t *testing.T) *schema.ResourceType {
	t.Helper()
	r, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if _, err := r.RegisterSchema([]byte(gadgetSchemaJSON)); err != nil {
		t.Fatalf("RegisterSchema() error = %v", err)
	}
	rt, err := r.RegisterResourceType([]byte(`{"name":"Gadget","endpoint":"/Gadgets","schema":"urn:test:Gadget"}`))
	if err != nil {
		t.Fatalf("RegisterResourceType() error = %v", err)
	}
	return rt
}

func baseDoc() *resource.Document {
	return resource.NewDocument(map[string]interface{}{
		"schemas":  []interface{}{"urn:test:Gadget"},
		"userName": "bjensen",
		"emails": []interface{}{
			map[string]interface{}{"value": "a@example.com", "type": "work", "primary": true},
			map[string]interface{}{"value": "b@example.com", "type": "home"},
		},
	})
}

func TestParseRequestRejectsEmptyOperations(t *testing.T) {
	if _, err := ParseRequest([]byte(`{"schemas":["urn:ietf:params:scim:api:messages:2.0:PatchOp"],"Operations":[]}`)); err == nil {
		t.Fatal("expected error for empty Operations")
	}
}

func TestParseRequestRejectsAddWithoutValue(t *testing.T) {
	_, err := ParseRequest([]byte(`{"Operations":[{"op":"add","path":"displayName"}]}`))
	if err == nil {
		t.Fatal("expected error for add without value")
	}
}

func TestApplyReplaceWithNoPath(t *testing.T) {
	rt := newGadgetRT(t)
	pr, err := ParseRequest([]byte(`{"Operations":[{"op":"replace","value":{"displayName":"Babs"}}]}`))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	out, err := Apply(baseDoc(), pr, rt)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if v, _ := out.GetTop("displayName"); v != "Babs" {
		t.Errorf("displayName = %v, want Babs", v)
	}
}

func TestApplyAddToMultiValuedAppends(t *testing.T) {
	rt := newGadgetRT(t)
	pr, err := ParseRequest([]byte(`{"Operations":[{"op":"add","path":"emails","value":{"value":"c@example.com","type":"other"}}]}`))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	out, err := Apply(baseDoc(), pr, rt)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	v, _ := out.GetTop("emails")
	arr, _ := v.([]interface{})
	if len(arr) != 3 {
		t.Fatalf("expected 3 emails after add, got %d", len(arr))
	}
}

func TestApplyReplaceFilteredElement(t *testing.T) {
	rt := newGadgetRT(t)
	pr, err := ParseRequest([]byte(`{"Operations":[{"op":"replace","path":"emails[type eq \"work\"].value","value":"new@example.com"}]}`))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	out, err := Apply(baseDoc(), pr, rt)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	v, _ := out.GetTop("emails")
	arr, _ := v.([]interface{})
	found := false
	for _, e := range arr {
		m := e.(map[string]interface{})
		if m["type"] == "work" {
			if m["value"] != "new@example.com" {
				t.Errorf("work email value = %v, want new@example.com", m["value"])
			}
			found = true
		}
	}
	if !found {
		t.Fatal("work email element not found after replace")
	}
}

func TestApplyRemoveFilteredElementNoMatchFails(t *testing.T) {
	rt := newGadgetRT(t)
	pr, err := ParseRequest([]byte(`{"Operations":[{"op":"remove","path":"emails[type eq \"nosuch\"]"}]}`))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if _, err := Apply(baseDoc(), pr, rt); err == nil {
		t.Fatal("expected noTarget error when the selector filter matches nothing")
	}
}

func TestApplyRemoveWholeAttribute(t *testing.T) {
	rt := newGadgetRT(t)
	pr, err := ParseRequest([]byte(`{"Operations":[{"op":"remove","path":"emails"}]}`))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	out, err := Apply(baseDoc(), pr, rt)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, ok := out.GetTop("emails"); ok {
		t.Error("expected emails to be removed entirely")
	}
}

func TestApplyFailureLeavesOriginalDocumentUntouched(t *testing.T) {
	rt := newGadgetRT(t)
	doc := baseDoc()
	pr, err := ParseRequest([]byte(`{"Operations":[{"op":"remove","path":"emails[type eq \"nosuch\"]"}]}`))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if _, err := Apply(doc, pr, rt); err == nil {
		t.Fatal("expected this patch to fail")
	}
	v, _ := doc.GetTop("emails")
	arr, _ := v.([]interface{})
	if len(arr) != 2 {
		t.Fatalf("original document must be untouched after a failed patch, got %d emails", len(arr))
	}
}

func TestApplyImmutableAttributeChangeRejected(t *testing.T) {
	rt := newGadgetRT(t)
	doc := resource.NewDocument(map[string]interface{}{
		"schemas":  []interface{}{"urn:test:Gadget"},
		"userName": "bjensen",
		"tag":      "original",
	})
	pr, err := ParseRequest([]byte(`{"Operations":[{"op":"replace","path":"tag","value":"changed"}]}`))
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if _, err := Apply(doc, pr, rt); err == nil {
		t.Fatal("expected replacing an immutable attribute to fail final re-validation")
	}
}
