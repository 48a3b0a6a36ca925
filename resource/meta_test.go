package resource

import (
	"testing"
	"time"
)

func TestStampMetaSetsResourceTypeAndVersion(t *testing.T) {
	doc := docOf(map[string]interface{}{"schemas": schemasArr(), "userName": "bjensen"})
	created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	StampMeta(doc, "Widget", "https://example.com/Widgets/1", created)

	meta, ok := doc.GetTop("meta")
	if !ok {
		t.Fatal("expected a meta attribute to be set")
	}
	m := meta.(map[string]interface{})
	if m["resourceType"] != "Widget" {
		t.Errorf("resourceType = %v", m["resourceType"])
	}
	if m["location"] != "https://example.com/Widgets/1" {
		t.Errorf("location = %v", m["location"])
	}
	if m["created"] != created.UTC().Format(time.RFC3339) {
		t.Errorf("created = %v", m["created"])
	}
	if m["version"] == "" || m["version"] == nil {
		t.Error("expected a non-empty version")
	}
	if Version(doc) != m["version"] {
		t.Errorf("Version() = %q, want %q", Version(doc), m["version"])
	}
}

func TestStampMetaPreservesCreatedAcrossUpdates(t *testing.T) {
	doc := docOf(map[string]interface{}{"schemas": schemasArr(), "userName": "bjensen"})
	first := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	StampMeta(doc, "Widget", "", first)

	second := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	StampMeta(doc, "Widget", "", second)

	meta, _ := doc.GetTop("meta")
	m := meta.(map[string]interface{})
	if m["created"] != first.UTC().Format(time.RFC3339) {
		t.Errorf("created = %v, want unchanged at %v", m["created"], first)
	}
}

func TestStampMetaVersionChangesWithContent(t *testing.T) {
	doc := docOf(map[string]interface{}{"schemas": schemasArr(), "userName": "bjensen"})
	StampMeta(doc, "Widget", "", time.Now())
	v1 := Version(doc)

	doc.SetTop("userName", "bjensen2")
	StampMeta(doc, "Widget", "", time.Now())
	v2 := Version(doc)

	if v1 == v2 {
		t.Error("expected version to change after content changed")
	}
}
