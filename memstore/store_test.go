package memstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sparrowscim/core/provider"
	"github.com/sparrowscim/core/resource"
	"github.com/sparrowscim/core/schema"
)

const widgetSchemaJSON = `{
  "id": "urn:test:Widget",
  "name": "Widget",
  "description": "a fixture schema for memstore's own tests",
  "attributes": [
    {"name": "userName", "type": "string", "description": "d", "required": true},
    {"name": "score", "type": "integer", "description": "d"}
  ]
}`

const widgetResourceTypeJSON = `{"name":"Widget","endpoint":"/Widgets","schema":"urn:test:Widget"}`

func newWidgetStore(t *testing.T) *Store {
	t.Helper()
	r, err := schema.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if _, err := r.RegisterSchema([]byte(widgetSchemaJSON)); err != nil {
		t.Fatalf("RegisterSchema() error = %v", err)
	}
	rt, err := r.RegisterResourceType([]byte(widgetResourceTypeJSON))
	if err != nil {
		t.Fatalf("RegisterResourceType() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "widgets.db")
	st, err := Open(path, rt)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close(); os.Remove(path) })
	return st
}

func TestStoreCreateAssignsIDAndMeta(t *testing.T) {
	st := newWidgetStore(t)
	doc := resource.NewDocument(map[string]interface{}{"schemas": []interface{}{"urn:test:Widget"}, "userName": "bjensen"})

	created, err := st.Create(doc)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	id, ok := created.GetTop("id")
	if !ok || id == "" {
		t.Fatal("expected Create to assign an id")
	}
	if resource.Version(created) == "" {
		t.Error("expected Create to stamp a version")
	}
}

func TestStoreGetRoundTrips(t *testing.T) {
	st := newWidgetStore(t)
	doc := resource.NewDocument(map[string]interface{}{"schemas": []interface{}{"urn:test:Widget"}, "userName": "bjensen"})
	created, _ := st.Create(doc)
	id, _ := created.GetTop("id")

	got, err := st.Get(id.(string))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v, _ := got.GetTop("userName"); v != "bjensen" {
		t.Errorf("userName = %v", v)
	}
}

func TestStoreGetUnknownIDReturnsNotFound(t *testing.T) {
	st := newWidgetStore(t)
	if _, err := st.Get("nope"); err == nil {
		t.Fatal("expected an error for an unknown id")
	}
}

func TestStoreReplacePreservesCreated(t *testing.T) {
	st := newWidgetStore(t)
	doc := resource.NewDocument(map[string]interface{}{"schemas": []interface{}{"urn:test:Widget"}, "userName": "bjensen"})
	created, _ := st.Create(doc)
	id, _ := created.GetTop("id")
	createdAt, _ := created.GetPath("meta.created")

	updated, err := st.Replace(id.(string), resource.NewDocument(map[string]interface{}{
		"schemas": []interface{}{"urn:test:Widget"}, "userName": "bjensen2",
	}), "")
	if err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	updatedAt, _ := updated.GetPath("meta.created")
	if createdAt != updatedAt {
		t.Errorf("created = %v, want unchanged at %v", updatedAt, createdAt)
	}
}

func TestStoreDeleteRemovesResource(t *testing.T) {
	st := newWidgetStore(t)
	doc := resource.NewDocument(map[string]interface{}{"schemas": []interface{}{"urn:test:Widget"}, "userName": "bjensen"})
	created, _ := st.Create(doc)
	id, _ := created.GetTop("id")

	if err := st.Delete(id.(string), ""); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := st.Get(id.(string)); err == nil {
		t.Error("expected the resource to be gone after Delete")
	}
}

func TestStoreSearchFiltersByAttribute(t *testing.T) {
	st := newWidgetStore(t)
	st.Create(resource.NewDocument(map[string]interface{}{"schemas": []interface{}{"urn:test:Widget"}, "userName": "alice"}))
	st.Create(resource.NewDocument(map[string]interface{}{"schemas": []interface{}{"urn:test:Widget"}, "userName": "bob"}))

	res, err := st.Search(&provider.SearchRequest{Filter: `userName eq "alice"`, StartIndex: 1, Count: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.TotalResults != 1 {
		t.Fatalf("TotalResults = %d, want 1", res.TotalResults)
	}
	if len(res.Resources) != 1 {
		t.Fatalf("len(Resources) = %d, want 1", len(res.Resources))
	}
	if v, _ := res.Resources[0].GetTop("userName"); v != "alice" {
		t.Errorf("userName = %v", v)
	}
}

func TestStoreSearchWithoutFilterReturnsAll(t *testing.T) {
	st := newWidgetStore(t)
	for i := 0; i < 5; i++ {
		st.Create(resource.NewDocument(map[string]interface{}{"schemas": []interface{}{"urn:test:Widget"}, "userName": "u"}))
	}
	res, err := st.Search(&provider.SearchRequest{StartIndex: 1, Count: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if res.TotalResults != 5 {
		t.Errorf("TotalResults = %d, want 5", res.TotalResults)
	}
	if len(res.Resources) != 2 {
		t.Errorf("len(Resources) = %d, want 2", len(res.Resources))
	}
}

func TestStoreSearchSortsByAttribute(t *testing.T) {
	st := newWidgetStore(t)
	for _, name := range []string{"carol", "alice", "bob"} {
		st.Create(resource.NewDocument(map[string]interface{}{"schemas": []interface{}{"urn:test:Widget"}, "userName": name}))
	}

	res, err := st.Search(&provider.SearchRequest{SortBy: "userName", StartIndex: 1, Count: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	var got []string
	for _, d := range res.Resources {
		v, _ := d.GetTop("userName")
		got = append(got, v.(string))
	}
	want := []string{"alice", "bob", "carol"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sorted order = %v, want %v", got, want)
		}
	}

	res, err = st.Search(&provider.SearchRequest{SortBy: "userName", SortOrder: "descending", StartIndex: 1, Count: 10})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	first, _ := res.Resources[0].GetTop("userName")
	if first != "carol" {
		t.Errorf("descending sort first element = %v, want carol", first)
	}
}
