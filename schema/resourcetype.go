package schema

import (
	"encoding/json"
	"path"
	"strings"
)

// SchemaExtension names one extension schema a ResourceType carries, and
// whether the extension object must be present on every resource.
type SchemaExtension struct {
	Schema   string `json:"schema"`
	Required bool   `json:"required"`
}

// ResourceType is a named endpoint descriptor binding an HTTP endpoint
// (e.g. "/Users") to a main schema and optional extension schemas.
// Immutable once returned by NewResourceType.
type ResourceType struct {
	Id               string             `json:"id"`
	Name             string             `json:"name"`
	Endpoint         string             `json:"endpoint"`
	Description      string             `json:"description"`
	Schema           string             `json:"schema"`
	SchemaExtensions []*SchemaExtension `json:"schemaExtensions,omitempty"`

	schemas map[string]*Schema
}

// NewResourceType parses a ResourceType document and resolves its schema
// URNs against sm. It fails with an error naming every unknown URN.
func NewResourceType(data []byte, sm map[string]*Schema) (*ResourceType, error) {
	rt := &ResourceType{}
	if err := json.Unmarshal(data, rt); err != nil {
		return nil, err
	}

	ve := &ValidationErrors{}

	rt.Name = strings.TrimSpace(rt.Name)
	if rt.Name == "" {
		ve.add("resourceType name is required")
	}

	rt.Endpoint = path.Clean(strings.TrimSpace(rt.Endpoint))
	if rt.Endpoint == "" || rt.Endpoint == "." {
		ve.add("resourceType endpoint is required")
	}

	rt.schemas = make(map[string]*Schema)

	rt.Schema = strings.TrimSpace(rt.Schema)
	if rt.Schema == "" {
		ve.add("resourceType schema is required")
	} else if sm[rt.Schema] == nil {
		ve.add("unknown schema URN %q referenced by resourceType %q", rt.Schema, rt.Name)
	} else {
		rt.schemas[rt.Schema] = sm[rt.Schema]
	}

	for _, ext := range rt.SchemaExtensions {
		ext.Schema = strings.TrimSpace(ext.Schema)
		if ext.Schema == "" {
			ve.add("resourceType %q: extension schema URN is required", rt.Name)
		} else if sm[ext.Schema] == nil {
			ve.add("unknown extension schema URN %q referenced by resourceType %q", ext.Schema, rt.Name)
		} else {
			rt.schemas[ext.Schema] = sm[ext.Schema]
		}
	}

	if !ve.ok() {
		return nil, ve
	}

	return rt, nil
}

// MainSchema returns the ResourceType's primary schema.
func (rt *ResourceType) MainSchema() *Schema { return rt.schemas[rt.Schema] }

// Extension returns the named extension schema, or nil.
func (rt *ResourceType) Extension(urn string) *Schema { return rt.schemas[urn] }

// RequiredExtension reports whether urn is a required extension of rt.
func (rt *ResourceType) RequiredExtension(urn string) bool {
	for _, e := range rt.SchemaExtensions {
		if e.Schema == urn {
			return e.Required
		}
	}
	return false
}

// Schemas returns every schema (main + extensions) bound to this
// resource type, keyed by URN.
func (rt *ResourceType) Schemas() map[string]*Schema { return rt.schemas }
