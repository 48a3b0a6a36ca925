package schema

import "strings"

// Registry holds every Schema and ResourceType known to a running server.
// It is written only during startup (NewRegistry plus a handful of
// RegisterSchema/RegisterResourceType calls); once a server begins
// serving requests, every method here is read-only and safe for
// concurrent use without synchronization, per spec.md section 5.
type Registry struct {
	schemas       map[string]*Schema
	resourceTypes map[string]*ResourceType
}

// NewRegistry builds a Registry pre-loaded with the built-in RFC 7643
// meta-schemas (Schema, ResourceType, ServiceProviderConfig, User,
// EnterpriseUser, Group), validating each against the same rules user
// schemas are held to before accepting any user-supplied schema. Meta is
// not loaded as a schema of its own: RegisterResourceType adds the meta
// common attribute to each resource type's main schema.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		schemas:       make(map[string]*Schema),
		resourceTypes: make(map[string]*ResourceType),
	}
	if err := r.bootstrapMeta(); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterSchema parses and validates a Schema document and adds it to
// the registry, keyed by its URN.
func (r *Registry) RegisterSchema(data []byte) (*Schema, error) {
	sc, err := NewSchema(data)
	if err != nil {
		return nil, invalidSchema(err.Error())
	}
	if _, dup := r.schemas[sc.Id]; dup {
		log.Warningf("re-registering schema %s", sc.Id)
	}
	r.schemas[sc.Id] = sc
	return sc, nil
}

// Schema looks up a registered schema by URN.
func (r *Registry) Schema(urn string) *Schema { return r.schemas[urn] }

// Schemas returns every registered schema.
func (r *Registry) Schemas() map[string]*Schema { return r.schemas }

// RegisterResourceType parses a ResourceType document, resolves its
// schema URNs against the registry, and adds it keyed by Name. It fails
// with InvalidResourceType if any referenced URN is unknown.
func (r *Registry) RegisterResourceType(data []byte) (*ResourceType, error) {
	rt, err := NewResourceType(data, r.schemas)
	if err != nil {
		return nil, invalidResourceType(err.Error())
	}
	addCommonAttrs(rt.MainSchema())
	r.resourceTypes[rt.Name] = rt
	r.resourceTypes[strings.ToLower(rt.Endpoint)] = rt
	return rt, nil
}

// ResourceType looks up a registered resource type by Name.
func (r *Registry) ResourceType(name string) *ResourceType { return r.resourceTypes[name] }

// ResourceTypeByEndpoint looks up a registered resource type by its
// endpoint path, e.g. "/Users".
func (r *Registry) ResourceTypeByEndpoint(endpoint string) *ResourceType {
	return r.resourceTypes[strings.ToLower(endpoint)]
}

// ResourceTypes returns every registered resource type, deduplicated
// (the registry indexes each one twice, by name and by endpoint).
func (r *Registry) ResourceTypes() []*ResourceType {
	seen := make(map[string]bool)
	out := make([]*ResourceType, 0, len(r.resourceTypes))
	for _, rt := range r.resourceTypes {
		if seen[rt.Id+rt.Name] {
			continue
		}
		seen[rt.Id+rt.Name] = true
		out = append(out, rt)
	}
	return out
}

// ResolveAttribute performs the case-insensitive dotted-path lookup
// described in spec.md section 4.1: search the main schema first, and
// return immediately on a match - a name also present in an extension
// is not ambiguous, the main schema simply wins. Ambiguity is defined
// only among extensions: two extensions declaring the same dotted name
// is an AmbiguousAttribute failure.
func ResolveAttribute(rt *ResourceType, dottedPath string) (*AttrType, error) {
	if main := rt.MainSchema(); main != nil {
		if at := main.GetAtType(dottedPath); at != nil {
			return at, nil
		}
	}

	var found *AttrType
	var foundIn string
	for _, ext := range rt.SchemaExtensions {
		sc := rt.Extension(ext.Schema)
		if sc == nil {
			continue
		}
		at := sc.GetAtType(dottedPath)
		if at == nil {
			continue
		}
		if found != nil && foundIn != ext.Schema {
			return nil, ambiguousAttribute("attribute '" + dottedPath + "' is defined in both " + foundIn + " and " + ext.Schema)
		}
		found = at
		foundIn = ext.Schema
	}

	return found, nil
}
