package schema

import (
	"encoding/json"
	"strings"
)

// Schema is a named, URN-identified attribute definition document,
// immutable after NewSchema returns successfully.
type Schema struct {
	Id          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Attributes  []*AttrType `json:"attributes"`

	// AttrMap indexes top-level attributes by lowercased name.
	AttrMap map[string]*AttrType `json:"-"`
}

// NewSchema parses and validates a Schema document. It enforces the
// section 3 invariants: no duplicate attribute name within the schema,
// required fields present (name, type, description), and no illegal
// mutability/returned combination.
func NewSchema(data []byte) (*Schema, error) {
	sc := &Schema{}
	if err := json.Unmarshal(data, sc); err != nil {
		return nil, err
	}

	for _, a := range sc.Attributes {
		setAttrDefaults(a)
	}

	if err := validateSchema(sc); err != nil {
		return nil, err
	}

	return sc, nil
}

func setAttrDefaults(a *AttrType) {
	if a.Mutability == "" {
		a.Mutability = MutReadWrite
	}
	if a.Returned == "" {
		a.Returned = RetDefault
	}
	if a.Uniqueness == "" {
		a.Uniqueness = UniqNone
	}
	if a.Type == "" {
		a.Type = TypeString
	}
	for _, sa := range a.SubAttributes {
		setAttrDefaults(sa)
	}
}

func validateSchema(sc *Schema) error {
	ve := &ValidationErrors{}

	if strings.TrimSpace(sc.Id) == "" {
		ve.add("schema id is required")
	}
	if strings.TrimSpace(sc.Name) == "" {
		ve.add("schema name is required")
	}
	if len(sc.Attributes) == 0 {
		ve.add("a schema must declare at least one attribute")
		return ve
	}

	sc.AttrMap = make(map[string]*AttrType)

	for _, a := range sc.Attributes {
		validateAttrType(a, sc.Id, ve)
		key := strings.ToLower(a.Name)
		if _, dup := sc.AttrMap[key]; dup {
			ve.add("duplicate attribute name %q in schema %s", a.Name, sc.Id)
			continue
		}
		sc.AttrMap[key] = a
	}

	if !ve.ok() {
		return ve
	}
	return nil
}

func validateAttrType(a *AttrType, schemaId string, ve *ValidationErrors) {
	if strings.TrimSpace(a.Name) == "" {
		ve.add("attribute name is required")
	} else if !validNameRegex.MatchString(a.Name) {
		ve.add("invalid attribute name %q", a.Name)
	}
	if strings.TrimSpace(a.Description) == "" {
		ve.add("attribute %q is missing a description", a.Name)
	}

	a.Type = canonicalize(a.Type, validTypes, ve, "type", a.Name)
	a.Mutability = canonicalize(a.Mutability, validMutability, ve, "mutability", a.Name)
	a.Returned = canonicalize(a.Returned, validReturned, ve, "returned", a.Name)
	a.Uniqueness = canonicalize(a.Uniqueness, validUniqueness, ve, "uniqueness", a.Name)

	if a.Mutability == MutReadOnly && a.Returned == RetNever {
		ve.add("attribute %q: mutability=readOnly and returned=never is forbidden", a.Name)
	}
	if a.Mutability == MutWriteOnly && a.Returned != RetNever {
		ve.add("attribute %q: mutability=writeOnly requires returned=never", a.Name)
	}

	if a.IsReference() && len(a.ReferenceTypes) == 0 {
		ve.add("attribute %q: reference type requires at least one referenceType", a.Name)
	}

	a.NormName = strings.ToLower(a.Name)
	a.SchemaId = schemaId

	if a.IsComplex() {
		if len(a.SubAttributes) == 0 {
			ve.add("attribute %q: complex type requires subAttributes", a.Name)
		}
		a.subAttrMap = make(map[string]*AttrType)
		for _, sa := range a.SubAttributes {
			validateAttrType(sa, schemaId, ve)
			sa.parent = a
			key := strings.ToLower(sa.Name)
			if _, dup := a.subAttrMap[key]; dup {
				ve.add("duplicate sub-attribute name %q under %q", sa.Name, a.Name)
				continue
			}
			a.subAttrMap[key] = sa
		}
		if a.MultiValued {
			addDefaultSubAttrs(a, schemaId)
		}
	}
}

// canonicalize case-insensitively matches val against allowed, returning
// the allowed entry's canonical casing, and records an error if no match.
func canonicalize(val string, allowed []string, ve *ValidationErrors, field, attrName string) string {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return a
		}
	}
	ve.add("attribute %q: invalid %s %q", attrName, field, val)
	return val
}

// addDefaultSubAttrs fills in the multi-valued complex sub-attributes
// implied by RFC 7643 section 2.4 (type, primary, display, value, $ref)
// when the schema document did not declare them explicitly.
func addDefaultSubAttrs(a *AttrType, schemaId string) {
	defaults := []*AttrType{
		{Name: "type", Type: TypeString, Mutability: MutReadWrite, Returned: RetDefault, Uniqueness: UniqNone},
		{Name: "primary", Type: TypeBoolean, Mutability: MutReadWrite, Returned: RetDefault, Uniqueness: UniqNone},
		{Name: "display", Type: TypeString, Mutability: MutImmutable, Returned: RetDefault, Uniqueness: UniqNone},
		{Name: "value", Type: TypeString, Mutability: MutReadWrite, Returned: RetDefault, Uniqueness: UniqNone},
		{Name: "$ref", Type: TypeReference, ReferenceTypes: []string{"external"}, Mutability: MutReadWrite, Returned: RetDefault, Uniqueness: UniqNone},
	}
	for _, d := range defaults {
		key := strings.ToLower(d.Name)
		if _, ok := a.subAttrMap[key]; ok {
			continue
		}
		d.NormName = key
		d.SchemaId = schemaId
		d.parent = a
		a.subAttrMap[key] = d
	}
}

// GetAtType resolves a dotted attribute name ("name" or "name.sub")
// against this schema's top-level attributes, case-insensitively.
func (sc *Schema) GetAtType(dotted string) *AttrType {
	lower := strings.ToLower(dotted)
	if idx := strings.IndexByte(lower, '.'); idx >= 0 {
		parent := sc.AttrMap[lower[:idx]]
		if parent == nil || !parent.IsComplex() {
			return nil
		}
		return parent.SubAttr(lower[idx+1:])
	}
	return sc.AttrMap[lower]
}
