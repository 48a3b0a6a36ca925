// Package schema implements the SCIM schema registry: parsing and
// validating Schema and ResourceType definitions (RFC 7643 sections 2-6)
// and resolving dotted attribute paths against them.
package schema

import (
	"fmt"
	"regexp"
	"strings"

	logger "github.com/juju/loggo"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimcore.schema")
}

// Attribute types, RFC 7643 section 2.2.
const (
	TypeString    = "string"
	TypeBoolean   = "boolean"
	TypeDecimal   = "decimal"
	TypeInteger   = "integer"
	TypeDateTime  = "dateTime"
	TypeBinary    = "binary"
	TypeReference = "reference"
	TypeComplex   = "complex"
)

// Mutability values, RFC 7643 section 2.2.
const (
	MutReadOnly  = "readOnly"
	MutReadWrite = "readWrite"
	MutImmutable = "immutable"
	MutWriteOnly = "writeOnly"
)

// Returned values, RFC 7643 section 2.2.
const (
	RetAlways  = "always"
	RetNever   = "never"
	RetDefault = "default"
	RetRequest = "request"
)

// Uniqueness values, RFC 7643 section 2.2.
const (
	UniqNone   = "none"
	UniqServer = "server"
	UniqGlobal = "global"
)

var (
	validTypes       = []string{TypeString, TypeBoolean, TypeDecimal, TypeInteger, TypeDateTime, TypeBinary, TypeReference, TypeComplex}
	validMutability  = []string{MutReadOnly, MutReadWrite, MutImmutable, MutWriteOnly}
	validReturned    = []string{RetAlways, RetNever, RetDefault, RetRequest}
	validUniqueness  = []string{UniqNone, UniqServer, UniqGlobal}
	validNameRegex   = regexp.MustCompile(`^[0-9A-Za-z_$-]+$`)
)

// AttrType is one node in an attribute tree. All fields are named to match
// RFC 7643's JSON representation so schema documents unmarshal directly
// into it.
type AttrType struct {
	Name            string      `json:"name"`
	Type            string      `json:"type"`
	Description     string      `json:"description"`
	CaseExact       bool        `json:"caseExact"`
	MultiValued     bool        `json:"multiValued"`
	Mutability      string      `json:"mutability"`
	Required        bool        `json:"required"`
	Returned        string      `json:"returned"`
	Uniqueness      string      `json:"uniqueness"`
	SubAttributes   []*AttrType `json:"subAttributes,omitempty"`
	ReferenceTypes  []string    `json:"referenceTypes,omitempty"`
	CanonicalValues []string    `json:"canonicalValues,omitempty"`

	// NormName is the lowercased Name, used for all lookups; comparisons
	// against client input stay case-insensitive per spec.md section 4.1.
	NormName string `json:"-"`
	// SchemaId is the URN of the owning Schema.
	SchemaId string `json:"-"`
	// parent is nil for top-level attributes, set for sub-attributes.
	// It is a plain pointer, not an owning reference: the Schema's
	// Attributes/SubAttrMap slices own the node's lifetime.
	parent     *AttrType
	subAttrMap map[string]*AttrType
}

func newAttrType() *AttrType {
	return &AttrType{Mutability: MutReadWrite, Returned: RetDefault, Uniqueness: UniqNone, Type: TypeString}
}

// Parent returns the owning complex attribute, or nil for a top-level
// attribute.
func (a *AttrType) Parent() *AttrType { return a.parent }

// SubAttr looks up a sub-attribute by case-insensitive name.
func (a *AttrType) SubAttr(name string) *AttrType {
	if a.subAttrMap == nil {
		return nil
	}
	return a.subAttrMap[strings.ToLower(name)]
}

func (a *AttrType) IsComplex() bool   { return a.Type == TypeComplex }
func (a *AttrType) IsReference() bool { return a.Type == TypeReference }
func (a *AttrType) IsReadOnly() bool  { return a.Mutability == MutReadOnly }
func (a *AttrType) IsImmutable() bool { return a.Mutability == MutImmutable }
func (a *AttrType) IsWriteOnly() bool { return a.Mutability == MutWriteOnly }

// QualifiedName returns "schema-urn:dotted.path" for unambiguous
// cross-schema references, e.g. in PATCH path error messages.
func (a *AttrType) QualifiedName() string {
	path := a.NormName
	if a.parent != nil {
		path = a.parent.NormName + "." + a.NormName
	}
	if a.SchemaId == "" {
		return path
	}
	return a.SchemaId + ":" + path
}

// ValidationErrors collects every structural problem found while parsing
// a Schema or ResourceType so a single response can report all of them.
type ValidationErrors struct {
	Msgs []string
}

func (ve *ValidationErrors) Error() string {
	return fmt.Sprintf("%d schema validation error(s): %s", len(ve.Msgs), strings.Join(ve.Msgs, "; "))
}

func (ve *ValidationErrors) add(format string, args ...interface{}) {
	ve.Msgs = append(ve.Msgs, fmt.Sprintf(format, args...))
}

func (ve *ValidationErrors) ok() bool { return len(ve.Msgs) == 0 }

func exists(val string, list []string) bool {
	for _, v := range list {
		if v == val {
			return true
		}
	}
	return false
}
