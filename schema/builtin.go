package schema

import "strings"

// bootstrapMeta loads the built-in RFC 7643 definitions every registry
// needs before it can accept a user-supplied schema: the meta-schemas
// for Schema and ResourceType themselves, ServiceProviderConfig, and the
// core User/EnterpriseUser/Group resource schemas. Each goes through the
// same NewSchema validation path a user schema does.
func (r *Registry) bootstrapMeta() error {
	for _, raw := range []string{
		schemaSchemaJSON,
		resourceTypeSchemaJSON,
		serviceProviderConfigSchemaJSON,
		userSchemaJSON,
		enterpriseUserSchemaJSON,
		groupSchemaJSON,
	} {
		sc, err := NewSchema([]byte(raw))
		if err != nil {
			return invalidSchema("built-in schema failed to validate: " + err.Error())
		}
		r.schemas[sc.Id] = sc
	}
	return nil
}

// addCommonAttrs injects the RFC 7643 section 3.1 common attributes
// (schemas, id, externalId, meta) into a resource type's main schema the
// first time it is registered, mirroring the way every concrete resource
// schema (User, Group, ...) omits them from its own document and relies
// on the server to add them.
func addCommonAttrs(sc *Schema) {
	if _, ok := sc.AttrMap["meta"]; ok {
		return // already added
	}

	add := func(a *AttrType) {
		a.NormName = strings.ToLower(a.Name)
		a.SchemaId = sc.Id
		sc.Attributes = append(sc.Attributes, a)
		sc.AttrMap[a.NormName] = a
	}

	schemasAttr := newAttrType()
	schemasAttr.Name = "schemas"
	schemasAttr.MultiValued = true
	schemasAttr.Required = true
	schemasAttr.Returned = RetAlways
	schemasAttr.Mutability = MutReadOnly
	add(schemasAttr)

	idAttr := newAttrType()
	idAttr.Name = "id"
	idAttr.CaseExact = true
	idAttr.Returned = RetAlways
	idAttr.Mutability = MutReadOnly
	add(idAttr)

	extIdAttr := newAttrType()
	extIdAttr.Name = "externalId"
	extIdAttr.CaseExact = true
	add(extIdAttr)

	metaAttr := newAttrType()
	metaAttr.Name = "meta"
	metaAttr.Type = TypeComplex
	metaAttr.Mutability = MutReadOnly
	metaAttr.subAttrMap = make(map[string]*AttrType)

	subAttr := func(name, typ string) *AttrType {
		a := newAttrType()
		a.Name = name
		a.Type = typ
		a.Mutability = MutReadOnly
		a.NormName = strings.ToLower(name)
		a.SchemaId = sc.Id
		a.parent = metaAttr
		metaAttr.subAttrMap[a.NormName] = a
		metaAttr.SubAttributes = append(metaAttr.SubAttributes, a)
		return a
	}
	subAttr("resourceType", TypeString)
	subAttr("created", TypeDateTime)
	subAttr("lastModified", TypeDateTime)
	subAttr("location", TypeString)
	subAttr("version", TypeString).CaseExact = true

	add(metaAttr)
}

const schemaSchemaJSON = `{
  "id": "urn:ietf:params:scim:schemas:core:2.0:Schema",
  "name": "Schema",
  "description": "The Schema resource",
  "attributes": [
    {"name": "id", "type": "string", "description": "The schema's URN", "caseExact": true, "mutability": "readOnly", "returned": "always"},
    {"name": "name", "type": "string", "description": "The schema's display name", "mutability": "readOnly"},
    {"name": "description", "type": "string", "description": "The schema's human-readable description", "mutability": "readOnly"},
    {"name": "attributes", "type": "complex", "description": "A complex attribute describing the attributes of the schema", "multiValued": true, "mutability": "readOnly",
      "subAttributes": [
        {"name": "name", "type": "string", "description": "The attribute's name"},
        {"name": "type", "type": "string", "description": "The attribute's data type", "canonicalValues": ["string","boolean","decimal","integer","dateTime","binary","reference","complex"]},
        {"name": "multiValued", "type": "boolean", "description": "Whether the attribute is multi-valued"},
        {"name": "description", "type": "string", "description": "The attribute's human-readable description"},
        {"name": "required", "type": "boolean", "description": "Whether the attribute is required"},
        {"name": "canonicalValues", "type": "string", "multiValued": true, "description": "The enumerated values of the attribute"},
        {"name": "caseExact", "type": "boolean", "description": "Whether string comparisons are case-sensitive"},
        {"name": "mutability", "type": "string", "description": "The attribute's mutability", "canonicalValues": ["readOnly","readWrite","immutable","writeOnly"]},
        {"name": "returned", "type": "string", "description": "When the attribute is returned", "canonicalValues": ["always","never","default","request"]},
        {"name": "uniqueness", "type": "string", "description": "The attribute's uniqueness level", "canonicalValues": ["none","server","global"]},
        {"name": "referenceTypes", "type": "string", "multiValued": true, "description": "The reference types a reference attribute may point to"}
      ]
    }
  ]
}`

const resourceTypeSchemaJSON = `{
  "id": "urn:ietf:params:scim:schemas:core:2.0:ResourceType",
  "name": "ResourceType",
  "description": "Specifies the schema that describes a SCIM resource type",
  "attributes": [
    {"name": "id", "type": "string", "description": "The resource type's server unique id", "caseExact": true, "mutability": "readOnly"},
    {"name": "name", "type": "string", "description": "The resource type name", "required": true, "mutability": "readOnly"},
    {"name": "description", "type": "string", "description": "The resource type's human-readable description", "mutability": "readOnly"},
    {"name": "endpoint", "type": "reference", "referenceTypes": ["uri"], "description": "The resource type's HTTP-addressable endpoint", "required": true, "mutability": "readOnly"},
    {"name": "schema", "type": "reference", "referenceTypes": ["uri"], "description": "The resource type's primary/base schema URN", "required": true, "mutability": "readOnly"},
    {"name": "schemaExtensions", "type": "complex", "multiValued": true, "description": "A list of URNs indicating the schema extensions", "mutability": "readOnly",
      "subAttributes": [
        {"name": "schema", "type": "reference", "referenceTypes": ["uri"], "required": true, "description": "The URN of the schema extension"},
        {"name": "required", "type": "boolean", "required": true, "description": "Whether the extension is required"}
      ]
    }
  ]
}`

const serviceProviderConfigSchemaJSON = `{
  "id": "urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig",
  "name": "ServiceProviderConfig",
  "description": "Describes the capabilities available on a SCIM service provider",
  "attributes": [
    {"name": "documentationUri", "type": "reference", "referenceTypes": ["external"], "description": "An HTTP-addressable URL pointing to the service provider's human-consumable help documentation", "mutability": "readOnly"},
    {"name": "patch", "type": "complex", "description": "Whether the PATCH operation is supported", "mutability": "readOnly",
      "subAttributes": [{"name": "supported", "type": "boolean", "required": true}]},
    {"name": "bulk", "type": "complex", "description": "Whether bulk operations are supported", "mutability": "readOnly",
      "subAttributes": [
        {"name": "supported", "type": "boolean", "required": true},
        {"name": "maxOperations", "type": "integer", "required": true},
        {"name": "maxPayloadSize", "type": "integer", "required": true}
      ]},
    {"name": "filter", "type": "complex", "description": "Whether the filter option is supported", "mutability": "readOnly",
      "subAttributes": [
        {"name": "supported", "type": "boolean", "required": true},
        {"name": "maxResults", "type": "integer", "required": true}
      ]},
    {"name": "changePassword", "type": "complex", "description": "Whether the change password operation is supported", "mutability": "readOnly",
      "subAttributes": [{"name": "supported", "type": "boolean", "required": true}]},
    {"name": "sort", "type": "complex", "description": "Whether sorting is supported", "mutability": "readOnly",
      "subAttributes": [{"name": "supported", "type": "boolean", "required": true}]},
    {"name": "etag", "type": "complex", "description": "Whether ETags are supported", "mutability": "readOnly",
      "subAttributes": [{"name": "supported", "type": "boolean", "required": true}]},
    {"name": "authenticationSchemes", "type": "complex", "multiValued": true, "required": true, "description": "A list of supported authentication schemes", "mutability": "readOnly",
      "subAttributes": [
        {"name": "name", "type": "string", "required": true},
        {"name": "description", "type": "string", "required": true},
        {"name": "specUri", "type": "reference", "referenceTypes": ["external"]},
        {"name": "documentationUri", "type": "reference", "referenceTypes": ["external"]},
        {"name": "type", "type": "string", "required": true, "canonicalValues": ["oauth","oauth2","oauthbearertoken","httpbasic","httpdigest"]},
        {"name": "primary", "type": "boolean"}
      ]}
  ]
}`

const userSchemaJSON = `{
  "id": "urn:ietf:params:scim:schemas:core:2.0:User",
  "name": "User",
  "description": "User Account",
  "attributes": [
    {"name": "userName", "type": "string", "description": "Unique identifier for the User", "required": true, "uniqueness": "server"},
    {"name": "name", "type": "complex", "description": "The components of the user's real name",
      "subAttributes": [
        {"name": "formatted", "type": "string", "description": "The full name"},
        {"name": "familyName", "type": "string", "description": "The family name"},
        {"name": "givenName", "type": "string", "description": "The given name"},
        {"name": "middleName", "type": "string", "description": "The middle name"},
        {"name": "honorificPrefix", "type": "string", "description": "The honorific prefix"},
        {"name": "honorificSuffix", "type": "string", "description": "The honorific suffix"}
      ]},
    {"name": "displayName", "type": "string", "description": "The name displayed to end users"},
    {"name": "nickName", "type": "string", "description": "The casual name"},
    {"name": "profileUrl", "type": "reference", "referenceTypes": ["external"], "description": "A URI pointing to the user's online profile"},
    {"name": "title", "type": "string", "description": "The user's title"},
    {"name": "userType", "type": "string", "description": "The relationship between the organization and the user"},
    {"name": "preferredLanguage", "type": "string", "description": "The preferred written or spoken language"},
    {"name": "locale", "type": "string", "description": "Used to indicate the user's default location"},
    {"name": "timezone", "type": "string", "description": "The user's timezone"},
    {"name": "active", "type": "boolean", "description": "Whether the user's account is active"},
    {"name": "password", "type": "string", "description": "The user's clear text password", "mutability": "writeOnly", "returned": "never"},
    {"name": "emails", "type": "complex", "multiValued": true, "description": "Email addresses for the user",
      "subAttributes": [
        {"name": "value", "type": "string", "description": "The email address"},
        {"name": "display", "type": "string", "description": "A human-readable label for the email"},
        {"name": "type", "type": "string", "description": "The email type", "canonicalValues": ["work","home","other"]},
        {"name": "primary", "type": "boolean", "description": "Whether this is the primary email"}
      ]},
    {"name": "phoneNumbers", "type": "complex", "multiValued": true, "description": "Phone numbers for the user",
      "subAttributes": [
        {"name": "value", "type": "string", "description": "The phone number"},
        {"name": "display", "type": "string", "description": "A human-readable label"},
        {"name": "type", "type": "string", "description": "The phone number type", "canonicalValues": ["work","home","mobile","fax","pager","other"]},
        {"name": "primary", "type": "boolean", "description": "Whether this is the primary phone number"}
      ]},
    {"name": "ims", "type": "complex", "multiValued": true, "description": "Instant messaging addresses for the user",
      "subAttributes": [
        {"name": "value", "type": "string"},
        {"name": "display", "type": "string"},
        {"name": "type", "type": "string", "canonicalValues": ["aim","gtalk","icq","xmpp","msn","skype","qq","yahoo"]},
        {"name": "primary", "type": "boolean"}
      ]},
    {"name": "photos", "type": "complex", "multiValued": true, "description": "URIs of images of the user",
      "subAttributes": [
        {"name": "value", "type": "reference", "referenceTypes": ["external"]},
        {"name": "display", "type": "string"},
        {"name": "type", "type": "string", "canonicalValues": ["photo","thumbnail"]},
        {"name": "primary", "type": "boolean"}
      ]},
    {"name": "addresses", "type": "complex", "multiValued": true, "description": "A physical mailing address for the user",
      "subAttributes": [
        {"name": "formatted", "type": "string"},
        {"name": "streetAddress", "type": "string"},
        {"name": "locality", "type": "string"},
        {"name": "region", "type": "string"},
        {"name": "postalCode", "type": "string"},
        {"name": "country", "type": "string"},
        {"name": "type", "type": "string", "canonicalValues": ["work","home","other"]}
      ]},
    {"name": "groups", "type": "complex", "multiValued": true, "mutability": "readOnly", "description": "A list of groups the user belongs to",
      "subAttributes": [
        {"name": "value", "type": "string", "mutability": "readOnly"},
        {"name": "$ref", "type": "reference", "referenceTypes": ["User","Group"], "mutability": "readOnly"},
        {"name": "display", "type": "string", "mutability": "readOnly"},
        {"name": "type", "type": "string", "mutability": "readOnly", "canonicalValues": ["direct","indirect"]}
      ]},
    {"name": "entitlements", "type": "complex", "multiValued": true, "description": "A list of entitlements for the user",
      "subAttributes": [
        {"name": "value", "type": "string"},
        {"name": "display", "type": "string"},
        {"name": "type", "type": "string"},
        {"name": "primary", "type": "boolean"}
      ]},
    {"name": "roles", "type": "complex", "multiValued": true, "description": "A list of roles for the user",
      "subAttributes": [
        {"name": "value", "type": "string"},
        {"name": "display", "type": "string"},
        {"name": "type", "type": "string"},
        {"name": "primary", "type": "boolean"}
      ]},
    {"name": "x509Certificates", "type": "complex", "multiValued": true, "description": "A list of certificates issued to the user",
      "subAttributes": [{"name": "value", "type": "binary"}]}
  ]
}`

const enterpriseUserSchemaJSON = `{
  "id": "urn:ietf:params:scim:schemas:extension:enterprise:2.0:User",
  "name": "EnterpriseUser",
  "description": "Enterprise User extension",
  "attributes": [
    {"name": "employeeNumber", "type": "string", "description": "A string identifier for the employee"},
    {"name": "costCenter", "type": "string", "description": "The cost center for the employee"},
    {"name": "organization", "type": "string", "description": "The organization for the employee"},
    {"name": "division", "type": "string", "description": "The division for the employee"},
    {"name": "department", "type": "string", "description": "The department for the employee"},
    {"name": "manager", "type": "complex", "description": "The employee's manager",
      "subAttributes": [
        {"name": "value", "type": "string", "description": "The manager's id"},
        {"name": "$ref", "type": "reference", "referenceTypes": ["User"], "description": "The URI of the manager's resource"},
        {"name": "displayName", "type": "string", "mutability": "readOnly", "description": "The manager's displayName"}
      ]}
  ]
}`

const groupSchemaJSON = `{
  "id": "urn:ietf:params:scim:schemas:core:2.0:Group",
  "name": "Group",
  "description": "Group",
  "attributes": [
    {"name": "displayName", "type": "string", "description": "A human-readable name for the Group", "required": true},
    {"name": "members", "type": "complex", "multiValued": true, "description": "A list of members of the Group",
      "subAttributes": [
        {"name": "value", "type": "string", "description": "The member's id"},
        {"name": "$ref", "type": "reference", "referenceTypes": ["User","Group"], "description": "The URI of the member resource"},
        {"name": "type", "type": "string", "description": "The member's resource type", "canonicalValues": ["User","Group"]},
        {"name": "display", "type": "string", "description": "A human-readable name for the member"}
      ]}
  ]
}`
