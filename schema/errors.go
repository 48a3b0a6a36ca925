package schema

import "fmt"

// RegistryError reports a failure to register a Schema or ResourceType,
// or to resolve an attribute path against one. These are configuration-
// time failures, distinct from the RFC 7644 runtime errors in package
// serr: nothing has been registered yet when they occur, so there is no
// SCIM request to report them on.
type RegistryError struct {
	Kind   string // "InvalidSchema" | "InvalidResourceType" | "AmbiguousAttribute"
	Detail string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func invalidSchema(detail string) *RegistryError {
	return &RegistryError{Kind: "InvalidSchema", Detail: detail}
}

func invalidResourceType(detail string) *RegistryError {
	return &RegistryError{Kind: "InvalidResourceType", Detail: detail}
}

func ambiguousAttribute(detail string) *RegistryError {
	return &RegistryError{Kind: "AmbiguousAttribute", Detail: detail}
}
