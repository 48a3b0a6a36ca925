// Package provider defines the collaborator interfaces the core relies
// on to actually store and look up resources (spec.md section 6), plus
// the ServiceProviderConfig document (RFC 7643 section 5) describing
// which optional protocol features are turned on.
package provider

import (
	"sync/atomic"

	"github.com/sparrowscim/core/resource"
	"github.com/sparrowscim/core/schema"
)

// AuthenticationScheme describes one supported authentication mechanism,
// RFC 7643 section 5 "authenticationSchemes".
type AuthenticationScheme struct {
	Type             string `json:"type"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	SpecURI          string `json:"specUri,omitempty"`
	DocumentationURI string `json:"documentationUri,omitempty"`
	Primary          bool   `json:"primary,omitempty"`
}

type Bulk struct {
	Supported      bool `json:"supported"`
	MaxOperations  int  `json:"maxOperations"`
	MaxPayloadSize int  `json:"maxPayloadSize"`
}

type ChangePassword struct {
	Supported bool `json:"supported"`
}

type Etag struct {
	Supported bool `json:"supported"`
}

type FilterConfig struct {
	Supported  bool `json:"supported"`
	MaxResults int  `json:"maxResults"`
}

type PatchConfig struct {
	Supported bool `json:"supported"`
}

type SortConfig struct {
	Supported bool `json:"supported"`
}

// Config is the service provider's ServiceProviderConfig document.
type Config struct {
	Schemas               []string               `json:"schemas"`
	DocumentationURI      string                 `json:"documentationUri,omitempty"`
	Patch                 PatchConfig            `json:"patch"`
	Bulk                  Bulk                   `json:"bulk"`
	Filter                FilterConfig           `json:"filter"`
	ChangePassword        ChangePassword         `json:"changePassword"`
	Sort                  SortConfig             `json:"sort"`
	Etag                  Etag                   `json:"etag"`
	AuthenticationSchemes []AuthenticationScheme `json:"authenticationSchemes"`
}

// DefaultConfig returns the conservative configuration the reference
// httpx/memstore wiring starts from: every optional feature on, with the
// same bulk/filter ceilings the teacher's provider package ships.
func DefaultConfig() *Config {
	return &Config{
		Schemas:          []string{"urn:ietf:params:scim:schemas:core:2.0:ServiceProviderConfig"},
		DocumentationURI: "https://example.com/help/scim",
		Patch:            PatchConfig{Supported: true},
		Bulk:             Bulk{Supported: true, MaxOperations: 1000, MaxPayloadSize: 1048576},
		Filter:           FilterConfig{Supported: true, MaxResults: 200},
		ChangePassword:   ChangePassword{Supported: true},
		Sort:             SortConfig{Supported: true},
		Etag:             Etag{Supported: true},
		AuthenticationSchemes: []AuthenticationScheme{
			{Type: "oauthbearertoken", Primary: true, Name: "OAuth Bearer Token",
				Description: "Authentication scheme using the OAuth Bearer Token standard",
				SpecURI:     "http://www.rfc-editor.org/info/rfc6750"},
			{Type: "httpbasic", Name: "HTTP Basic",
				Description: "Authentication scheme using the HTTP Basic standard",
				SpecURI:     "http://www.rfc-editor.org/info/rfc2617"},
		},
	}
}

// ConfigAccessor holds a Config behind an atomic pointer so a running
// server can swap in a new configuration (e.g. to flip bulk.supported
// off under load) without a lock on the request path.
type ConfigAccessor struct {
	ptr atomic.Pointer[Config]
}

func NewConfigAccessor(cf *Config) *ConfigAccessor {
	a := &ConfigAccessor{}
	a.Store(cf)
	return a
}

func (a *ConfigAccessor) Load() *Config    { return a.ptr.Load() }
func (a *ConfigAccessor) Store(cf *Config) { a.ptr.Store(cf) }

// SearchRequest carries a parsed .search request body or an equivalent
// GET query string (spec.md section 4.5).
type SearchRequest struct {
	Filter             string   `json:"filter,omitempty"`
	Attributes         []string `json:"attributes,omitempty"`
	ExcludedAttributes []string `json:"excludedAttributes,omitempty"`
	SortBy             string   `json:"sortBy,omitempty"`
	SortOrder          string   `json:"sortOrder,omitempty"`
	StartIndex         int      `json:"startIndex,omitempty"`
	Count              int      `json:"count,omitempty"`
}

// ListResult is what a ResourceHandler's Search returns: the page of
// matching documents plus the total count across the whole collection
// (RFC 7644 section 3.4.2's "totalResults", independent of pagination).
type ListResult struct {
	Resources    []*resource.Document
	TotalResults int
}

// ResourceHandler is the storage collaborator the dispatcher calls into
// for one resource type (spec.md section 6), mirroring the teacher's
// Silo methods (Insert/Get/Replace/Delete/Search/Patch in
// scim/silo/silo.go) but operating on resource.Document instead of the
// teacher's AtGroup-based Resource, and never doing SCIM-level validation
// itself - Validate has already run by the time the dispatcher calls in.
type ResourceHandler interface {
	Create(doc *resource.Document) (*resource.Document, error)
	Get(id string) (*resource.Document, error)
	Replace(id string, doc *resource.Document, matchVersion string) (*resource.Document, error)
	Delete(id string, matchVersion string) error
	Search(req *SearchRequest) (*ListResult, error)
	ResourceType() *schema.ResourceType
}
