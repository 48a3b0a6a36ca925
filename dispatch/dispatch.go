// Package dispatch implements the transport-independent request/response
// cycle for a SCIM resource endpoint (spec.md section 6): it applies
// Validate, calls into a provider.ResourceHandler, stamps meta, and
// formats the SCIM envelope (list response, error response, ETags) a
// transport adapter like httpx serializes to the wire.
package dispatch

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	logger "github.com/juju/loggo"
	"github.com/sparrowscim/core/filter"
	"github.com/sparrowscim/core/patch"
	"github.com/sparrowscim/core/provider"
	"github.com/sparrowscim/core/resource"
	"github.com/sparrowscim/core/schema"
	"github.com/sparrowscim/core/serr"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimcore.dispatch")
}

// Request is one SCIM operation, already stripped of transport framing -
// httpx builds one of these per inbound HTTP request.
type Request struct {
	Method       string // "POST", "GET", "PUT", "PATCH", "DELETE"
	ResourceType string // ResourceType.Name, e.g. "User"
	ID           string // resource id, empty for collection-level requests
	Search       bool   // true for a ".search" request (body-carried query)
	Body         []byte
	Query        url.Values
	IfMatch      string
	IfNoneMatch  string
	BaseURL      string // used to build meta.location
}

// Response is the transport-independent result of Serve.
type Response struct {
	Status int
	Body   []byte
	ETag   string
	// Location is set on 201 Created responses, RFC 7644 section 3.3.
	Location string
}

// Dispatcher routes Requests to the registered provider.ResourceHandler
// for their resource type and formats SCIM-shaped responses.
type Dispatcher struct {
	Registry  *schema.Registry
	Config    *provider.ConfigAccessor
	Validator provider.RequestValidator
	handlers  map[string]provider.ResourceHandler
}

func NewDispatcher(reg *schema.Registry, cfg *provider.ConfigAccessor) *Dispatcher {
	return &Dispatcher{Registry: reg, Config: cfg, handlers: make(map[string]provider.ResourceHandler)}
}

// RegisterHandler binds a ResourceHandler to the resource type name it
// serves (e.g. "User").
func (d *Dispatcher) RegisterHandler(name string, h provider.ResourceHandler) {
	d.handlers[name] = h
}

// Serve executes req and never panics: any failure is reported as a
// well-formed SCIM error Response.
func (d *Dispatcher) Serve(req *Request) (resp *Response) {
	defer func() {
		if e := recover(); e != nil {
			log.Errorf("panic while serving %s %s: %v", req.Method, req.ResourceType, e)
			resp = errorResponse(serr.NewInternalServerError("internal error while serving the request"))
		}
	}()

	rt := d.Registry.ResourceType(req.ResourceType)
	if rt == nil {
		return errorResponse(serr.NewNotFoundError("unknown resource type " + req.ResourceType))
	}
	h := d.handlers[rt.Name]
	if h == nil {
		return errorResponse(serr.NewInternalServerError("no handler registered for resource type " + rt.Name))
	}

	switch {
	case req.Method == "POST" && req.Search:
		return d.search(rt, h, req)
	case req.Method == "POST":
		return d.create(rt, h, req)
	case req.Method == "GET" && req.ID == "":
		return d.search(rt, h, req)
	case req.Method == "GET":
		return d.get(rt, h, req)
	case req.Method == "PUT":
		return d.replace(rt, h, req)
	case req.Method == "PATCH":
		return d.patchOne(rt, h, req)
	case req.Method == "DELETE":
		return d.delete(rt, h, req)
	default:
		return errorResponse(serr.NewBadRequestError("unsupported method " + req.Method))
	}
}

func (d *Dispatcher) create(rt *schema.ResourceType, h provider.ResourceHandler, req *Request) *Response {
	raw, err := decodeBody(req.Body)
	if err != nil {
		return errorResponse(err)
	}
	doc := resource.NewDocument(raw)

	validated, err := resource.Validate(doc, rt, resource.Request, resource.MethodPOST, nil)
	if err != nil {
		return errorResponse(err)
	}

	if d.Validator != nil {
		if err := d.Validator.ValidateCreate(&provider.Context{}, rt.Name, validated.Map()); err != nil {
			return errorResponse(err)
		}
	}

	stored, err := h.Create(validated)
	if err != nil {
		return errorResponse(err)
	}

	id, _ := stored.GetTop("id")
	loc := location(req.BaseURL, rt, fmt.Sprint(id))
	resource.StampMeta(stored, rt.Name, loc, time.Now())

	out, err := resource.Validate(stored, rt, resource.Response, resource.MethodGET, nil)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(201, out.Map(), resource.Version(out), loc)
}

func (d *Dispatcher) get(rt *schema.ResourceType, h provider.ResourceHandler, req *Request) *Response {
	doc, err := h.Get(req.ID)
	if err != nil {
		return errorResponse(err)
	}
	version := resource.Version(doc)
	if err := checkPrecondition(req, version); err != nil {
		return errorResponse(err)
	}
	if req.IfNoneMatch != "" && req.IfNoneMatch == version {
		return &Response{Status: 304, ETag: version}
	}

	// A handler's persisted copy may not carry meta.location (it is a
	// function of the request's baseURL, not stored state); fill it in
	// for this response without touching the version, which is computed
	// with location excluded.
	doc.SetTop("meta", withLocation(doc, location(req.BaseURL, rt, req.ID)))

	opts, err := projectionOptions(req.Query)
	if err != nil {
		return errorResponse(err)
	}
	out, err := resource.Validate(doc, rt, resource.Response, resource.MethodGET, opts)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(200, out.Map(), version, "")
}

func withLocation(doc *resource.Document, loc string) map[string]interface{} {
	meta, _ := doc.GetTop("meta")
	m, _ := meta.(map[string]interface{})
	if m == nil {
		m = map[string]interface{}{}
	}
	m["location"] = loc
	return m
}

func (d *Dispatcher) replace(rt *schema.ResourceType, h provider.ResourceHandler, req *Request) *Response {
	stored, err := h.Get(req.ID)
	if err != nil {
		return errorResponse(err)
	}
	if err := checkPrecondition(req, resource.Version(stored)); err != nil {
		return errorResponse(err)
	}

	raw, err := decodeBody(req.Body)
	if err != nil {
		return errorResponse(err)
	}
	doc := resource.NewDocument(raw)

	validated, err := resource.Validate(doc, rt, resource.Request, resource.MethodPUT, &resource.Options{Stored: stored})
	if err != nil {
		return errorResponse(err)
	}

	if d.Validator != nil {
		if err := d.Validator.ValidateReplace(&provider.Context{}, rt.Name, req.ID, validated.Map()); err != nil {
			return errorResponse(err)
		}
	}

	updated, err := h.Replace(req.ID, validated, req.IfMatch)
	if err != nil {
		return errorResponse(err)
	}
	loc := location(req.BaseURL, rt, req.ID)
	resource.StampMeta(updated, rt.Name, loc, metaCreatedTime(stored))

	out, err := resource.Validate(updated, rt, resource.Response, resource.MethodGET, nil)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(200, out.Map(), resource.Version(out), "")
}

func (d *Dispatcher) patchOne(rt *schema.ResourceType, h provider.ResourceHandler, req *Request) *Response {
	cfg := d.Config.Load()
	if cfg != nil && !cfg.Patch.Supported {
		return errorResponse(serr.NewBadRequestError("PATCH is not supported by this service provider"))
	}

	stored, err := h.Get(req.ID)
	if err != nil {
		return errorResponse(err)
	}
	if err := checkPrecondition(req, resource.Version(stored)); err != nil {
		return errorResponse(err)
	}

	pr, err := patch.ParseRequest(req.Body)
	if err != nil {
		return errorResponse(err)
	}
	patched, err := patch.Apply(stored, pr, rt)
	if err != nil {
		return errorResponse(err)
	}

	updated, err := h.Replace(req.ID, patched, req.IfMatch)
	if err != nil {
		return errorResponse(err)
	}
	loc := location(req.BaseURL, rt, req.ID)
	resource.StampMeta(updated, rt.Name, loc, metaCreatedTime(stored))

	out, err := resource.Validate(updated, rt, resource.Response, resource.MethodGET, nil)
	if err != nil {
		return errorResponse(err)
	}
	return jsonResponse(200, out.Map(), resource.Version(out), "")
}

func (d *Dispatcher) delete(rt *schema.ResourceType, h provider.ResourceHandler, req *Request) *Response {
	stored, err := h.Get(req.ID)
	if err != nil {
		return errorResponse(err)
	}
	if err := checkPrecondition(req, resource.Version(stored)); err != nil {
		return errorResponse(err)
	}
	if err := h.Delete(req.ID, req.IfMatch); err != nil {
		return errorResponse(err)
	}
	return &Response{Status: 204}
}

func (d *Dispatcher) search(rt *schema.ResourceType, h provider.ResourceHandler, req *Request) *Response {
	sreq, err := buildSearchRequest(req)
	if err != nil {
		return errorResponse(err)
	}

	cfg := d.Config.Load()
	if cfg != nil && cfg.Filter.MaxResults > 0 && sreq.Count > cfg.Filter.MaxResults {
		log.Debugf("clamping requested count %d to the maximum of %d results per page", sreq.Count, cfg.Filter.MaxResults)
		sreq.Count = cfg.Filter.MaxResults
	}

	res, err := h.Search(sreq)
	if err != nil {
		return errorResponse(err)
	}

	// Handlers may not implement sortBy themselves. A page the handler
	// already sorted is indistinguishable from one it didn't, so the
	// fallback only kicks in below filter.maxResults - past that point
	// sorting a single returned page could never produce the right
	// overall order anyway, and a thin handler is expected to either sort
	// or keep its result sets under the limit.
	if cfg != nil && sreq.SortBy != "" && (cfg.Filter.MaxResults <= 0 || res.TotalResults <= cfg.Filter.MaxResults) {
		resource.SortDocuments(res.Resources, sreq.SortBy, sreq.SortOrder)
	}

	opts, err := projectionOptionsFromSearch(sreq)
	if err != nil {
		return errorResponse(err)
	}

	resources := make([]interface{}, 0, len(res.Resources))
	for _, doc := range res.Resources {
		id, _ := doc.GetTop("id")
		doc.SetTop("meta", withLocation(doc, location(req.BaseURL, rt, fmt.Sprint(id))))
		out, err := resource.Validate(doc, rt, resource.Response, resource.MethodGET, opts)
		if err != nil {
			return errorResponse(err)
		}
		resources = append(resources, out.Map())
	}

	body := map[string]interface{}{
		"schemas":     []string{"urn:ietf:params:scim:api:messages:2.0:ListResponse"},
		"totalResults": res.TotalResults,
		"startIndex":  sreq.StartIndex,
		"itemsPerPage": len(resources),
		"Resources":   resources,
	}
	return jsonResponse(200, body, "", "")
}

func buildSearchRequest(req *Request) (*provider.SearchRequest, error) {
	if req.Search {
		var body provider.SearchRequest
		if len(req.Body) > 0 {
			if err := json.Unmarshal(req.Body, &body); err != nil {
				return nil, serr.NewInvalidSyntaxError("malformed search request body: " + err.Error())
			}
		}
		if err := setSearchDefaults(&body); err != nil {
			return nil, err
		}
		return &body, nil
	}

	q := req.Query
	sreq := &provider.SearchRequest{
		Filter:    q.Get("filter"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	if a := q.Get("attributes"); a != "" {
		sreq.Attributes = strings.Split(a, ",")
	}
	if a := q.Get("excludedAttributes"); a != "" {
		sreq.ExcludedAttributes = strings.Split(a, ",")
	}
	if si := q.Get("startIndex"); si != "" {
		n, err := strconv.Atoi(si)
		if err != nil {
			return nil, serr.NewInvalidValueError("startIndex must be an integer")
		}
		sreq.StartIndex = n
	}
	if c := q.Get("count"); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil {
			return nil, serr.NewInvalidValueError("count must be an integer")
		}
		sreq.Count = n
	}
	if err := setSearchDefaults(sreq); err != nil {
		return nil, err
	}
	return sreq, nil
}

func setSearchDefaults(sreq *provider.SearchRequest) error {
	if sreq.StartIndex < 1 {
		sreq.StartIndex = 1
	}
	if sreq.Count <= 0 {
		sreq.Count = 100
	}
	if sreq.Filter != "" {
		// Parse once here purely to reject a malformed filter with
		// invalidFilter before it reaches a ResourceHandler; handlers
		// re-parse (or push the filter down to storage) themselves.
		if _, err := filter.ParseFilter(sreq.Filter); err != nil {
			log.Debugf("rejecting malformed filter %q: %v", sreq.Filter, err)
			return err
		}
	}
	return nil
}

func projectionOptions(q url.Values) (*resource.Options, error) {
	attrs := q.Get("attributes")
	excl := q.Get("excludedAttributes")
	if attrs != "" && excl != "" {
		return nil, serr.NewInvalidSyntaxError("attributes and excludedAttributes are mutually exclusive")
	}
	opts := &resource.Options{}
	if attrs != "" {
		opts.Attributes = splitLower(attrs)
	}
	if excl != "" {
		opts.ExcludedAttributes = splitLower(excl)
	}
	return opts, nil
}

func projectionOptionsFromSearch(sreq *provider.SearchRequest) (*resource.Options, error) {
	if len(sreq.Attributes) > 0 && len(sreq.ExcludedAttributes) > 0 {
		return nil, serr.NewInvalidSyntaxError("attributes and excludedAttributes are mutually exclusive")
	}
	return &resource.Options{Attributes: lowerAll(sreq.Attributes), ExcludedAttributes: lowerAll(sreq.ExcludedAttributes)}, nil
}

func splitLower(s string) []string { return lowerAll(strings.Split(s, ",")) }

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

func decodeBody(body []byte) (map[string]interface{}, error) {
	if len(body) == 0 {
		return nil, serr.NewInvalidSyntaxError("request body is required")
	}
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, serr.NewInvalidSyntaxError("malformed JSON body: " + err.Error())
	}
	return m, nil
}

func checkPrecondition(req *Request, currentVersion string) error {
	if req.IfMatch == "" {
		return nil
	}
	if req.IfMatch != currentVersion {
		return serr.NewPreCondFailedError("If-Match does not match the resource's current version")
	}
	return nil
}

func location(baseURL string, rt *schema.ResourceType, id string) string {
	if baseURL == "" {
		return rt.Endpoint + "/" + id
	}
	return strings.TrimRight(baseURL, "/") + rt.Endpoint + "/" + id
}

func metaCreatedTime(stored *resource.Document) time.Time {
	if stored == nil {
		return time.Now()
	}
	v, ok := stored.GetPath("meta.created")
	if !ok {
		return time.Now()
	}
	s, _ := v.(string)
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Now()
	}
	return t
}

func jsonResponse(status int, body interface{}, etag, location string) *Response {
	data, err := json.Marshal(body)
	if err != nil {
		return errorResponse(serr.NewInternalServerError(err.Error()))
	}
	return &Response{Status: status, Body: data, ETag: etag, Location: location}
}

func errorResponse(err error) *Response {
	se := serr.AsScimError(err)
	data, _ := json.Marshal(se)
	return &Response{Status: se.Code(), Body: data}
}
