// Package httpx is the reference net/http transport for dispatch.Dispatcher
// (spec.md section 6): it translates an *http.Request into a
// dispatch.Request, calls Dispatcher.Serve, and writes the resulting
// dispatch.Response back to an http.ResponseWriter. It is the only
// library package in this module that imports net/http (cmd/scimserver,
// the example binary, imports it as well) - the core (schema,
// resource, filter, patch, provider, dispatch, bulk) never does, so a
// deployment is free to front the dispatcher with gRPC, an AWS Lambda
// handler, or anything else, matching spec.md section 1's "pluggable
// transport" framing. Grounded on the teacher's route table in
// net/http.go and the Start/handleSCIMRequest split in
// scim/http/webserver.go.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	logger "github.com/juju/loggo"

	"github.com/sparrowscim/core/bulk"
	"github.com/sparrowscim/core/dispatch"
	"github.com/sparrowscim/core/provider"
	"github.com/sparrowscim/core/schema"
	"github.com/sparrowscim/core/serr"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimcore.httpx")
}

// ScimJSONType is the media type every SCIM response carries, RFC 7644
// section 8.1 - matching the teacher's SCIM_JSON_TYPE constant.
const ScimJSONType = "application/scim+json"

// Server wraps a dispatch.Dispatcher in a mux.Router that implements the
// route table of spec.md section 6: ServiceProviderConfig, ResourceTypes,
// Schemas, Bulk, and one set of routes per registered resource type.
type Server struct {
	Dispatcher *dispatch.Dispatcher
	Registry   *schema.Registry
	Config     *provider.ConfigAccessor

	router *mux.Router
}

// NewServer builds the route table and returns a Server ready to be
// passed to http.ListenAndServe (it implements http.Handler).
func NewServer(d *dispatch.Dispatcher, reg *schema.Registry, cfg *provider.ConfigAccessor) *Server {
	s := &Server{Dispatcher: d, Registry: reg, Config: cfg}
	s.router = mux.NewRouter()
	s.router.StrictSlash(true)

	s.router.HandleFunc("/ServiceProviderConfig", s.serviceProviderConfig).Methods("GET")
	s.router.HandleFunc("/ResourceTypes", s.resourceTypes).Methods("GET")
	s.router.HandleFunc("/ResourceTypes/{name}", s.resourceType).Methods("GET")
	s.router.HandleFunc("/Schemas", s.schemas).Methods("GET")
	s.router.HandleFunc("/Schemas/{id}", s.schema).Methods("GET")
	s.router.HandleFunc("/Bulk", s.bulk).Methods("POST")

	for _, rt := range reg.ResourceTypes() {
		ep := rt.Endpoint
		s.router.HandleFunc(ep, s.collection(rt.Name)).Methods("GET", "POST")
		s.router.HandleFunc(ep+"/.search", s.search(rt.Name)).Methods("POST")
		s.router.HandleFunc(ep+"/{id}", s.item(rt.Name)).Methods("GET", "PUT", "PATCH", "DELETE")
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) collection(rtName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, r, rtName, "")
	}
}

func (s *Server) search(rtName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := s.toRequest(r, rtName, "")
		req.Search = true
		s.write(w, s.Dispatcher.Serve(req))
	}
}

func (s *Server) item(rtName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		s.serve(w, r, rtName, id)
	}
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request, rtName, id string) {
	req := s.toRequest(r, rtName, id)
	s.write(w, s.Dispatcher.Serve(req))
}

func (s *Server) toRequest(r *http.Request, rtName, id string) *dispatch.Request {
	body, _ := io.ReadAll(r.Body)
	return &dispatch.Request{
		Method:       r.Method,
		ResourceType: rtName,
		ID:           id,
		Body:         body,
		Query:        r.URL.Query(),
		IfMatch:      r.Header.Get("If-Match"),
		IfNoneMatch:  r.Header.Get("If-None-Match"),
		BaseURL:      baseURL(r),
	}
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

func (s *Server) write(w http.ResponseWriter, resp *dispatch.Response) {
	w.Header().Set("Content-Type", ScimJSONType)
	if resp.ETag != "" {
		w.Header().Set("ETag", resp.ETag)
	}
	if resp.Location != "" {
		w.Header().Set("Location", resp.Location)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		w.Write(resp.Body)
	}
}

func (s *Server) serviceProviderConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.Config.Load()
	s.writeJSON(w, 200, cfg)
}

func (s *Server) resourceTypes(w http.ResponseWriter, r *http.Request) {
	out := make([]*schema.ResourceType, 0)
	for _, rt := range s.Registry.ResourceTypes() {
		out = append(out, rt)
	}
	s.writeJSON(w, 200, out)
}

func (s *Server) resourceType(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	rt := s.Registry.ResourceType(name)
	if rt == nil {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, 200, rt)
}

func (s *Server) schemas(w http.ResponseWriter, r *http.Request) {
	out := make([]*schema.Schema, 0)
	for _, sc := range s.Registry.Schemas() {
		out = append(out, sc)
	}
	s.writeJSON(w, 200, out)
}

func (s *Server) bulk(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	cfg := s.Config.Load()
	if cfg != nil && !cfg.Bulk.Supported {
		se := serr.NewBadRequestError("bulk is not supported by this service provider")
		s.writeJSON(w, se.Code(), se)
		return
	}

	maxOps, maxPayload := 0, 0
	if cfg != nil {
		maxOps, maxPayload = cfg.Bulk.MaxOperations, cfg.Bulk.MaxPayloadSize
	}

	req, err := bulk.ParseRequest(body, maxPayload)
	if err != nil {
		se := serr.AsScimError(err)
		s.writeJSON(w, se.Code(), se)
		return
	}

	p := &bulk.Processor{Dispatcher: s.Dispatcher, Registry: s.Registry, MaxOperations: maxOps, MaxPayloadSize: maxPayload}
	resp, err := p.Execute(req, baseURL(r))
	if err != nil {
		se := serr.AsScimError(err)
		s.writeJSON(w, se.Code(), se)
		return
	}
	s.writeJSON(w, 200, resp)
}

func (s *Server) schema(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sc := s.Registry.Schema(id)
	if sc == nil {
		http.NotFound(w, r)
		return
	}
	s.writeJSON(w, 200, sc)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", ScimJSONType)
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(500)
		return
	}
	w.WriteHeader(status)
	w.Write(data)
}
