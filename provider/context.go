package provider

// Context carries per-request ambient data the dispatcher threads
// through to a ResourceHandler: who's calling, and what they asked for
// at the transport level before SCIM-level validation ran. Analogous to
// the teacher's AuthContext (scim/provider/provider.go), generalized
// beyond auth since the core itself does not implement authentication
// (spec.md section 1 Non-goals) - callers populate Principal however
// their own auth middleware determines it.
type Context struct {
	Principal string
	RequestID string
}

// RequestValidator lets a deployment plug in checks the core schema
// validator has no way to express - cross-resource uniqueness, quota,
// license limits - before a Create/Replace is handed to a
// ResourceHandler. Returning a non-nil error aborts the request with
// that error's scimType; a nil RequestValidator skips this step
// entirely.
type RequestValidator interface {
	ValidateCreate(ctx *Context, rt string, doc map[string]interface{}) error
	ValidateReplace(ctx *Context, rt string, id string, doc map[string]interface{}) error
}
