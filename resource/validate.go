package resource

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/sparrowscim/core/schema"
	"github.com/sparrowscim/core/serr"
)

// Direction distinguishes validating a client-supplied document from
// validating what a handler is about to return (spec.md section 4.2).
type Direction int

const (
	Request Direction = iota
	Response
)

// Method is the HTTP method in effect while validating, which decides
// how the immutable mutability rule behaves.
type Method string

const (
	MethodPOST  Method = "POST"
	MethodPUT   Method = "PUT"
	MethodPATCH Method = "PATCH"
	MethodGET   Method = "GET"
)

// Options carries the extra context Validate needs beyond the document
// and schema: the previously stored version of the resource (for
// immutable comparisons), and the attribute-projection parameters.
type Options struct {
	// Stored is the resource's current persisted state, required on
	// PUT/PATCH so immutable attributes can be compared; nil on POST.
	Stored *Document
	// Attributes/ExcludedAttributes are dotted, lowercase attribute
	// paths from the query string or search request body. At most one
	// may be non-empty; the dispatcher enforces that before calling
	// Validate.
	Attributes         []string
	ExcludedAttributes []string
	// RequestedKeys holds the dotted, lowercase paths the client named
	// in its own request body, consulted for returned=request
	// attributes that were not explicitly asked for via Attributes.
	RequestedKeys map[string]bool
}

// ValidationContext collects every validation failure found while
// walking a document, per spec.md section 7's propagation policy: all
// failures are gathered, and the dispatcher reports the first one.
type ValidationContext struct {
	Errors []*serr.ScimError
}

func (vc *ValidationContext) add(e *serr.ScimError) {
	vc.Errors = append(vc.Errors, e)
}

// FirstError returns the first collected error, or nil.
func (vc *ValidationContext) FirstError() error {
	if len(vc.Errors) == 0 {
		return nil
	}
	return vc.Errors[0]
}

// Validate walks doc against rt's schemas in the given direction,
// producing a new Document with type coercion, cardinality, canonical
// value, mutability (request) or returned (response) policy applied, per
// spec.md section 4.2. It returns the first validation error found, if
// any.
func Validate(doc *Document, rt *schema.ResourceType, dir Direction, method Method, opts *Options) (*Document, error) {
	if opts == nil {
		opts = &Options{}
	}
	vc := &ValidationContext{}
	out := NewDocument(map[string]interface{}{})

	mainSchema := rt.MainSchema()
	if mainSchema == nil {
		return nil, serr.NewInternalServerError("resource type " + rt.Name + " has no main schema")
	}

	if dir == Request {
		checkSchemasArray(doc, rt, vc)
		checkUnknownTopLevelKeys(doc, rt, vc)
	}

	var storedTop map[string]interface{}
	if opts.Stored != nil {
		storedTop = opts.Stored.Map()
	}

	for _, at := range mainSchema.Attributes {
		visitAttr(at, doc.Map(), out.Map(), storedTop, at.NormName, "", dir, method, opts, out, vc)
	}

	for _, ext := range rt.SchemaExtensions {
		sc := rt.Extension(ext.Schema)
		if sc == nil {
			continue
		}

		rawExtVal, present := doc.GetTop(ext.Schema)
		rawExtMap, _ := rawExtVal.(map[string]interface{})

		if dir == Request && ext.Required {
			if !present {
				vc.add(serr.NewInvalidSyntaxError("required extension " + ext.Schema + " is missing"))
				continue
			}
			if len(rawExtMap) == 0 {
				vc.add(serr.NewInvalidSyntaxError("required extension " + ext.Schema + " is present but empty"))
				continue
			}
		}

		if rawExtMap == nil {
			rawExtMap = map[string]interface{}{}
		}

		var storedExt map[string]interface{}
		if opts.Stored != nil {
			if sv, ok := opts.Stored.GetTop(ext.Schema); ok {
				storedExt, _ = sv.(map[string]interface{})
			}
		}

		outExt := map[string]interface{}{}
		for _, at := range sc.Attributes {
			visitAttr(at, rawExtMap, outExt, storedExt, at.NormName, ext.Schema, dir, method, opts, out, vc)
		}
		if len(outExt) > 0 {
			out.SetTop(ext.Schema, outExt)
		}
	}

	if err := vc.FirstError(); err != nil {
		return nil, err
	}

	// "schemas" is server-authoritative (RFC 7643 section 3.1): it is
	// never accepted from the client (visitAttr's generic readOnly
	// handling drops it from a request), and whatever ended up in out
	// is overwritten in either direction. Recompute it here from
	// what actually ended up in the document rather than copying the
	// client's array, which checkSchemasArray only validated, never used.
	out.SetTop("schemas", canonicalSchemasArray(rt, out))

	return out, nil
}

func canonicalSchemasArray(rt *schema.ResourceType, out *Document) []interface{} {
	arr := []interface{}{rt.Schema}
	for _, ext := range rt.SchemaExtensions {
		if _, ok := out.GetTop(ext.Schema); ok {
			arr = append(arr, ext.Schema)
		}
	}
	return arr
}

// checkSchemasArray validates the top-level "schemas" array: it must be
// present and list the main schema URN.
func checkSchemasArray(doc *Document, rt *schema.ResourceType, vc *ValidationContext) {
	raw, ok := doc.GetTop("schemas")
	if !ok {
		vc.add(serr.NewInvalidSyntaxError("the \"schemas\" attribute is required"))
		return
	}
	arr, ok := raw.([]interface{})
	if !ok {
		vc.add(serr.NewInvalidSyntaxError("the \"schemas\" attribute must be an array of URNs"))
		return
	}
	hasMain := false
	for _, v := range arr {
		s, _ := v.(string)
		if s == rt.Schema {
			hasMain = true
		}
	}
	if !hasMain {
		vc.add(serr.NewInvalidSyntaxError("the \"schemas\" attribute must list " + rt.Schema))
	}
}

// checkUnknownTopLevelKeys implements spec.md section 4.2 rule 7's
// top-level half: a top-level key that is neither "schemas", a known
// main-schema attribute, nor a declared extension URN is a hard
// invalidSyntax failure.
func checkUnknownTopLevelKeys(doc *Document, rt *schema.ResourceType, vc *ValidationContext) {
	main := rt.MainSchema()
	for key := range doc.Map() {
		if strings.EqualFold(key, "schemas") {
			continue
		}
		if main.GetAtType(key) != nil {
			continue
		}
		known := false
		for _, ext := range rt.SchemaExtensions {
			if key == ext.Schema {
				known = true
				break
			}
		}
		if !known {
			vc.add(serr.NewInvalidSyntaxError(fmt.Sprintf("unknown attribute or schema URN %q", key)))
		}
	}
}

// checkUnknownSubKeys implements spec.md section 4.2 rule 7's nested
// half: an unrecognized key inside a complex attribute's object fails
// with invalidPath rather than invalidSyntax.
func checkUnknownSubKeys(at *schema.AttrType, m map[string]interface{}, vc *ValidationContext) {
	for key := range m {
		if at.SubAttr(key) == nil {
			vc.add(serr.NewInvalidPathError(fmt.Sprintf("unknown sub-attribute %q of %q", key, at.QualifiedName())))
		}
	}
}

func findKeyVal(m map[string]interface{}, name string) (interface{}, bool) {
	if m == nil {
		return nil, false
	}
	key, ok := findKey(m, name)
	if !ok {
		return nil, false
	}
	return m[key], true
}

func mapErr(err error, dir Direction) *serr.ScimError {
	se := serr.AsScimError(err)
	if dir == Response {
		return serr.NewInternalServerError(se.Error())
	}
	return se
}

func pathKey(schemaURN, relPath string) string {
	if schemaURN == "" {
		return relPath
	}
	return strings.ToLower(schemaURN) + ":" + relPath
}

// visitAttr is the per-attribute walk spec.md section 4.2 describes:
// type coercion and cardinality (rule 1-2), canonical values (rule 3),
// required (rule 4), mutability (rule 5, request) or returned (rule 6,
// response), recursing into complex/multiValued structure as needed.
func visitAttr(at *schema.AttrType, rawContainer, outContainer, storedContainer map[string]interface{},
	relPath, schemaURN string, dir Direction, method Method, opts *Options, outDoc *Document, vc *ValidationContext) {

	rawVal, present := findKeyVal(rawContainer, at.Name)

	if dir == Request {
		if at.IsReadOnly() {
			return // silently dropped, never required from the client
		}
		if at.IsImmutable() && present && (method == MethodPUT || method == MethodPATCH) {
			cv, err := processValue(at, rawVal, storedContainer, relPath, schemaURN, dir, method, opts, outDoc, vc)
			if err != nil {
				vc.add(mapErr(err, dir))
				return
			}
			if storedVal, ok := findKeyVal(storedContainer, at.Name); ok && !reflect.DeepEqual(cv, storedVal) {
				vc.add(serr.NewMutabilityError(fmt.Sprintf("attribute %q is immutable and cannot be changed", at.QualifiedName())))
				return
			}
			writeAccepted(at, cv, outContainer, relPath, schemaURN, outDoc)
			checkRequired(at, dir, true, relPath, vc)
			return
		}

		if !present {
			checkRequired(at, dir, false, relPath, vc)
			return
		}

		cv, err := processValue(at, rawVal, storedContainer, relPath, schemaURN, dir, method, opts, outDoc, vc)
		if err != nil {
			vc.add(mapErr(err, dir))
			return
		}
		writeAccepted(at, cv, outContainer, relPath, schemaURN, outDoc)
		checkRequired(at, dir, true, relPath, vc)
		return
	}

	// Response direction: apply the "returned" policy.
	if !shouldReturn(at, relPath, schemaURN, opts) {
		checkRequired(at, dir, false, relPath, vc)
		return
	}
	if !present {
		checkRequired(at, dir, false, relPath, vc)
		return
	}
	cv, err := processValue(at, rawVal, storedContainer, relPath, schemaURN, dir, method, opts, outDoc, vc)
	if err != nil {
		vc.add(mapErr(err, dir))
		return
	}
	writeAccepted(at, cv, outContainer, relPath, schemaURN, outDoc)
	checkRequired(at, dir, true, relPath, vc)
}

func checkRequired(at *schema.AttrType, dir Direction, have bool, relPath string, vc *ValidationContext) {
	if !at.Required || have {
		return
	}
	if dir == Request {
		vc.add(serr.NewInvalidValueError(fmt.Sprintf("attribute %q is required", at.QualifiedName())))
		return
	}
	vc.add(serr.NewInternalServerError(fmt.Sprintf("required attribute %q missing from response at %q", at.QualifiedName(), relPath)))
}

func writeAccepted(at *schema.AttrType, cv interface{}, outContainer map[string]interface{}, relPath, schemaURN string, outDoc *Document) {
	outContainer[at.Name] = cv
	outDoc.recordAttr(pathKey(schemaURN, relPath), at)
}

// shouldReturn implements spec.md section 4.2 rule 6.
func shouldReturn(at *schema.AttrType, relPath, schemaURN string, opts *Options) bool {
	switch at.Returned {
	case schema.RetNever:
		return false
	case schema.RetAlways:
		return true
	case schema.RetRequest:
		if inList(opts.Attributes, relPath, schemaURN) {
			return true
		}
		return opts.RequestedKeys[pathKey(schemaURN, relPath)]
	default: // default
		if len(opts.ExcludedAttributes) > 0 {
			return !inList(opts.ExcludedAttributes, relPath, schemaURN)
		}
		if len(opts.Attributes) > 0 {
			return inList(opts.Attributes, relPath, schemaURN)
		}
		return true
	}
}

func inList(list []string, relPath, schemaURN string) bool {
	want := pathKey(schemaURN, relPath)
	for _, l := range list {
		if strings.ToLower(strings.TrimSpace(l)) == want {
			return true
		}
	}
	return false
}

// processValue performs type coercion, cardinality normalization, and
// canonical value checking, recursing into complex attributes. It does
// not apply mutability/returned policy - callers do that before/after.
func processValue(at *schema.AttrType, rawVal interface{}, storedContainer map[string]interface{}, relPath, schemaURN string, dir Direction, method Method, opts *Options, outDoc *Document, vc *ValidationContext) (interface{}, error) {
	if at.IsComplex() {
		return processComplex(at, rawVal, storedContainer, relPath, schemaURN, dir, method, opts, outDoc, vc)
	}

	if at.MultiValued {
		raws := AsSlice(rawVal)
		outs := make([]interface{}, 0, len(raws))
		for _, rv := range raws {
			cv, err := coerceScalar(at, rv)
			if err != nil {
				return nil, err
			}
			if err := canonicalCheck(at, cv); err != nil {
				return nil, err
			}
			outs = append(outs, cv)
		}
		return outs, nil
	}

	if _, isArr := rawVal.([]interface{}); isArr {
		return nil, serr.NewInvalidValueError(fmt.Sprintf("attribute %q is not multiValued and cannot be an array", at.QualifiedName()))
	}
	cv, err := coerceScalar(at, rawVal)
	if err != nil {
		return nil, err
	}
	if err := canonicalCheck(at, cv); err != nil {
		return nil, err
	}
	return cv, nil
}

func canonicalCheck(at *schema.AttrType, v interface{}) error {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return checkCanonicalValues(at, s)
}

func processComplex(at *schema.AttrType, rawVal interface{}, storedContainer map[string]interface{}, relPath, schemaURN string, dir Direction, method Method, opts *Options, outDoc *Document, vc *ValidationContext) (interface{}, error) {
	if at.MultiValued {
		// Immutable sub-attributes inside a multi-valued complex
		// attribute are not matched element-by-element against the
		// stored version: there is no correlation key to line up
		// "which element is which" across requests, so they are
		// accepted on write like any readWrite sub-attribute. Only
		// top-level and single-valued-complex attributes enforce
		// immutability.
		raws := AsSlice(rawVal)
		outs := make([]interface{}, 0, len(raws))
		for _, rv := range raws {
			m, ok := rv.(map[string]interface{})
			if !ok {
				return nil, serr.NewInvalidValueError(fmt.Sprintf("attribute %q elements must be JSON objects", at.QualifiedName()))
			}
			outm := map[string]interface{}{}
			for _, sub := range at.SubAttributes {
				visitAttr(sub, m, outm, nil, relPath+"."+sub.NormName, schemaURN, dir, method, opts, outDoc, vc)
			}
			if dir == Request {
				checkUnknownSubKeys(at, m, vc)
			}
			if len(outm) > 0 {
				outs = append(outs, outm)
			}
		}
		return outs, nil
	}

	m, ok := rawVal.(map[string]interface{})
	if !ok {
		return nil, serr.NewInvalidValueError(fmt.Sprintf("attribute %q must be a JSON object", at.QualifiedName()))
	}

	var storedSub map[string]interface{}
	if sv, ok := findKeyVal(storedContainer, at.Name); ok {
		storedSub, _ = sv.(map[string]interface{})
	}

	outm := map[string]interface{}{}
	for _, sub := range at.SubAttributes {
		visitAttr(sub, m, outm, storedSub, relPath+"."+sub.NormName, schemaURN, dir, method, opts, outDoc, vc)
	}
	if dir == Request {
		checkUnknownSubKeys(at, m, vc)
	}
	return outm, nil
}
