package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// StampMeta sets the "meta" common attribute (RFC 7643 section 3.1) on
// doc: resourceType is always refreshed, location is refreshed when
// location is non-empty (an empty one keeps any existing value), created is
// preserved across updates (set only the first time), and
// lastModified/version always reflect this call.
func StampMeta(doc *Document, resourceType, location string, created time.Time) {
	now := time.Now().UTC().Format(time.RFC3339)

	meta, _ := doc.GetTop("meta")
	m, _ := meta.(map[string]interface{})
	if m == nil {
		m = map[string]interface{}{}
	}

	m["resourceType"] = resourceType
	if location != "" {
		m["location"] = location
	}
	if _, ok := m["created"]; !ok {
		m["created"] = created.UTC().Format(time.RFC3339)
	}
	m["lastModified"] = now
	delete(m, "version")
	doc.SetTop("meta", m)

	m["version"] = computeVersion(doc)
	doc.SetTop("meta", m)
}

// computeVersion derives a weak ETag (RFC 7644 section 3.14) from the
// resource's content: any byte that changes produces a different
// version, without the handler having to maintain a separate counter.
//
// meta.location is excluded from the hashed representation: it is
// derived from the baseURL of whichever request is serving the
// resource, not from stored state, so two stamps of the same content
// that differ only in location (e.g. a storage-layer stamp made before
// persisting, with no location yet known, versus dispatch's later
// stamp with the request's real location filled in) must still agree
// on version.
func computeVersion(doc *Document) string {
	m := doc.Map()
	if meta, ok := m["meta"].(map[string]interface{}); ok {
		if _, hasLoc := meta["location"]; hasLoc {
			metaCopy := make(map[string]interface{}, len(meta))
			for k, v := range meta {
				metaCopy[k] = v
			}
			delete(metaCopy, "location")
			mCopy := make(map[string]interface{}, len(m))
			for k, v := range m {
				mCopy[k] = v
			}
			mCopy["meta"] = metaCopy
			m = mCopy
		}
	}
	data, _ := json.Marshal(m)
	sum := sha256.Sum256(data)
	return `W/"` + hex.EncodeToString(sum[:])[:16] + `"`
}

// Version returns the resource's current "meta.version", or "" if unset.
func Version(doc *Document) string {
	v, _ := doc.GetPath("meta.version")
	s, _ := v.(string)
	return s
}
