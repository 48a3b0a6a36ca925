// Package memstore is a bbolt-backed provider.ResourceHandler reference
// implementation: one bucket per resource type, JSON-encoded documents
// keyed by id. It exists so the dispatch and bulk packages have
// something real to run their tests against without an external
// database, grounded on the teacher's bolt-backed silo.Backend
// (scim/silo/silo.go) but rewritten against provider.ResourceHandler
// instead of being wired directly into an HTTP handler.
package memstore

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	logger "github.com/juju/loggo"
	bolt "go.etcd.io/bbolt"

	"github.com/sparrowscim/core/provider"
	"github.com/sparrowscim/core/resource"
	"github.com/sparrowscim/core/schema"
	"github.com/sparrowscim/core/serr"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimcore.memstore")
}

// Store is a provider.ResourceHandler backed by one bbolt bucket per
// resource type. Like the teacher's silo.Backend, the db handle may be
// shared by several Stores (one per ResourceType) opened against the
// same file.
type Store struct {
	db     *bolt.DB
	rt     *schema.ResourceType
	bucket []byte

	mu sync.Mutex
}

// Open creates or opens a Store for rt backed by the bbolt file at path,
// in a bucket named after the resource type. Each call opens the file
// itself; further Stores on the same file (one bucket per resource type)
// are opened with OpenWithDB on the first Store's DB().
func Open(path string, rt *schema.ResourceType) (*Store, error) {
	db, err := bolt.Open(path, 0644, nil)
	if err != nil {
		return nil, err
	}
	return OpenWithDB(db, rt)
}

// OpenWithDB binds a Store to rt using an already-open bbolt handle,
// letting several resource types share one database file and one set of
// bolt transactions.
func OpenWithDB(db *bolt.DB, rt *schema.ResourceType) (*Store, error) {
	bucket := []byte(rt.Name)
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, rt: rt, bucket: bucket}, nil
}

var _ provider.ResourceHandler = (*Store)(nil)

func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying bbolt handle, so a caller can open further
// Stores against the same file with OpenWithDB (one bucket per resource
// type, one shared set of transactions).
func (s *Store) DB() *bolt.DB { return s.db }

func (s *Store) ResourceType() *schema.ResourceType { return s.rt }

func (s *Store) Create(doc *resource.Document) (*resource.Document, error) {
	id := genUUID()
	doc.SetTop("id", id)
	resource.StampMeta(doc, s.rt.Name, "", time.Now())

	if err := s.put(id, doc); err != nil {
		return nil, serr.NewInternalServerError(err.Error())
	}
	return doc, nil
}

func (s *Store) Get(id string) (*resource.Document, error) {
	doc, err := s.get(id)
	if err != nil {
		return nil, serr.NewInternalServerError(err.Error())
	}
	if doc == nil {
		return nil, serr.NewNotFoundError("no resource with id " + id)
	}
	return doc, nil
}

func (s *Store) Replace(id string, doc *resource.Document, matchVersion string) (*resource.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(id)
	if err != nil {
		return nil, serr.NewInternalServerError(err.Error())
	}
	if existing == nil {
		return nil, serr.NewNotFoundError("no resource with id " + id)
	}

	doc.SetTop("id", id)
	resource.StampMeta(doc, s.rt.Name, "", createdTimeOf(existing))
	if err := s.put(id, doc); err != nil {
		return nil, serr.NewInternalServerError(err.Error())
	}
	return doc, nil
}

func (s *Store) Delete(id string, matchVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.get(id)
	if err != nil {
		return serr.NewInternalServerError(err.Error())
	}
	if existing == nil {
		return serr.NewNotFoundError("no resource with id " + id)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(id))
	})
	if err != nil {
		return serr.NewInternalServerError(err.Error())
	}
	return nil
}

// Search loads every document in the bucket and applies req's filter and
// pagination in memory, matching the teacher's approach of not
// maintaining real indices for anything but uniqueness (scim/silo's
// Index type) - a bbolt bucket scan is the reference behavior, real
// deployments are expected to supply their own indexed ResourceHandler.
func (s *Store) Search(req *provider.SearchRequest) (*provider.ListResult, error) {
	var all []*resource.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		return b.ForEach(func(k, v []byte) error {
			m := map[string]interface{}{}
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			all = append(all, resource.NewDocument(m))
			return nil
		})
	})
	if err != nil {
		return nil, serr.NewInternalServerError(err.Error())
	}

	matched, err := filterDocuments(all, req.Filter)
	if err != nil {
		return nil, err
	}
	resource.SortDocuments(matched, req.SortBy, req.SortOrder)

	total := len(matched)
	start := req.StartIndex - 1
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := start + req.Count
	if end > len(matched) {
		end = len(matched)
	}
	return &provider.ListResult{Resources: matched[start:end], TotalResults: total}, nil
}

func (s *Store) put(id string, doc *resource.Document) error {
	data, err := json.Marshal(doc.Map())
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(id), data)
	})
}

func (s *Store) get(id string) (*resource.Document, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(id))
		if v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	m := map[string]interface{}{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return resource.NewDocument(m), nil
}

func createdTimeOf(doc *resource.Document) time.Time {
	v, ok := doc.GetPath("meta.created")
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

func genUUID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
