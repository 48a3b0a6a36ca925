// Package e2e exercises the full stack - schema, resource, filter,
// patch, dispatch, bulk, memstore, httpx - against the six scenarios
// spec.md section 8 names, through httptest requests
// against a real httpx.Server backed by a real memstore.Store. Grounded
// on the teacher's ginkgo suites (net/repl_test.go, repl/repl_silo_test.go),
// which run full read/write round-trips against a real bbolt file rather
// than mocking storage.
package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sparrowscim/core/bulk"
	"github.com/sparrowscim/core/dispatch"
	"github.com/sparrowscim/core/httpx"
	"github.com/sparrowscim/core/memstore"
	"github.com/sparrowscim/core/provider"
	"github.com/sparrowscim/core/schema"
)

func TestE2E(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "SCIM end-to-end scenario suite")
}

const userSchemaURN = "urn:ietf:params:scim:schemas:core:2.0:User"
const groupSchemaURN = "urn:ietf:params:scim:schemas:core:2.0:Group"

type fixture struct {
	server  *httpx.Server
	dbPath  string
	userSt  *memstore.Store
	groupSt *memstore.Store
}

func newFixture() *fixture {
	reg, err := schema.NewRegistry()
	Expect(err).ToNot(HaveOccurred())

	userRT, err := reg.RegisterResourceType([]byte(`{"name":"User","endpoint":"/Users","schema":"` + userSchemaURN + `"}`))
	Expect(err).ToNot(HaveOccurred())
	groupRT, err := reg.RegisterResourceType([]byte(`{"name":"Group","endpoint":"/Groups","schema":"` + groupSchemaURN + `"}`))
	Expect(err).ToNot(HaveOccurred())

	f := &fixture{dbPath: tempDBPath()}
	userSt, err := memstore.Open(f.dbPath, userRT)
	Expect(err).ToNot(HaveOccurred())
	groupSt, err := memstore.OpenWithDB(userSt.DB(), groupRT)
	Expect(err).ToNot(HaveOccurred())
	f.userSt, f.groupSt = userSt, groupSt

	cfg := provider.NewConfigAccessor(provider.DefaultConfig())
	d := dispatch.NewDispatcher(reg, cfg)
	d.RegisterHandler(userRT.Name, userSt)
	d.RegisterHandler(groupRT.Name, groupSt)

	f.server = httpx.NewServer(d, reg, cfg)
	return f
}

func (f *fixture) close() {
	f.userSt.Close()
	os.Remove(f.dbPath)
}

func (f *fixture) do(method, path, body string) (int, map[string]interface{}, http.Header) {
	var bodyReader *strings.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	} else {
		bodyReader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, bodyReader)
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		Expect(json.Unmarshal(rec.Body.Bytes(), &decoded)).To(Succeed())
	}
	return rec.Code, decoded, rec.Header()
}

var counter int

func tempDBPath() string {
	counter++
	dir, err := os.MkdirTemp("", "scim-e2e")
	Expect(err).ToNot(HaveOccurred())
	return dir + "/scim.db"
}

var _ = Describe("create User", func() {
	It("returns 201 with an assigned id, meta.created and meta.location", func() {
		f := newFixture()
		defer f.close()

		status, body, headers := f.do("POST", "/Users", `{"userName":"bob","schemas":["`+userSchemaURN+`"]}`)
		Expect(status).To(Equal(201))
		Expect(body["id"]).ToNot(BeEmpty())

		meta, _ := body["meta"].(map[string]interface{})
		Expect(meta).ToNot(BeNil())
		Expect(meta["created"]).ToNot(BeEmpty())
		Expect(meta["location"]).To(Equal("http://example.com/Users/" + body["id"].(string)))
		Expect(headers.Get("Location")).To(Equal(meta["location"]))
	})
})

var _ = Describe("PATCH replace on a filtered multi-valued attribute", func() {
	It("updates only the targeted element", func() {
		f := newFixture()
		defer f.close()

		_, created, _ := f.do("POST", "/Users", `{"userName":"bob","schemas":["`+userSchemaURN+`"],
			"emails":[{"value":"old@x","type":"work"},{"value":"home@x","type":"home"}]}`)
		id := created["id"].(string)

		status, body, _ := f.do("PATCH", "/Users/"+id, `{"schemas":["urn:ietf:params:scim:api:messages:2.0:PatchOp"],
			"Operations":[{"op":"replace","path":"emails[type eq \"work\"].value","value":"b@x"}]}`)
		Expect(status).To(Equal(200))

		emails, _ := body["emails"].([]interface{})
		Expect(emails).To(HaveLen(2))
		for _, e := range emails {
			m := e.(map[string]interface{})
			if m["type"] == "work" {
				Expect(m["value"]).To(Equal("b@x"))
			} else {
				Expect(m["value"]).To(Equal("home@x"))
			}
		}
	})
})

var _ = Describe("PATCH remove with no matching element", func() {
	It("returns 400 noTarget", func() {
		f := newFixture()
		defer f.close()

		_, created, _ := f.do("POST", "/Users", `{"userName":"bob","schemas":["`+userSchemaURN+`"],
			"emails":[{"value":"old@x","type":"work"}]}`)
		id := created["id"].(string)

		status, body, _ := f.do("PATCH", "/Users/"+id, `{"schemas":["urn:ietf:params:scim:api:messages:2.0:PatchOp"],
			"Operations":[{"op":"remove","path":"emails[type eq \"home\"]"}]}`)
		Expect(status).To(Equal(400))
		Expect(body["scimType"]).To(Equal("noTarget"))
	})
})

var _ = Describe("compound filter matching", func() {
	It("matches a user satisfying the compound expression and excludes one that doesn't", func() {
		f := newFixture()
		defer f.close()

		f.do("POST", "/Users", `{"userName":"bob","schemas":["`+userSchemaURN+`"],"active":true,
			"emails":[{"value":"b@x","type":"work"}]}`)
		f.do("POST", "/Users", `{"userName":"alice","schemas":["`+userSchemaURN+`"],"active":false,
			"emails":[{"value":"a@x","type":"home"}]}`)

		status, body, _ := f.do("GET", `/Users?filter=`+
			`userName+sw+%22bo%22+and+%28emails.type+eq+%22work%22+or+active+eq+true%29`, "")
		Expect(status).To(Equal(200))
		resources, _ := body["Resources"].([]interface{})
		Expect(resources).To(HaveLen(1))
		u := resources[0].(map[string]interface{})
		Expect(u["userName"]).To(Equal("bob"))
	})
})

var _ = Describe("bulk create with a forward bulkId reference", func() {
	It("resolves the referenced user's id into the group's members", func() {
		f := newFixture()
		defer f.close()

		req := `{"schemas":["urn:ietf:params:scim:api:messages:2.0:BulkRequest"],
			"Operations":[
				{"method":"POST","bulkId":"grp","path":"/Groups","data":{"schemas":["` + groupSchemaURN + `"],
					"displayName":"Engineers","members":[{"value":"bulkId:qwerty"}]}},
				{"method":"POST","bulkId":"qwerty","path":"/Users","data":{"schemas":["` + userSchemaURN + `"],"userName":"bob"}}
			]}`
		status, body, _ := f.do("POST", "/Bulk", req)
		Expect(status).To(Equal(200))

		ops, _ := body["Operations"].([]interface{})
		Expect(ops).To(HaveLen(2))

		var userLoc, groupResp map[string]interface{}
		for _, o := range ops {
			op := o.(map[string]interface{})
			Expect(op["status"]).To(Equal("201"), "operation %v failed", op)
			if op["bulkId"] == "qwerty" {
				userLoc = op
			}
			if op["bulkId"] == "grp" {
				groupResp = op
			}
		}
		Expect(userLoc).ToNot(BeNil())
		Expect(groupResp).ToNot(BeNil())

		userID := idFromLocation(userLoc["location"].(string))
		getStatus, getBody, _ := f.do("GET", "/Groups/"+idFromLocation(groupResp["location"].(string)), "")
		Expect(getStatus).To(Equal(200))
		members, _ := getBody["members"].([]interface{})
		Expect(members).To(HaveLen(1))
		Expect(members[0].(map[string]interface{})["value"]).To(Equal(userID))
	})
})

var _ = Describe("GET with a stale If-Match", func() {
	It("returns 412 preconditionFailed", func() {
		f := newFixture()
		defer f.close()

		_, created, _ := f.do("POST", "/Users", `{"userName":"bob","schemas":["`+userSchemaURN+`"]}`)
		id := created["id"].(string)

		req := httptest.NewRequest("GET", "/Users/"+id, nil)
		req.Header.Set("If-Match", `W/"stale0000000000"`)
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(412))
		var body map[string]interface{}
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body["scimType"]).To(Equal("preconditionFailed"))
	})
})

func idFromLocation(loc string) string {
	idx := strings.LastIndex(loc, "/")
	return loc[idx+1:]
}

var _ = bulk.Split // the client-only splitter (used by httpx.Client) is not exercised by this suite
