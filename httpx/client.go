package httpx

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sparrowscim/core/bulk"
)

// ClientConfig is the explicit configuration struct spec.md section 9's
// design note replaces a Lombok-style mutable builder with: every field
// is set directly rather than accumulated through chained setter calls.
type ClientConfig struct {
	RequestTimeout int // seconds, default 10
	SocketTimeout  int // seconds, default 10
	ConnectTimeout int // seconds, default 10

	EnableCookieManagement              bool
	EnableAutomaticBulkRequestSplitting bool

	TLSVersion string // default "TLSv1.2"

	HTTPHeaders map[string][]string

	// ExpectedHTTPResponseHeaders: nil means "use the default 2xx/3xx
	// check", an empty (non-nil) map disables header checking entirely,
	// and a populated map requires every named header to be present with
	// one of its listed values.
	ExpectedHTTPResponseHeaders map[string][]string
}

// DefaultClientConfig returns spec.md section 9's stated defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RequestTimeout: 10,
		SocketTimeout:  10,
		ConnectTimeout: 10,
		TLSVersion:     "TLSv1.2",
	}
}

// Client is a minimal SCIM HTTP client built from a ClientConfig,
// exercising the bulk package's Split helper when
// EnableAutomaticBulkRequestSplitting is set - grounded on the teacher's
// separate scim/client package (a consumer of the server, never linked
// into it).
type Client struct {
	cfg        *ClientConfig
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, cfg *ClientConfig) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	tlsCfg := &tls.Config{MinVersion: tlsVersionOf(cfg.TLSVersion)}
	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeout) * time.Second,
			Transport: &http.Transport{
				TLSClientConfig:     tlsCfg,
				TLSHandshakeTimeout: time.Duration(cfg.ConnectTimeout) * time.Second,
			},
		},
	}
}

func tlsVersionOf(v string) uint16 {
	switch v {
	case "TLSv1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// Do sends one SCIM request and checks the response against
// cfg.ExpectedHTTPResponseHeaders.
func (c *Client) Do(method, path string, body []byte) (*http.Response, []byte, error) {
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", ScimJSONType)
	for k, vs := range c.cfg.HTTPHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	if err := c.checkExpectedHeaders(resp); err != nil {
		return resp, data, err
	}
	return resp, data, nil
}

func (c *Client) checkExpectedHeaders(resp *http.Response) error {
	if c.cfg.ExpectedHTTPResponseHeaders == nil {
		if resp.StatusCode >= 400 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return nil
	}
	for name, want := range c.cfg.ExpectedHTTPResponseHeaders {
		got := resp.Header.Get(name)
		ok := false
		for _, w := range want {
			if got == w {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("response header %q = %q, want one of %v", name, got, want)
		}
	}
	return nil
}

// Bulk sends req as a single Bulk request, or splits it into several
// requests of at most maxOperations each when
// EnableAutomaticBulkRequestSplitting is set (spec.md section 4.6's
// "client-side auto-splitting").
func (c *Client) Bulk(req *bulk.Request, maxOperations int) ([]*bulk.Response, error) {
	batches := [][]*bulk.Op{req.Operations}
	if c.cfg.EnableAutomaticBulkRequestSplitting && maxOperations > 0 {
		batches = bulk.Split(req.Operations, maxOperations)
	}

	var out []*bulk.Response
	for _, ops := range batches {
		batchReq := &bulk.Request{Schemas: req.Schemas, FailOnErrors: req.FailOnErrors, Operations: ops}
		body, err := json.Marshal(batchReq)
		if err != nil {
			return nil, err
		}
		_, data, err := c.Do("POST", "/Bulk", body)
		if err != nil {
			return nil, err
		}
		var resp bulk.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, err
		}
		out = append(out, &resp)
	}
	return out, nil
}
