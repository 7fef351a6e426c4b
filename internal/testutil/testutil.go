// Package testutil provides common HTTP helpers for SkinPipe handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// Envelope mirrors models.APIResponse with the result left raw.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// DecodeResult unmarshals the result payload into target and fails the test on error.
func (e Envelope) DecodeResult(t *testing.T, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(e.Result, target); err != nil {
		t.Fatalf("failed to decode result %s: %v", e.Result, err)
	}
}

// NewJSONRequest builds a request for handler tests. A []byte body is sent
// as is; any other non-nil body is marshalled to JSON.
func NewJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	return httptest.NewRequest(method, url, reader)
}

// Serve runs the request through handler and decodes any JSON envelope.
func Serve(t *testing.T, handler http.Handler, req *http.Request) (int, Envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var env Envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: bad JSON %q: %v", req.Method, req.URL.Path, rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}
