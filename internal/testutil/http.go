package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codr1/grudge/internal/api/authz"
)

// NewRequest builds a request acting as userID. A zero userID is anonymous.
func NewRequest(method, target, body string, userID int64) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req = req.WithContext(authz.ContextWithUser(req.Context(), &authz.AuthUser{
			ID:          userID,
			SessionType: authz.SessionTypeLocal,
		}))
	}
	return req
}

// Serve routes req through a mux holding only pattern, so path values resolve
// the same way they do in the server.
func Serve(t *testing.T, pattern string, handler http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(pattern, handler)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// ExpectStatus fails the test when rec does not carry want.
func ExpectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()

	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}
