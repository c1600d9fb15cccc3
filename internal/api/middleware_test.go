package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/auth"
	"github.com/codr1/grudge/internal/api/authz"
	"github.com/codr1/grudge/internal/config"
	"github.com/codr1/grudge/internal/metrics"
)

func TestWithRequestIDSetsHeaderAndLogger(t *testing.T) {
	var sawLogger bool
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = log.Ctx(r.Context()) != nil
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
	if !sawLogger {
		t.Fatal("expected logger in context")
	}
}

func TestWithRequestIDKeepsValidIncomingID(t *testing.T) {
	const incoming = "0b7c3f5e-9d2a-4c1b-8e6f-123456789abc"
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", incoming)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != incoming {
		t.Fatalf("expected %s, got %s", incoming, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "not a uuid\n")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got == "" || strings.Contains(got, " ") {
		t.Fatalf("expected fresh request id, got %q", got)
	}
}

func TestWithRecovery(t *testing.T) {
	h := WithRecovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestWithMetricsUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/teams/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := metrics.NewRecorder()
	h := ChainMiddleware(mux, WithMetrics(rec), WithLogging, WithRequestID)

	for _, path := range []string{"/api/teams/1", "/api/teams/2"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusTeapot {
			t.Fatalf("expected 418, got %d", w.Code)
		}
	}

	w := httptest.NewRecorder()
	rec.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	want := `grudge_http_requests_total{method="GET",route="GET /api/teams/{id}",status="418"} 2`
	if !strings.Contains(w.Body.String(), want) {
		t.Fatalf("expected %q in metrics output", want)
	}
}

func TestWithAuthAttachesCookieUser(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Environment = "development"
	cfg.App.SecretKey = "middleware-secret"
	auth.InitHandlers(nil, cfg, nil)

	cookieRec := httptest.NewRecorder()
	if err := auth.SetAuthCookie(cookieRec, &authz.AuthUser{ID: 7, SessionType: authz.SessionTypeLocal}); err != nil {
		t.Fatalf("set cookie: %v", err)
	}

	var got *authz.AuthUser
	h := WithAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = authz.UserFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookieRec.Result().Cookies() {
		req.AddCookie(c)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got == nil || got.ID != 7 {
		t.Fatalf("expected user 7, got %+v", got)
	}

	got = nil
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "grudge_auth", Value: "garbage"})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != nil {
		t.Fatalf("expected anonymous request for bad cookie, got %+v", got)
	}
}

func TestWithCORSAllowsConfiguredOrigin(t *testing.T) {
	h := WithCORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodOptions, "/api/teams", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin, got %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials to be allowed")
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/teams", nil)
	req.Header.Set("Origin", "http://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allowed origin, got %q", got)
	}
}
