package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codr1/grudge/internal/api/authz"
	"github.com/codr1/grudge/internal/config"
)

func useTestConfig(t *testing.T, env string) {
	t.Helper()

	prev := appConfig
	appConfig = &config.Config{}
	appConfig.App.Environment = env
	appConfig.App.SecretKey = "test-secret"
	t.Cleanup(func() { appConfig = prev })
}

func requestWithToken(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: authCookieName, Value: token})
	return req
}

func TestAuthCookieRoundTrip(t *testing.T) {
	useTestConfig(t, "development")

	rec := httptest.NewRecorder()
	if err := SetAuthCookie(rec, &authz.AuthUser{ID: 42, SessionType: authz.SessionTypeLocal}); err != nil {
		t.Fatalf("set auth cookie: %v", err)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != authCookieName {
		t.Fatalf("expected %s cookie, got %+v", authCookieName, cookies)
	}
	c := cookies[0]
	if !c.HttpOnly || c.Secure || c.MaxAge != int(authSessionTTL.Seconds()) {
		t.Fatalf("unexpected cookie attributes %+v", c)
	}

	user, err := UserFromRequest(requestWithToken(c.Value))
	if err != nil {
		t.Fatalf("user from request: %v", err)
	}
	if user == nil || user.ID != 42 || user.SessionType != authz.SessionTypeLocal {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestAuthCookieSecureOutsideDevelopment(t *testing.T) {
	useTestConfig(t, "production")

	rec := httptest.NewRecorder()
	if err := SetAuthCookie(rec, &authz.AuthUser{ID: 1}); err != nil {
		t.Fatalf("set auth cookie: %v", err)
	}
	if !rec.Result().Cookies()[0].Secure {
		t.Fatal("expected secure cookie in production")
	}
}

func TestClearAuthCookieExpiresImmediately(t *testing.T) {
	useTestConfig(t, "development")

	rec := httptest.NewRecorder()
	ClearAuthCookie(rec)
	c := rec.Result().Cookies()[0]
	if c.Value != "" || c.MaxAge >= 0 {
		t.Fatalf("expected an expired empty cookie, got %+v", c)
	}
}

func TestOpenSessionErrors(t *testing.T) {
	useTestConfig(t, "development")

	valid, err := sealSession(authSession{UserID: 7, ExpiresAt: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	forged, err := sealSession(authSession{UserID: 8, ExpiresAt: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	expired, err := sealSession(authSession{UserID: 7, ExpiresAt: time.Now().Add(-time.Minute).Unix()})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	forgedBody, _, _ := strings.Cut(forged, ".")
	_, validSig, _ := strings.Cut(valid, ".")

	cases := map[string]struct {
		token string
		want  error
	}{
		"swapped body": {forgedBody + "." + validSig, errSessionSignature},
		"no separator": {"garbage", errSessionMalformed},
		"expired":      {expired, errSessionExpired},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseAuthCookie(requestWithToken(tc.token)); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseAuthCookieWithoutSecret(t *testing.T) {
	useTestConfig(t, "development")
	appConfig.App.SecretKey = ""

	if _, err := parseAuthCookie(requestWithToken("a.b")); !errors.Is(err, errAuthConfigMissing) {
		t.Fatalf("expected errAuthConfigMissing, got %v", err)
	}
}

func TestParseAuthCookieMissing(t *testing.T) {
	useTestConfig(t, "development")

	session, err := parseAuthCookie(httptest.NewRequest(http.MethodGet, "/", nil))
	if session != nil || err != nil {
		t.Fatalf("expected no session and no error, got %+v %v", session, err)
	}
}

func TestNormalizeSessionType(t *testing.T) {
	for in, want := range map[string]string{
		"unknown":              authz.SessionTypeLocal,
		"":                     authz.SessionTypeLocal,
		authz.SessionTypeClerk: authz.SessionTypeClerk,
	} {
		if got := normalizeSessionType(in); got != want {
			t.Errorf("normalizeSessionType(%q) = %q, want %q", in, got, want)
		}
	}
}
