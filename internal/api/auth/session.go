package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/codr1/grudge/internal/api/authz"
)

const (
	authCookieName = "grudge_auth"
	authSessionTTL = 7 * 24 * time.Hour
)

var (
	errAuthConfigMissing = errors.New("auth configuration missing")
	errSessionMalformed  = errors.New("malformed auth session")
	errSessionSignature  = errors.New("auth session signature mismatch")
	errSessionExpired    = errors.New("auth session expired")
)

// authSession is the signed payload carried in the auth cookie. The cookie
// value is base64(json) "." base64(hmac-sha256).
type authSession struct {
	UserID      int64  `json:"user_id"`
	SessionType string `json:"session_type"`
	ExpiresAt   int64  `json:"exp"`
}

func sessionSecret() ([]byte, error) {
	if appConfig == nil || appConfig.App.SecretKey == "" {
		return nil, errAuthConfigMissing
	}
	return []byte(appConfig.App.SecretKey), nil
}

func sessionMAC(secret []byte, body string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func sealSession(s authSession) (string, error) {
	secret, err := sessionSecret()
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	body := base64.RawURLEncoding.EncodeToString(raw)
	return body + "." + sessionMAC(secret, body), nil
}

func openSession(token string, now time.Time) (*authSession, error) {
	secret, err := sessionSecret()
	if err != nil {
		return nil, err
	}
	body, sig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, errSessionMalformed
	}
	if !hmac.Equal([]byte(sig), []byte(sessionMAC(secret, body))) {
		return nil, errSessionSignature
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, errSessionMalformed
	}
	var s authSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errSessionMalformed
	}
	if s.ExpiresAt <= now.Unix() {
		return nil, errSessionExpired
	}
	s.SessionType = normalizeSessionType(s.SessionType)
	return &s, nil
}

func normalizeSessionType(sessionType string) string {
	if sessionType == authz.SessionTypeClerk {
		return sessionType
	}
	return authz.SessionTypeLocal
}

func authCookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   appConfig == nil || !appConfig.IsDevelopment(),
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
		MaxAge:   maxAge,
	}
}

// SetAuthCookie issues a signed session cookie for user.
func SetAuthCookie(w http.ResponseWriter, user *authz.AuthUser) error {
	if w == nil || user == nil {
		return errors.New("auth session requires response and user")
	}

	expires := time.Now().Add(authSessionTTL)
	token, err := sealSession(authSession{
		UserID:      user.ID,
		SessionType: normalizeSessionType(user.SessionType),
		ExpiresAt:   expires.Unix(),
	})
	if err != nil {
		return err
	}

	http.SetCookie(w, authCookie(token, expires, int(authSessionTTL.Seconds())))
	return nil
}

func ClearAuthCookie(w http.ResponseWriter) {
	if w != nil {
		http.SetCookie(w, authCookie("", time.Unix(0, 0), -1))
	}
}

// UserFromRequest resolves the caller from the signed cookie, falling back to
// a verified Clerk session when one is present.
func UserFromRequest(r *http.Request) (*authz.AuthUser, error) {
	session, err := parseAuthCookie(r)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return &authz.AuthUser{ID: session.UserID, SessionType: session.SessionType}, nil
	}
	return userFromClerkClaims(r)
}

// parseAuthCookie returns nil without error when no cookie is present.
func parseAuthCookie(r *http.Request) (*authSession, error) {
	if r == nil {
		return nil, nil
	}
	cookie, err := r.Cookie(authCookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return openSession(cookie.Value, time.Now())
}
