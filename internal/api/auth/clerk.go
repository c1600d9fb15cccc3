package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/authz"
	"github.com/codr1/grudge/internal/contact"
	"github.com/codr1/grudge/internal/db/dbq"
)

var (
	clerkEnabled bool

	// fetchClerkUser is swapped out in tests.
	fetchClerkUser = user.Get

	// clerkSubjects caches Clerk user id -> local user id.
	clerkSubjects sync.Map
)

// InitClerk sets the Clerk API key. Without a key Clerk sessions are ignored.
func InitClerk(secretKey string) {
	if secretKey == "" {
		log.Warn().Msg("Clerk enabled without a secret key; Clerk sessions will be ignored")
		return
	}
	clerk.SetKey(secretKey)
	clerkEnabled = true
}

// WithClerkSession verifies a Clerk token from the Authorization header or the
// __session cookie and stores its claims on the context. Bad tokens are
// dropped, never rejected.
func WithClerkSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := clerkToken(r)
		if !clerkEnabled || token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := jwt.Verify(r.Context(), &jwt.VerifyParams{Token: token})
		if err != nil {
			log.Ctx(r.Context()).Debug().Err(err).Msg("Dropping unverifiable Clerk token")
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(clerk.ContextWithSessionClaims(r.Context(), claims)))
	})
}

func clerkToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie("__session"); err == nil {
		return cookie.Value
	}
	return ""
}

func userFromClerkClaims(r *http.Request) (*authz.AuthUser, error) {
	claims, ok := clerk.SessionClaimsFromContext(r.Context())
	if !ok || claims == nil {
		return nil, nil
	}

	if id, ok := clerkSubjects.Load(claims.Subject); ok {
		return &authz.AuthUser{ID: id.(int64), SessionType: authz.SessionTypeClerk}, nil
	}

	clerkUser, err := fetchClerkUser(r.Context(), claims.Subject)
	if err != nil {
		return nil, err
	}

	localUser, err := findLocalUserFromClerk(r.Context(), clerkUser)
	if errors.Is(err, sql.ErrNoRows) {
		localUser, err = provisionClerkUser(r.Context(), clerkUser)
	}
	if err != nil {
		return nil, err
	}

	clerkSubjects.Store(claims.Subject, localUser.ID)
	log.Ctx(r.Context()).Debug().
		Str("clerk_user_id", claims.Subject).
		Int64("user_id", localUser.ID).
		Msg("Clerk session mapped to local user")
	return &authz.AuthUser{ID: localUser.ID, SessionType: authz.SessionTypeClerk}, nil
}

type userLookup func(ctx context.Context) (dbq.User, error)

// clerkLookups lists the ways a Clerk user can match a local account, most
// specific first: primary email, primary phone, then every other address.
func clerkLookups(cu *clerk.User) []userLookup {
	byEmail := func(email string) userLookup {
		return func(ctx context.Context) (dbq.User, error) { return queries.GetUserByEmail(ctx, email) }
	}
	byPhone := func(raw string) userLookup {
		phone, err := contact.NormalizePhone(raw, contact.DefaultRegion)
		if err != nil {
			return nil
		}
		return func(ctx context.Context) (dbq.User, error) { return queries.GetUserByPhone(ctx, phone) }
	}

	if cu == nil {
		return nil
	}
	var lookups []userLookup
	if email := primaryClerkEmail(cu); email != "" {
		lookups = append(lookups, byEmail(email))
	}
	if cu.PrimaryPhoneNumberID != nil {
		for _, p := range cu.PhoneNumbers {
			if p.ID == *cu.PrimaryPhoneNumberID {
				lookups = append(lookups, byPhone(p.PhoneNumber))
			}
		}
	}
	for _, e := range cu.EmailAddresses {
		lookups = append(lookups, byEmail(normalizeEmail(e.EmailAddress)))
	}
	for _, p := range cu.PhoneNumbers {
		lookups = append(lookups, byPhone(p.PhoneNumber))
	}
	return lookups
}

// findLocalUserFromClerk returns sql.ErrNoRows when no lookup matches.
func findLocalUserFromClerk(ctx context.Context, cu *clerk.User) (dbq.User, error) {
	if queries == nil {
		return dbq.User{}, errors.New("database not initialized")
	}
	for _, lookup := range clerkLookups(cu) {
		if lookup == nil {
			continue
		}
		u, err := lookup(ctx)
		if !errors.Is(err, sql.ErrNoRows) {
			return u, err
		}
	}
	return dbq.User{}, sql.ErrNoRows
}

// provisionClerkUser creates a passwordless local account for a Clerk user
// with a primary email.
func provisionClerkUser(ctx context.Context, clerkUser *clerk.User) (dbq.User, error) {
	email := primaryClerkEmail(clerkUser)
	if email == "" {
		return dbq.User{}, errors.New("clerk user has no primary email")
	}

	name := strings.TrimSpace(strings.Join([]string{deref(clerkUser.FirstName), deref(clerkUser.LastName)}, " "))
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	return queries.CreateUser(ctx, dbq.CreateUserParams{
		Email:       email,
		DisplayName: name,
	})
}

func primaryClerkEmail(clerkUser *clerk.User) string {
	if clerkUser == nil || clerkUser.PrimaryEmailAddressID == nil {
		return ""
	}
	for _, email := range clerkUser.EmailAddresses {
		if email.ID == *clerkUser.PrimaryEmailAddressID {
			return normalizeEmail(email.EmailAddress)
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
