package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clerk/clerk-sdk-go/v2"

	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/testutil"
)

func setupClerkTest(t *testing.T) {
	t.Helper()

	database := testutil.NewTestDB(t)

	prevQueries := queries
	prevEnabled := clerkEnabled
	prevFetch := fetchClerkUser
	t.Cleanup(func() {
		queries = prevQueries
		clerkEnabled = prevEnabled
		fetchClerkUser = prevFetch
		clerkSubjects.Range(func(key, _ any) bool {
			clerkSubjects.Delete(key)
			return true
		})
	})

	queries = database.Queries

	ctx := context.Background()
	phone := "+16502530000"
	if _, err := queries.CreateUser(ctx, dbq.CreateUserParams{
		Email:       "member@test.com",
		DisplayName: "Test Member",
		Phone:       &phone,
	}); err != nil {
		t.Fatalf("insert member user: %v", err)
	}
	if _, err := queries.CreateUser(ctx, dbq.CreateUserParams{
		Email:       "emailonly@test.com",
		DisplayName: "Email Only",
	}); err != nil {
		t.Fatalf("insert email-only user: %v", err)
	}
}

func TestInitClerkRequiresKey(t *testing.T) {
	prev := clerkEnabled
	t.Cleanup(func() { clerkEnabled = prev })

	clerkEnabled = false
	InitClerk("")
	if clerkEnabled {
		t.Fatal("empty key should leave Clerk disabled")
	}
	InitClerk("sk_test_xxx")
	if !clerkEnabled {
		t.Fatal("expected Clerk enabled with a key")
	}
}

func TestFindLocalUserFromClerk(t *testing.T) {
	setupClerkTest(t)
	primaryEmail, primaryPhone := "email_1", "phone_1"

	cases := []struct {
		name string
		user *clerk.User
		want string
	}{
		{
			name: "primary email ignores case",
			user: &clerk.User{
				PrimaryEmailAddressID: &primaryEmail,
				EmailAddresses:        []*clerk.EmailAddress{{ID: primaryEmail, EmailAddress: "Member@Test.com"}},
			},
			want: "member@test.com",
		},
		{
			name: "primary phone is normalized",
			user: &clerk.User{
				PrimaryPhoneNumberID: &primaryPhone,
				PhoneNumbers:         []*clerk.PhoneNumber{{ID: primaryPhone, PhoneNumber: "(650) 253-0000"}},
			},
			want: "member@test.com",
		},
		{
			name: "falls back to secondary email",
			user: &clerk.User{
				PrimaryEmailAddressID: &primaryEmail,
				EmailAddresses: []*clerk.EmailAddress{
					{ID: primaryEmail, EmailAddress: "nobody@test.com"},
					{ID: "email_2", EmailAddress: "emailonly@test.com"},
				},
			},
			want: "emailonly@test.com",
		},
		{
			name: "unparseable phone is skipped",
			user: &clerk.User{
				PrimaryPhoneNumberID: &primaryPhone,
				PhoneNumbers:         []*clerk.PhoneNumber{{ID: primaryPhone, PhoneNumber: "invalid-phone"}},
				EmailAddresses:       []*clerk.EmailAddress{{ID: "email_2", EmailAddress: "member@test.com"}},
			},
			want: "member@test.com",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := findLocalUserFromClerk(context.Background(), tc.user)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if got.Email != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.Email)
			}
		})
	}

	if _, err := findLocalUserFromClerk(context.Background(), &clerk.User{}); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows for an empty Clerk user, got %v", err)
	}
}

func TestUserFromClerkClaimsProvisionsAndCaches(t *testing.T) {
	setupClerkTest(t)

	calls := 0
	emailID := "email_new"
	first := "New"
	fetchClerkUser = func(ctx context.Context, id string) (*clerk.User, error) {
		calls++
		return &clerk.User{
			ID:                    id,
			FirstName:             &first,
			PrimaryEmailAddressID: &emailID,
			EmailAddresses: []*clerk.EmailAddress{
				{ID: emailID, EmailAddress: "new@test.com"},
			},
		}, nil
	}

	newRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
		claims := &clerk.SessionClaims{}
		claims.Subject = "user_abc"
		return req.WithContext(clerk.ContextWithSessionClaims(req.Context(), claims))
	}

	user, err := userFromClerkClaims(newRequest())
	if err != nil {
		t.Fatalf("user from claims: %v", err)
	}
	created, err := queries.GetUserByEmail(context.Background(), "new@test.com")
	if err != nil {
		t.Fatalf("expected provisioned user: %v", err)
	}
	if user.ID != created.ID || created.DisplayName != "New" || created.PasswordHash != "" {
		t.Fatalf("unexpected provisioned user %+v (auth user %+v)", created, user)
	}

	if _, err := userFromClerkClaims(newRequest()); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected Clerk to be called once, got %d", calls)
	}
}

func TestClerkToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc.def")
	req.AddCookie(&http.Cookie{Name: "__session", Value: "cookie-token"})
	if got := clerkToken(req); got != "abc.def" {
		t.Fatalf("expected bearer token, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "__session", Value: "cookie-token"})
	if got := clerkToken(req); got != "cookie-token" {
		t.Fatalf("expected cookie token, got %q", got)
	}
}
