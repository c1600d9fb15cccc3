package authz

import (
	"context"
	"database/sql"
	"errors"

	"github.com/codr1/grudge/internal/db/dbq"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

const (
	SessionTypeLocal = "local"
	SessionTypeClerk = "clerk"
)

type AuthUser struct {
	ID          int64
	SessionType string
}

// Store is the subset of queries needed to answer role questions.
type Store interface {
	GetTeamMember(ctx context.Context, teamID, userID int64) (dbq.TeamMember, error)
	IsLeagueAdmin(ctx context.Context, leagueID, userID int64) (bool, error)
	IsLeagueMember(ctx context.Context, leagueID, userID int64) (bool, error)
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}

	return user
}

// RequireUser returns the caller or ErrUnauthenticated.
func RequireUser(ctx context.Context) (*AuthUser, error) {
	user := UserFromContext(ctx)
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// RequireTeamMember returns the caller's membership row for teamID.
func RequireTeamMember(ctx context.Context, store Store, teamID int64) (dbq.TeamMember, error) {
	user, err := RequireUser(ctx)
	if err != nil {
		return dbq.TeamMember{}, err
	}

	member, err := store.GetTeamMember(ctx, teamID, user.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return dbq.TeamMember{}, ErrForbidden
		}
		return dbq.TeamMember{}, err
	}
	return member, nil
}

func RequireTeamAdmin(ctx context.Context, store Store, teamID int64) error {
	member, err := RequireTeamMember(ctx, store, teamID)
	if err != nil {
		return err
	}
	if member.Role != dbq.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// IsTeamAdmin reports whether userID administers teamID. Lookup failures
// other than a missing membership are returned.
func IsTeamAdmin(ctx context.Context, store Store, teamID, userID int64) (bool, error) {
	member, err := store.GetTeamMember(ctx, teamID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return member.Role == dbq.RoleAdmin, nil
}

func RequireLeagueAdmin(ctx context.Context, store Store, leagueID int64) error {
	user, err := RequireUser(ctx)
	if err != nil {
		return err
	}

	ok, err := store.IsLeagueAdmin(ctx, leagueID, user.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// RequireLeagueMember allows league admins and members of any team in the league.
func RequireLeagueMember(ctx context.Context, store Store, leagueID int64) error {
	user, err := RequireUser(ctx)
	if err != nil {
		return err
	}

	admin, err := store.IsLeagueAdmin(ctx, leagueID, user.ID)
	if err != nil {
		return err
	}
	if admin {
		return nil
	}

	member, err := store.IsLeagueMember(ctx, leagueID, user.ID)
	if err != nil {
		return err
	}
	if !member {
		return ErrForbidden
	}
	return nil
}
