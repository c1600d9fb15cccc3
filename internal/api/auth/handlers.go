package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/grudge/internal/api/apiutil"
	"github.com/codr1/grudge/internal/api/authz"
	"github.com/codr1/grudge/internal/config"
	"github.com/codr1/grudge/internal/contact"
	appdb "github.com/codr1/grudge/internal/db"
	"github.com/codr1/grudge/internal/db/dbq"
	"github.com/codr1/grudge/internal/ratelimit"
)

const authQueryTimeout = 5 * time.Second

var (
	queries   *dbq.Queries
	appConfig *config.Config
	limiter   *ratelimit.Limiter
)

type registerRequest struct {
	Email       string  `json:"email" validate:"required,email,max=254"`
	Password    string  `json:"password" validate:"required,min=8,max=72"`
	DisplayName string  `json:"displayName" validate:"required,max=80"`
	Phone       *string `json:"phone"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type profileRequest struct {
	DisplayName string  `json:"displayName" validate:"required,max=80"`
	Phone       *string `json:"phone"`
}

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(database *appdb.DB, cfg *config.Config, l *ratelimit.Limiter) {
	if database != nil {
		queries = database.Queries
	}
	appConfig = cfg
	limiter = l
}

// POST /api/auth/register
func HandleRegister(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req registerRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	email := normalizeEmail(req.Email)
	phone, err := contact.NormalizeOptionalPhone(req.Phone, contact.DefaultRegion)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "phone", Reason: "must be a valid phone number"}, "")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to hash password")
		http.Error(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	if _, err := queries.GetUserByEmail(ctx, email); err == nil {
		http.Error(w, "An account with that email already exists", http.StatusConflict)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		logger.Error().Err(err).Msg("Failed to check existing account")
		http.Error(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	created, err := queries.CreateUser(ctx, dbq.CreateUserParams{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Phone:        phone,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create user")
		http.Error(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	if err := SetAuthCookie(w, &authz.AuthUser{ID: created.ID, SessionType: authz.SessionTypeLocal}); err != nil {
		logger.Error().Err(err).Int64("user_id", created.ID).Msg("Failed to set auth cookie")
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("user_id", created.ID).Msg("User registered")
	apiutil.Respond(w, r, http.StatusCreated, map[string]any{"user": created})
}

// POST /api/auth/login
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	if queries == nil {
		logger.Error().Msg("Database queries not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var req loginRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	email := normalizeEmail(req.Email)
	ip := ratelimit.GetClientIP(r, appConfig != nil && appConfig.App.TrustProxy)
	if limiter != nil {
		if result := limiter.CheckLogin(email, ip); !result.Allowed {
			ratelimit.LogRateLimitExceeded("login", email, ip, result.Reason)
			apiutil.TooManyRequests(w, result.RetryAfter, "Too many login attempts. Try again later.")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	found, err := queries.GetUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Error().Err(err).Msg("Failed to load user for login")
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}
	if err != nil || found.PasswordHash == "" || !VerifyPassword(found.PasswordHash, req.Password) {
		if limiter != nil && limiter.RecordLoginFailure(email, ip) {
			logger.Warn().Str("identifier", ratelimit.SanitizeIdentifier(email)).Str("ip", ip).Msg("Login locked out")
		}
		http.Error(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if limiter != nil {
		limiter.ResetLogin(email)
	}

	if err := SetAuthCookie(w, &authz.AuthUser{ID: found.ID, SessionType: authz.SessionTypeLocal}); err != nil {
		logger.Error().Err(err).Int64("user_id", found.ID).Msg("Failed to set auth cookie")
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{"user": found})
}

// POST /api/auth/logout
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/auth/me
func HandleMe(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	authUser, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	current, err := queries.GetUserByID(ctx, authUser.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			ClearAuthCookie(w)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		logger.Error().Err(err).Int64("user_id", authUser.ID).Msg("Failed to load current user")
		http.Error(w, "Failed to load user", http.StatusInternalServerError)
		return
	}

	apiutil.Respond(w, r, http.StatusOK, map[string]any{
		"user":        current,
		"sessionType": authUser.SessionType,
	})
}

// PUT /api/auth/me
func HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	authUser, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, r, err, "Invalid request")
		return
	}

	phone, err := contact.NormalizeOptionalPhone(req.Phone, contact.DefaultRegion)
	if err != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "phone", Reason: "must be a valid phone number"}, "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	updated, err := queries.UpdateUserProfile(ctx, dbq.UpdateUserProfileParams{
		ID:          authUser.ID,
		DisplayName: strings.TrimSpace(req.DisplayName),
		Phone:       phone,
	})
	if err != nil {
		apiutil.WriteError(w, r, err, "Failed to update profile")
		return
	}

	logger.Info().Int64("user_id", authUser.ID).Msg("Profile updated")
	apiutil.Respond(w, r, http.StatusOK, map[string]any{"user": updated})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
