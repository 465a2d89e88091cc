package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	pkgAuth "github.com/angelmondragon/storefront-checkout/pkg/auth"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type devTokenRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type devTokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenValidation reports whether the bearer token is still accepted. An
// unusable token is answered with valid=false rather than a 401.
func TokenValidation(cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := middleware.BearerToken(r)
		if token == "" {
			responses.WriteSuccess(w, types.TokenValidation{Valid: false})
			return
		}
		claims, err := pkgAuth.ParseAccessToken(cfg, token)
		if err != nil {
			if logg != nil {
				logg.Debug(logg.WithField(r.Context(), "reason", err.Error()), "token.rejected")
			}
			responses.WriteSuccess(w, types.TokenValidation{Valid: false})
			return
		}
		responses.WriteSuccess(w, types.TokenValidation{
			Valid:  true,
			UserID: claims.UserID.String(),
			Email:  claims.Email,
		})
	}
}

// DevToken mints an access token for an email. The user id is derived from
// the email so the same shopper keeps their cart across logins.
func DevToken(cfg config.JWTConfig, now func() time.Time, logg *logger.Logger) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var payload devTokenRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		email := strings.ToLower(strings.TrimSpace(payload.Email))
		userID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("mailto:"+email))
		issuedAt := now()
		token, err := pkgAuth.MintAccessToken(cfg, issuedAt, pkgAuth.AccessTokenPayload{UserID: userID, Email: email})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint token"))
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, devTokenResponse{
			Token:     token,
			UserID:    userID.String(),
			Email:     email,
			ExpiresAt: issuedAt.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute).UTC(),
		})
	}
}
