package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tasktrack/internal/authkit"
	"go.uber.org/zap"
)

// IdentityLookup resolves the identity behind an authenticated principal.
type IdentityLookup interface {
	FindIdentityByEmail(ctx context.Context, email string) (authkit.Identity, error)
}

// CurrentUserResponse is the profile payload returned to the frontend.
type CurrentUserResponse struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	ProfilePicture string `json:"profilePicture"`
}

// HandleCurrentUser returns the profile of the authenticated identity. A token
// whose identity no longer exists is treated as unauthenticated.
func HandleCurrentUser(identities IdentityLookup, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if identities == nil {
		panic("identity lookup is required")
	}

	return func(contextGin *gin.Context) {
		principal, ok := authkit.PrincipalFromContext(contextGin)
		if !ok {
			logger.Warn("missing principal on context",
				zap.String("code", "api.auth_user.missing_principal"))
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}

		identity, lookupErr := identities.FindIdentityByEmail(contextGin.Request.Context(), principal.Email)
		if lookupErr != nil {
			if errors.Is(lookupErr, authkit.ErrIdentityNotFound) {
				logger.Warn("identity missing for session",
					zap.String("code", "api.auth_user.identity_missing"),
					zap.String("identity_id", principal.IdentityID))
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
				return
			}
			logger.Error("identity lookup error",
				zap.String("code", "api.auth_user.lookup_error"),
				zap.String("identity_id", principal.IdentityID),
				zap.Error(lookupErr))
			contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}

		contextGin.JSON(http.StatusOK, CurrentUserResponse{
			ID:             identity.ID,
			Email:          identity.Email,
			Name:           identity.DisplayName,
			ProfilePicture: identity.PictureURL,
		})
	}
}

// HandleLogout acknowledges a logout. Sessions are stateless, so the client
// ends the session by discarding its token.
func HandleLogout(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		if principal, ok := authkit.PrincipalFromContext(contextGin); ok {
			logger.Info("logout acknowledged",
				zap.String("code", "api.auth_logout"),
				zap.String("identity_id", principal.IdentityID))
		}
		contextGin.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
	}
}
