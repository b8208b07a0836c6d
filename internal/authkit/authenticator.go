package authkit

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tasktrack/pkg/sessiontoken"
	"go.uber.org/zap"
)

// PrincipalContextKey is the gin context key holding the authenticated Principal.
const PrincipalContextKey = "auth_principal"

const bearerScheme = "bearer"

// Principal is the identity bound to a single authenticated request.
type Principal struct {
	IdentityID string
	Email      string
	ExpiresAt  int64
}

// RequestAuthenticator validates bearer session tokens on incoming requests.
type RequestAuthenticator struct {
	codec   *sessiontoken.Codec
	metrics MetricsRecorder
	logger  *zap.Logger
}

// NewRequestAuthenticator constructs an authenticator backed by the codec.
func NewRequestAuthenticator(codec *sessiontoken.Codec, metrics MetricsRecorder, logger *zap.Logger) *RequestAuthenticator {
	if codec == nil {
		panic("session token codec is required")
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestAuthenticator{codec: codec, metrics: metrics, logger: logger}
}

// Authenticate resolves the raw Authorization header into a Principal. The
// boolean is false when the header is absent, not a bearer credential, or
// carries a token that fails verification.
func (authenticator *RequestAuthenticator) Authenticate(authorizationHeader string) (Principal, bool) {
	tokenValue, ok := extractBearerToken(authorizationHeader)
	if !ok {
		return Principal{}, false
	}
	claims, verifyErr := authenticator.codec.Verify(tokenValue)
	if verifyErr != nil {
		reason := "invalid"
		if errors.Is(verifyErr, sessiontoken.ErrTokenExpired) {
			reason = "expired"
		}
		authenticator.logger.Debug("session token rejected",
			zap.String("code", "auth.session.rejected"),
			zap.String("reason", reason))
		return Principal{}, false
	}
	return Principal{
		IdentityID: claims.GetUserID(),
		Email:      claims.GetUserEmail(),
		ExpiresAt:  claims.GetExpiresAt().Unix(),
	}, true
}

// RequireSession rejects requests without a valid bearer token with 401 and
// stores the Principal on the gin context otherwise.
func (authenticator *RequestAuthenticator) RequireSession() gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		principal, ok := authenticator.Authenticate(contextGin.GetHeader("Authorization"))
		if !ok {
			authenticator.metrics.Increment(metricAuthSessionRejected)
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		contextGin.Set(PrincipalContextKey, principal)
		contextGin.Next()
	}
}

// PrincipalFromContext returns the Principal stored by RequireSession.
func PrincipalFromContext(contextGin *gin.Context) (Principal, bool) {
	value, found := contextGin.Get(PrincipalContextKey)
	if !found {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	if !ok || principal.Email == "" {
		return Principal{}, false
	}
	return principal, true
}

func extractBearerToken(authorizationHeader string) (string, bool) {
	scheme, credential, found := strings.Cut(strings.TrimSpace(authorizationHeader), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", false
	}
	return credential, true
}
