package sessiontoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// Now returns the current UTC timestamp.
func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock {
	return systemClock{}
}

// Config configures the Codec.
type Config struct {
	SigningKey []byte
	Issuer     string
	TTL        time.Duration
	Clock      Clock
}

// DefaultIssuer is used when Config.Issuer is empty.
const DefaultIssuer = "tasktrack"

const notBeforeSkew = 30 * time.Second

// Sentinel errors exposed by the codec. Every verification failure wraps
// ErrTokenInvalid; the remaining sentinels only refine it for logging.
var (
	ErrMissingSigningKey = errors.New("session.token.missing_signing_key")
	ErrInvalidTTL        = errors.New("session.token.invalid_ttl")
	ErrMissingSubject    = errors.New("session.token.missing_subject")
	ErrTokenInvalid      = errors.New("session.token.invalid")
	ErrTokenMalformed    = errors.New("session.token.malformed")
	ErrTokenExpired      = errors.New("session.token.expired")
	ErrInvalidIssuer     = errors.New("session.token.invalid_issuer")
)

// Claims represent the session payload embedded inside access tokens.
type Claims struct {
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
	jwt.RegisteredClaims
}

// GetUserID returns the identity identifier carried by the token.
func (claims *Claims) GetUserID() string {
	if claims == nil {
		return ""
	}
	return claims.UserID
}

// GetUserEmail returns the subject key (email) carried by the token.
func (claims *Claims) GetUserEmail() string {
	if claims == nil {
		return ""
	}
	return claims.UserEmail
}

// GetIssuedAt returns the issued-at timestamp.
func (claims *Claims) GetIssuedAt() time.Time {
	if claims == nil || claims.IssuedAt == nil {
		return time.Time{}
	}
	return claims.IssuedAt.Time
}

// GetExpiresAt returns the expiry timestamp.
func (claims *Claims) GetExpiresAt() time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// Token is a signed session token together with its validity window.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec issues and verifies HS256 session tokens.
type Codec struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	clock      Clock
}

// New constructs a Codec after validating the supplied configuration.
func New(configuration Config) (*Codec, error) {
	if len(configuration.SigningKey) == 0 {
		return nil, fmt.Errorf("session.token.new: %w", ErrMissingSigningKey)
	}
	if configuration.TTL <= 0 {
		return nil, fmt.Errorf("session.token.new: %w", ErrInvalidTTL)
	}
	issuer := strings.TrimSpace(configuration.Issuer)
	if issuer == "" {
		issuer = DefaultIssuer
	}
	clock := configuration.Clock
	if clock == nil {
		clock = systemClock{}
	}
	signingKey := make([]byte, len(configuration.SigningKey))
	copy(signingKey, configuration.SigningKey)
	return &Codec{
		signingKey: signingKey,
		issuer:     issuer,
		ttl:        configuration.TTL,
		clock:      clock,
	}, nil
}

// TTL reports the fixed validity window applied to issued tokens.
func (codec *Codec) TTL() time.Duration {
	return codec.ttl
}

// Issue mints a token for the subject key and identity id, valid from now
// until now plus the configured TTL.
func (codec *Codec) Issue(subjectKey string, subjectID string) (Token, error) {
	if strings.TrimSpace(subjectKey) == "" {
		return Token{}, fmt.Errorf("session.token.issue: %w", ErrMissingSubject)
	}
	issuedAt := codec.clock.Now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(codec.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:    subjectID,
		UserEmail: subjectKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    codec.issuer,
			Subject:   subjectKey,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt.Add(-notBeforeSkew)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, signErr := token.SignedString(codec.signingKey)
	if signErr != nil {
		return Token{}, fmt.Errorf("session.token.issue: %w", signErr)
	}
	return Token{Value: signed, IssuedAt: issuedAt, ExpiresAt: expiresAt}, nil
}

// Verify parses the token, checks its signature, issuer and expiry, and
// returns its claims. It never panics on malformed input.
func (codec *Codec) Verify(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, invalid(ErrTokenMalformed)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return codec.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return codec.clock.Now()
	}))
	if parseErr != nil {
		switch {
		case errors.Is(parseErr, jwt.ErrTokenExpired):
			return nil, invalid(ErrTokenExpired)
		case errors.Is(parseErr, jwt.ErrTokenMalformed):
			return nil, invalid(ErrTokenMalformed)
		default:
			return nil, invalid(parseErr)
		}
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, invalid(ErrTokenMalformed)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok {
		return nil, invalid(ErrTokenMalformed)
	}
	if claims.Issuer != codec.issuer {
		return nil, invalid(ErrInvalidIssuer)
	}
	if claims.ExpiresAt == nil || strings.TrimSpace(claims.UserEmail) == "" {
		return nil, invalid(ErrTokenMalformed)
	}
	current := codec.clock.Now()
	if !current.Before(claims.ExpiresAt.Time) {
		return nil, invalid(ErrTokenExpired)
	}
	if claims.NotBefore != nil && current.Before(claims.NotBefore.Time) {
		return nil, invalid(ErrTokenMalformed)
	}
	return claims, nil
}

func invalid(cause error) error {
	return fmt.Errorf("session.token.verify: %w: %w", ErrTokenInvalid, cause)
}
