package authkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/tyemirov/tasktrack/pkg/sessiontoken"
	"go.uber.org/zap"
)

const (
	tokenQueryParameter = "token"
	errorQueryParameter = "error"
	loginFailedValue    = "auth_failed"
)

var errInvalidRedirectTarget = errors.New("session_issuer.invalid_redirect_target")

// LoginRedirect is the instruction produced for a completed provider login.
// Location is always safe to send to the browser.
type LoginRedirect struct {
	Location  string
	Succeeded bool
}

// SessionIssuer turns a successful provider login into a first-party session
// token delivered through the frontend callback URL.
type SessionIssuer struct {
	resolver    *IdentityResolver
	codec       *sessiontoken.Codec
	callbackURL *url.URL
	errorURL    *url.URL
	metrics     MetricsRecorder
	logger      *zap.Logger
}

// NewSessionIssuer validates the redirect targets and constructs an issuer.
func NewSessionIssuer(resolver *IdentityResolver, codec *sessiontoken.Codec, callbackURL string, errorURL string, metrics MetricsRecorder, logger *zap.Logger) (*SessionIssuer, error) {
	if resolver == nil || codec == nil {
		return nil, errors.New("session_issuer.new: resolver and codec are required")
	}
	parsedCallback, callbackErr := parseRedirectTarget(callbackURL)
	if callbackErr != nil {
		return nil, fmt.Errorf("session_issuer.new.callback_url: %w", callbackErr)
	}
	parsedError, errorErr := parseRedirectTarget(errorURL)
	if errorErr != nil {
		return nil, fmt.Errorf("session_issuer.new.error_url: %w", errorErr)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionIssuer{
		resolver:    resolver,
		codec:       codec,
		callbackURL: parsedCallback,
		errorURL:    parsedError,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// OnLoginSuccess resolves the identity behind the claims and mints a token for
// it. On any failure the redirect targets the frontend error page and the
// returned error describes the cause; no partial token is ever emitted.
func (issuer *SessionIssuer) OnLoginSuccess(ctx context.Context, claims AssertionClaims) (LoginRedirect, error) {
	identity, resolveErr := issuer.resolver.Resolve(ctx, claims)
	if resolveErr != nil {
		code := "auth.login.resolve_failed"
		if errors.Is(resolveErr, ErrInvalidAssertion) {
			code = "auth.login.invalid_assertion"
		}
		issuer.logger.Warn("login rejected", zap.String("code", code), zap.Error(resolveErr))
		return issuer.Failure(), resolveErr
	}

	token, issueErr := issuer.codec.Issue(identity.Email, identity.ID)
	if issueErr != nil {
		issuer.logger.Error("session token mint failed",
			zap.String("code", "auth.login.mint_failed"),
			zap.Error(issueErr))
		return issuer.Failure(), issueErr
	}

	issuer.metrics.Increment(metricAuthLoginSuccess)
	issuer.logger.Info("login succeeded",
		zap.String("code", "auth.login.success"),
		zap.String("identity_id", identity.ID),
		zap.String("email", identity.Email),
		zap.Time("expires", token.ExpiresAt))
	return LoginRedirect{
		Location:  withQueryParameter(issuer.callbackURL, tokenQueryParameter, token.Value),
		Succeeded: true,
	}, nil
}

// Failure returns the redirect to the frontend error page.
func (issuer *SessionIssuer) Failure() LoginRedirect {
	issuer.metrics.Increment(metricAuthLoginFailure)
	return LoginRedirect{
		Location:  withQueryParameter(issuer.errorURL, errorQueryParameter, loginFailedValue),
		Succeeded: false,
	}
}

func parseRedirectTarget(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errInvalidRedirectTarget
	}
	parsed, parseErr := url.Parse(trimmed)
	if parseErr != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidRedirectTarget, parseErr)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %s must be absolute", errInvalidRedirectTarget, trimmed)
	}
	return parsed, nil
}

func withQueryParameter(base *url.URL, name string, value string) string {
	target := *base
	query := target.Query()
	query.Set(name, value)
	target.RawQuery = query.Encode()
	return target.String()
}
