package authkit

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
)

// Open routes of the provider login handshake.
const (
	LoginStartPath    = "/oauth2/authorization/google"
	LoginCallbackPath = "/login/oauth2/code/google"

	defaultStateCookieName = "tasktrack_login_state"
	stateCookiePath        = "/login/oauth2"
)

var (
	errUntrustedIssuer  = errors.New("oauth.callback.untrusted_issuer")
	errUnverifiedEmail  = errors.New("oauth.callback.unverified_email")
	errStateMismatch    = errors.New("oauth.callback.state_mismatch")
	errMissingAuthzCode = errors.New("oauth.callback.missing_code")
	errProviderError    = errors.New("oauth.callback.provider_error")
)

var trustedGoogleIssuers = map[string]struct{}{
	"https://accounts.google.com": {},
	"accounts.google.com":         {},
}

// LoginRoutes serves the Google authorization-code handshake and hands the
// verified claims to the SessionIssuer.
type LoginRoutes struct {
	configuration ServerConfig
	oauthClient   OAuthClient
	validator     GoogleTokenValidator
	states        LoginStateStore
	issuer        *SessionIssuer
	logger        *zap.Logger
}

// NewLoginRoutes assembles the handshake handlers.
func NewLoginRoutes(configuration ServerConfig, oauthClient OAuthClient, validator GoogleTokenValidator, states LoginStateStore, issuer *SessionIssuer, logger *zap.Logger) *LoginRoutes {
	if oauthClient == nil || validator == nil || states == nil || issuer == nil {
		panic("login routes require an oauth client, token validator, state store and session issuer")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(configuration.StateCookieName) == "" {
		configuration.StateCookieName = defaultStateCookieName
	}
	return &LoginRoutes{
		configuration: configuration,
		oauthClient:   oauthClient,
		validator:     validator,
		states:        states,
		issuer:        issuer,
		logger:        logger,
	}
}

// Mount registers the handshake routes; they must stay outside the session guard.
func (routes *LoginRoutes) Mount(router gin.IRouter) {
	router.GET(LoginStartPath, routes.handleLoginStart)
	router.GET(LoginCallbackPath, routes.handleLoginCallback)
}

func (routes *LoginRoutes) handleLoginStart(contextGin *gin.Context) {
	verifier := oauth2.GenerateVerifier()
	state, issueErr := routes.states.Issue(contextGin.Request.Context(), verifier)
	if issueErr != nil {
		routes.logger.Error("login state issue failed",
			zap.String("code", "auth.login.state_issue_failed"),
			zap.Error(issueErr))
		contextGin.Redirect(http.StatusFound, routes.issuer.Failure().Location)
		return
	}
	routes.writeStateCookie(contextGin, state, int(routes.configuration.LoginStateTTL.Seconds()))
	contextGin.Redirect(http.StatusFound, routes.oauthClient.AuthCodeURL(state, verifier))
}

func (routes *LoginRoutes) handleLoginCallback(contextGin *gin.Context) {
	ctx := contextGin.Request.Context()
	claims, handshakeErr := routes.completeHandshake(contextGin)
	routes.writeStateCookie(contextGin, "", -1)
	if handshakeErr != nil {
		routes.logger.Warn("login handshake failed",
			zap.String("code", "auth.login.handshake_failed"),
			zap.Error(handshakeErr))
		contextGin.Redirect(http.StatusFound, routes.issuer.Failure().Location)
		return
	}
	redirect, issueErr := routes.issuer.OnLoginSuccess(ctx, claims)
	if issueErr != nil {
		routes.logger.Debug("login callback ended on error page",
			zap.String("code", "auth.login.callback_failed"),
			zap.Error(issueErr))
	}
	contextGin.Redirect(http.StatusFound, redirect.Location)
}

func (routes *LoginRoutes) completeHandshake(contextGin *gin.Context) (AssertionClaims, error) {
	if providerError := contextGin.Query("error"); providerError != "" {
		return nil, errProviderError
	}
	state := contextGin.Query("state")
	stateCookie, cookieErr := contextGin.Request.Cookie(routes.configuration.StateCookieName)
	if state == "" || cookieErr != nil || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		return nil, errStateMismatch
	}
	verifier, consumeErr := routes.states.Consume(contextGin.Request.Context(), state)
	if consumeErr != nil {
		return nil, consumeErr
	}
	code := contextGin.Query("code")
	if code == "" {
		return nil, errMissingAuthzCode
	}
	rawIDToken, exchangeErr := routes.oauthClient.Exchange(contextGin.Request.Context(), code, verifier)
	if exchangeErr != nil {
		return nil, exchangeErr
	}
	payload, validateErr := routes.validator.Validate(contextGin.Request.Context(), rawIDToken, routes.configuration.GoogleClientID)
	if validateErr != nil {
		return nil, validateErr
	}
	return claimsFromPayload(payload)
}

func claimsFromPayload(payload *idtoken.Payload) (AssertionClaims, error) {
	if payload == nil {
		return nil, ErrInvalidAssertion
	}
	issuerValue, _ := payload.Claims["iss"].(string)
	if _, trusted := trustedGoogleIssuers[issuerValue]; !trusted {
		return nil, errUntrustedIssuer
	}
	if emailVerified, present := payload.Claims["email_verified"].(bool); present && !emailVerified {
		return nil, errUnverifiedEmail
	}
	claims := AssertionClaims{}
	for _, name := range []string{ClaimEmail, ClaimName, ClaimSubject, ClaimPicture} {
		if value, ok := payload.Claims[name].(string); ok {
			claims[name] = value
		}
	}
	return claims, nil
}

func (routes *LoginRoutes) writeStateCookie(contextGin *gin.Context, value string, maxAge int) {
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     routes.configuration.StateCookieName,
		Value:    value,
		Path:     stateCookiePath,
		MaxAge:   maxAge,
		Secure:   !routes.configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
