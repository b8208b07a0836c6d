package authkit

import (
	"time"
)

// ServerConfig configures session issuance, the Google login handshake, and
// the frontend redirect targets.
type ServerConfig struct {
	AppJWTSigningKey    []byte
	AppJWTIssuer        string
	SessionTTL          time.Duration
	FrontendCallbackURL string
	FrontendErrorURL    string
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURL   string
	LoginStateTTL       time.Duration
	StateCookieName     string
	AllowInsecureHTTP   bool
}
