package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

var errMissingIDToken = errors.New("oauth.exchange.missing_id_token")

// GoogleTokenValidator verifies Google-issued ID tokens.
type GoogleTokenValidator interface {
	Validate(ctx context.Context, token string, audience string) (*idtoken.Payload, error)
}

// NewGoogleTokenValidator builds the production validator backed by Google's public keys.
func NewGoogleTokenValidator(ctx context.Context) (GoogleTokenValidator, error) {
	return idtoken.NewValidator(ctx)
}

// OAuthClient drives the authorization-code handshake with the identity provider.
type OAuthClient interface {
	// AuthCodeURL returns the consent URL carrying state and the S256 challenge of verifier.
	AuthCodeURL(state string, verifier string) string
	// Exchange trades the authorization code for the raw ID token.
	Exchange(ctx context.Context, code string, verifier string) (string, error)
}

type googleOAuthClient struct {
	config *oauth2.Config
}

// NewGoogleOAuthClient configures an OAuthClient for Google with the openid, email and profile scopes.
func NewGoogleOAuthClient(clientID string, clientSecret string, redirectURL string) (OAuthClient, error) {
	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" || strings.TrimSpace(redirectURL) == "" {
		return nil, errors.New("oauth.google: client id, client secret and redirect url are required")
	}
	return &googleOAuthClient{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
	}, nil
}

func (client *googleOAuthClient) AuthCodeURL(state string, verifier string) string {
	return client.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier))
}

func (client *googleOAuthClient) Exchange(ctx context.Context, code string, verifier string) (string, error) {
	token, exchangeErr := client.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if exchangeErr != nil {
		return "", fmt.Errorf("oauth.google.exchange: %w", exchangeErr)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || strings.TrimSpace(rawIDToken) == "" {
		return "", errMissingIDToken
	}
	return rawIDToken, nil
}
