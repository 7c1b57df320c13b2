package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

var (
	errMissingIDTokenVerifier = errors.New("google id token verifier required")
	errMissingIDToken         = errors.New("token response carried no id_token")
)

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// IDTokenVerifier validates a Google ID token.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (GoogleClaims, error)
}

// GoogleProfile is the identity asserted by a verified Google sign-in.
type GoogleProfile struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// GoogleProviderConfig configures the Google authorization-code flow.
type GoogleProviderConfig struct {
	OAuthClientConfig
	Verifier IDTokenVerifier
}

// GoogleProvider drives the Google authorization-code flow and verifies the returned ID token.
type GoogleProvider struct {
	config   *oauth2.Config
	client   OAuthClientConfig
	verifier IDTokenVerifier
}

// NewGoogleProvider validates cfg and constructs a GoogleProvider.
func NewGoogleProvider(cfg GoogleProviderConfig) (*GoogleProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("google provider: %w", err)
	}
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("google provider: %w", errMissingIDTokenVerifier)
	}
	return &GoogleProvider{
		config:   cfg.oauth2Config(googleEndpoint, []string{"openid", "profile", "email"}),
		client:   cfg.OAuthClientConfig,
		verifier: cfg.Verifier,
	}, nil
}

// AuthCodeURL returns the consent-screen URL carrying state.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for a verified Google profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (GoogleProfile, error) {
	token, err := exchangeCode(ctx, p.config, p.client.HTTPClient, strings.TrimSpace(code))
	if err != nil {
		return GoogleProfile{}, providerFailure("google", err)
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return GoogleProfile{}, providerFailure("google", errMissingIDToken)
	}
	claims, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return GoogleProfile{}, providerFailure("google", err)
	}
	return GoogleProfile{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}
