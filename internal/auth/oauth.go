package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"golang.org/x/oauth2"
)

const (
	// DefaultOAuthTimeout bounds every outbound call to an identity provider.
	DefaultOAuthTimeout = 10 * time.Second
	stateByteLength     = 24
)

var (
	errMissingClientID     = errors.New("oauth client id must be provided")
	errMissingClientSecret = errors.New("oauth client secret must be provided")
	errMissingRedirectURL  = errors.New("oauth redirect url must be provided")
	errMissingCode         = errors.New("authorization code must be provided")
)

// OAuthClientConfig carries the credentials of one OAuth provider. AuthURL and TokenURL
// override the provider's default endpoints.
type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	HTTPClient   *http.Client
}

func (c OAuthClientConfig) validate() error {
	switch {
	case c.ClientID == "":
		return errMissingClientID
	case c.ClientSecret == "":
		return errMissingClientSecret
	case c.RedirectURL == "":
		return errMissingRedirectURL
	}
	return nil
}

func (c OAuthClientConfig) oauth2Config(endpoint oauth2.Endpoint, scopes []string) *oauth2.Config {
	if c.AuthURL != "" {
		endpoint.AuthURL = c.AuthURL
	}
	if c.TokenURL != "" {
		endpoint.TokenURL = c.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}

// NewOutboundHTTPClient returns a client that dials providers over IPv4 only and
// gives up after timeout.
func NewOutboundHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultOAuthTimeout
	}
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = func(ctx context.Context, _ string, address string) (net.Conn, error) {
		return dialer.DialContext(ctx, "tcp4", address)
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// NewState returns a random URL-safe value for the OAuth state parameter.
func NewState() (string, error) {
	buffer := make([]byte, stateByteLength)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}

func exchangeCode(ctx context.Context, config *oauth2.Config, client *http.Client, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errMissingCode
	}
	return config.Exchange(withHTTPClient(ctx, client), code)
}

func providerFailure(provider string, err error) error {
	return apperr.Upstream(provider+"_auth_failed", provider+" authentication failed", err)
}
