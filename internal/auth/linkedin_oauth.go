package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
)

const (
	defaultLinkedInUserInfoURL = "https://api.linkedin.com/v2/userinfo"
	userInfoBodyLimit          = 1 << 20
)

var errMissingLinkedInSubject = errors.New("userinfo response carried no subject")

// LinkedInProfile is the OpenID Connect userinfo returned by LinkedIn.
type LinkedInProfile struct {
	Subject    string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

// LinkedInProviderConfig configures the LinkedIn authorization-code flow.
type LinkedInProviderConfig struct {
	OAuthClientConfig
	UserInfoURL string
}

// LinkedInProvider drives the LinkedIn authorization-code flow and fetches the member profile.
type LinkedInProvider struct {
	config      *oauth2.Config
	client      OAuthClientConfig
	userInfoURL string
}

// NewLinkedInProvider validates cfg and constructs a LinkedInProvider.
func NewLinkedInProvider(cfg LinkedInProviderConfig) (*LinkedInProvider, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("linkedin provider: %w", err)
	}
	userInfoURL := strings.TrimSpace(cfg.UserInfoURL)
	if userInfoURL == "" {
		userInfoURL = defaultLinkedInUserInfoURL
	}
	return &LinkedInProvider{
		config:      cfg.oauth2Config(linkedin.Endpoint, []string{"openid", "profile", "email"}),
		client:      cfg.OAuthClientConfig,
		userInfoURL: userInfoURL,
	}, nil
}

// AuthCodeURL returns the consent-screen URL carrying state.
func (p *LinkedInProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for the member's userinfo profile.
func (p *LinkedInProvider) Exchange(ctx context.Context, code string) (LinkedInProfile, error) {
	token, err := exchangeCode(ctx, p.config, p.client.HTTPClient, strings.TrimSpace(code))
	if err != nil {
		return LinkedInProfile{}, providerFailure("linkedin", err)
	}
	profile, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return LinkedInProfile{}, providerFailure("linkedin", err)
	}
	return profile, nil
}

func (p *LinkedInProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (LinkedInProfile, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return LinkedInProfile{}, err
	}
	client := p.config.Client(withHTTPClient(ctx, p.client.HTTPClient), token)
	response, err := client.Do(request)
	if err != nil {
		return LinkedInProfile{}, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return LinkedInProfile{}, fmt.Errorf("userinfo request returned status %d", response.StatusCode)
	}

	var profile LinkedInProfile
	if err := json.NewDecoder(io.LimitReader(response.Body, userInfoBodyLimit)).Decode(&profile); err != nil {
		return LinkedInProfile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if strings.TrimSpace(profile.Subject) == "" {
		return LinkedInProfile{}, errMissingLinkedInSubject
	}
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	profile.Name = strings.TrimSpace(profile.Name)
	profile.GivenName = strings.TrimSpace(profile.GivenName)
	profile.FamilyName = strings.TrimSpace(profile.FamilyName)
	return profile, nil
}
