package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "BALLOTBOX"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabasePath        = "ballotbox.db"
	defaultLogLevel            = "info"
	defaultLogFormat           = "json"
	defaultCookieName          = "token"
	defaultSessionTTL          = 7 * 24 * time.Hour
	defaultTokenIssuer         = "ballotbox-auth"
	defaultTokenAudience       = "ballotbox-api"
	defaultFrontendURL         = "http://localhost:3000"
	defaultGoogleJWKSURL       = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOAuthTimeout        = 10 * time.Second
	defaultResetTokenTTL       = time.Hour
	defaultForgotPasswordRate  = 5
	defaultImageProxyTimeout   = 10 * time.Second
	defaultImageProxyMaxBytes  = 5 << 20
	defaultMailgunSenderFormat = "Voting Platform <no-reply@%s>"
)

// OAuthClient groups the credentials of one OAuth provider. A provider with an empty
// client id is disabled.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether the provider has credentials configured.
func (c OAuthClient) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != ""
}

// MailgunConfig holds Mailgun delivery settings. Delivery is disabled when the domain is empty.
type MailgunConfig struct {
	Domain string
	APIKey string
	Sender string
}

// Enabled reports whether Mailgun delivery is configured.
func (c MailgunConfig) Enabled() bool {
	return strings.TrimSpace(c.Domain) != "" && strings.TrimSpace(c.APIKey) != ""
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	LogFormat            string
	SigningSecret        string
	TokenIssuer          string
	TokenAudience        string
	SessionTTL           time.Duration
	CookieName           string
	CookieSecure         bool
	FrontendURL          string
	AllowedOrigins       []string
	TrustedProxies       []string
	Google               OAuthClient
	GoogleJWKSURL        string
	LinkedIn             OAuthClient
	OAuthTimeout         time.Duration
	ExposeProviderErrors bool
	Mailgun              MailgunConfig
	ResetTokenTTL        time.Duration
	ForgotPasswordPerMin int
	BcryptCost           int
	ImageProxyTimeout    time.Duration
	ImageProxyMaxBytes   int64
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("auth.session_ttl", defaultSessionTTL)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.cookie_secure", false)
	configViper.SetDefault("auth.bcrypt_cost", 10)
	configViper.SetDefault("auth.reset_token_ttl", defaultResetTokenTTL)
	configViper.SetDefault("frontend.url", defaultFrontendURL)
	configViper.SetDefault("google.jwks_url", defaultGoogleJWKSURL)
	configViper.SetDefault("oauth.timeout", defaultOAuthTimeout)
	configViper.SetDefault("debug.expose_provider_errors", false)
	configViper.SetDefault("ratelimit.forgot_password_per_minute", defaultForgotPasswordRate)
	configViper.SetDefault("server.trusted_proxies", []string{})
	configViper.SetDefault("proxy.timeout", defaultImageProxyTimeout)
	configViper.SetDefault("proxy.max_bytes", defaultImageProxyMaxBytes)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		LogFormat:     configViper.GetString("log.format"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenIssuer:   configViper.GetString("auth.issuer"),
		TokenAudience: configViper.GetString("auth.audience"),
		SessionTTL:    configViper.GetDuration("auth.session_ttl"),
		CookieName:    configViper.GetString("auth.cookie_name"),
		CookieSecure:  configViper.GetBool("auth.cookie_secure"),
		FrontendURL:   strings.TrimRight(strings.TrimSpace(configViper.GetString("frontend.url")), "/"),
		AllowedOrigins: normalizeList(
			configViper.GetStringSlice("cors.allowed_origins"),
		),
		TrustedProxies: normalizeList(
			configViper.GetStringSlice("server.trusted_proxies"),
		),
		Google: OAuthClient{
			ClientID:     configViper.GetString("google.client_id"),
			ClientSecret: configViper.GetString("google.client_secret"),
			RedirectURL:  configViper.GetString("google.redirect_url"),
		},
		GoogleJWKSURL: configViper.GetString("google.jwks_url"),
		LinkedIn: OAuthClient{
			ClientID:     configViper.GetString("linkedin.client_id"),
			ClientSecret: configViper.GetString("linkedin.client_secret"),
			RedirectURL:  configViper.GetString("linkedin.redirect_url"),
		},
		OAuthTimeout:         configViper.GetDuration("oauth.timeout"),
		ExposeProviderErrors: configViper.GetBool("debug.expose_provider_errors"),
		Mailgun: MailgunConfig{
			Domain: configViper.GetString("mailgun.domain"),
			APIKey: configViper.GetString("mailgun.api_key"),
			Sender: configViper.GetString("mailgun.sender"),
		},
		ResetTokenTTL:        configViper.GetDuration("auth.reset_token_ttl"),
		ForgotPasswordPerMin: configViper.GetInt("ratelimit.forgot_password_per_minute"),
		BcryptCost:           configViper.GetInt("auth.bcrypt_cost"),
		ImageProxyTimeout:    configViper.GetDuration("proxy.timeout"),
		ImageProxyMaxBytes:   configViper.GetInt64("proxy.max_bytes"),
	}

	if len(cfg.AllowedOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}
	if cfg.Mailgun.Enabled() && strings.TrimSpace(cfg.Mailgun.Sender) == "" {
		cfg.Mailgun.Sender = fmt.Sprintf(defaultMailgunSenderFormat, cfg.Mailgun.Domain)
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}
	if c.OAuthTimeout <= 0 {
		return fmt.Errorf("oauth.timeout must be positive")
	}
	if c.ResetTokenTTL <= 0 {
		return fmt.Errorf("auth.reset_token_ttl must be positive")
	}
	if c.ForgotPasswordPerMin <= 0 {
		return fmt.Errorf("ratelimit.forgot_password_per_minute must be positive")
	}
	if _, err := url.ParseRequestURI(c.FrontendURL); err != nil {
		return fmt.Errorf("frontend.url is invalid: %w", err)
	}
	for name, client := range map[string]OAuthClient{"google": c.Google, "linkedin": c.LinkedIn} {
		if !client.Enabled() {
			continue
		}
		if strings.TrimSpace(client.ClientSecret) == "" {
			return fmt.Errorf("%s.client_secret is required when %s.client_id is set", name, name)
		}
		if strings.TrimSpace(client.RedirectURL) == "" {
			return fmt.Errorf("%s.redirect_url is required when %s.client_id is set", name, name)
		}
	}
	return nil
}

func normalizeList(values []string) []string {
	normalized := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				normalized = append(normalized, trimmed)
			}
		}
	}
	return normalized
}
