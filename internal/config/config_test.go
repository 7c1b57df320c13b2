package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Fatalf("expected seven day session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.CookieName != "token" {
		t.Fatalf("unexpected cookie name %q", cfg.CookieName)
	}
	if cfg.OAuthTimeout != 10*time.Second {
		t.Fatalf("unexpected oauth timeout %s", cfg.OAuthTimeout)
	}
	if cfg.ResetTokenTTL != time.Hour {
		t.Fatalf("unexpected reset token ttl %s", cfg.ResetTokenTTL)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("expected frontend url to be the default allowed origin, got %v", cfg.AllowedOrigins)
	}
	if cfg.Google.Enabled() || cfg.LinkedIn.Enabled() {
		t.Fatalf("expected oauth providers to be disabled by default")
	}
	if cfg.ExposeProviderErrors {
		t.Fatalf("expected provider error detail to be hidden by default")
	}
	if len(cfg.TrustedProxies) != 0 {
		t.Fatalf("expected no trusted proxies by default, got %v", cfg.TrustedProxies)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	_, err := Load(NewViper())
	if err == nil || !strings.Contains(err.Error(), "auth.signing_secret") {
		t.Fatalf("expected signing secret error, got %v", err)
	}
}

func TestLoadRequiresCompleteOAuthClient(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("linkedin.client_id", "linkedin-client")
	configViper.Set("linkedin.client_secret", "linkedin-secret")

	_, err := Load(configViper)
	if err == nil || !strings.Contains(err.Error(), "linkedin.redirect_url") {
		t.Fatalf("expected redirect url error, got %v", err)
	}
}

func TestLoadSplitsAllowedOriginsAndDefaultsSender(t *testing.T) {
	configViper := NewViper()
	configViper.Set("auth.signing_secret", "secret")
	configViper.Set("cors.allowed_origins", []string{"https://vote.example.com, https://admin.example.com", " "})
	configViper.Set("server.trusted_proxies", []string{"10.0.0.0/8, 127.0.0.1"})
	configViper.Set("mailgun.domain", "mg.example.com")
	configViper.Set("mailgun.api_key", "key-123")

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[0] != "10.0.0.0/8" {
		t.Fatalf("unexpected trusted proxies %v", cfg.TrustedProxies)
	}
	if cfg.Mailgun.Sender != "Voting Platform <no-reply@mg.example.com>" {
		t.Fatalf("unexpected sender %q", cfg.Mailgun.Sender)
	}
}
