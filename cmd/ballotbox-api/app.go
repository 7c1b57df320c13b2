package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/auth"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/catalog"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/config"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/database"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/ids"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/imageproxy"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/logging"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/mailer"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/metrics"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/server"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/tally"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/users"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/voting"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type application struct {
	handler http.Handler
	logger  *zap.Logger
	db      *gorm.DB
}

func (a *application) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func buildApplication(appConfig config.AppConfig) (*application, error) {
	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	idProvider := ids.NewUUIDProvider()

	notifier, err := newResetNotifier(appConfig, logger)
	if err != nil {
		return nil, err
	}
	usersService, err := users.NewService(users.ServiceConfig{
		Database:      db,
		Clock:         time.Now,
		IDProvider:    idProvider,
		Logger:        logger,
		BcryptCost:    appConfig.BcryptCost,
		ResetNotifier: notifier,
		FrontendURL:   appConfig.FrontendURL,
		ResetTokenTTL: appConfig.ResetTokenTTL,
	})
	if err != nil {
		return nil, err
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	votingService, err := voting.NewService(voting.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
		Recorder:   collector,
	})
	if err != nil {
		return nil, err
	}
	tallyService, err := tally.NewService(tally.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return nil, err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return nil, err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		Tokens:     tokenIssuer,
		CookieName: appConfig.CookieName,
	})
	if err != nil {
		return nil, err
	}

	deps := server.Dependencies{
		Tokens:   tokenIssuer,
		Sessions: sessionValidator,
		Users:    usersService,
		Catalog:  catalogService,
		Voting:   votingService,
		Tally:    tallyService,
		Images: imageproxy.NewFetcher(imageproxy.FetcherConfig{
			Timeout:  appConfig.ImageProxyTimeout,
			MaxBytes: appConfig.ImageProxyMaxBytes,
		}),
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
		Logger:         logger,
		Options: server.Options{
			FrontendURL:          appConfig.FrontendURL,
			AllowedOrigins:       appConfig.AllowedOrigins,
			TrustedProxies:       appConfig.TrustedProxies,
			CookieSecure:         appConfig.CookieSecure,
			ExposeProviderErrors: appConfig.ExposeProviderErrors,
			ForgotPasswordPerMin: appConfig.ForgotPasswordPerMin,
		},
	}

	outbound := auth.NewOutboundHTTPClient(appConfig.OAuthTimeout)
	if appConfig.Google.Enabled() {
		verifier, err := auth.NewGoogleVerifier(auth.GoogleVerifierConfig{
			Audience:   appConfig.Google.ClientID,
			JWKSURL:    appConfig.GoogleJWKSURL,
			HTTPClient: outbound,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		google, err := auth.NewGoogleProvider(auth.GoogleProviderConfig{
			OAuthClientConfig: oauthClientConfig(appConfig.Google, outbound),
			Verifier:          verifier,
		})
		if err != nil {
			return nil, err
		}
		deps.Google = google
	}
	if appConfig.LinkedIn.Enabled() {
		linkedin, err := auth.NewLinkedInProvider(auth.LinkedInProviderConfig{
			OAuthClientConfig: oauthClientConfig(appConfig.LinkedIn, outbound),
		})
		if err != nil {
			return nil, err
		}
		deps.LinkedIn = linkedin
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return nil, err
	}
	return &application{handler: handler, logger: logger, db: db}, nil
}

func oauthClientConfig(client config.OAuthClient, httpClient *http.Client) auth.OAuthClientConfig {
	return auth.OAuthClientConfig{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURL:  client.RedirectURL,
		HTTPClient:   httpClient,
	}
}

// newResetNotifier delivers reset mail through Mailgun when configured and logs it otherwise.
func newResetNotifier(appConfig config.AppConfig, logger *zap.Logger) (*mailer.PasswordResetNotifier, error) {
	var sender mailer.Sender = mailer.NewLogSender(logger)
	if appConfig.Mailgun.Enabled() {
		mailgun, err := mailer.NewMailgun(mailer.MailgunConfig{
			Domain: appConfig.Mailgun.Domain,
			APIKey: appConfig.Mailgun.APIKey,
			Sender: appConfig.Mailgun.Sender,
		})
		if err != nil {
			return nil, err
		}
		sender = mailgun
	} else {
		logger.Warn("mailgun not configured, password reset links will only be logged")
	}
	return mailer.NewPasswordResetNotifier(sender)
}

func runSeed(ctx context.Context, path string) error {
	configViper := viper.GetViper()
	logger, err := logging.NewLogger(configViper.GetString("log.level"), configViper.GetString("log.format"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	teams := catalog.DefaultSeed()
	if path != "" {
		teams, err = readSeedFile(path)
		if err != nil {
			return err
		}
	}

	db, err := database.OpenSQLite(configViper.GetString("database.path"), logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Database:   db,
		IDProvider: ids.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	result, err := catalogService.Seed(ctx, teams)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "seeded %d teams and %d candidates\n", result.Teams, result.Candidates)
	return nil
}

func readSeedFile(path string) ([]catalog.TeamSeed, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var teams []catalog.TeamSeed
	if err := json.Unmarshal(contents, &teams); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return teams, nil
}
