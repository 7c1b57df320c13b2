package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/auth"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/catalog"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/imageproxy"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/tally"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/users"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/voting"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "ballotbox_user_id"

var (
	errMissingTokenIssuer     = errors.New("token issuer dependency required")
	errMissingSessionCheck    = errors.New("session validator dependency required")
	errMissingUsersService    = errors.New("users service dependency required")
	errMissingCatalogService  = errors.New("catalog service dependency required")
	errMissingVotingService   = errors.New("voting service dependency required")
	errMissingTallyService    = errors.New("tally service dependency required")
	errMissingImageFetcher    = errors.New("image fetcher dependency required")
	errMissingFrontendURL     = errors.New("frontend url required")
	errMissingAllowedOrigins  = errors.New("at least one allowed origin required")
	errInvalidForgotPassLimit = errors.New("forgot password limit must be positive")
)

// SessionIssuer mints session tokens.
type SessionIssuer interface {
	IssueSessionToken(userID string) (auth.SessionToken, error)
}

// SessionChecker resolves the session cookie of a request to a user id.
type SessionChecker interface {
	CookieName() string
	ValidateRequest(r *http.Request) (string, error)
}

// GoogleAuthenticator runs the Google authorization-code flow.
type GoogleAuthenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (auth.GoogleProfile, error)
}

// LinkedInAuthenticator runs the LinkedIn authorization-code flow.
type LinkedInAuthenticator interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (auth.LinkedInProfile, error)
}

// MetricsRecorder receives request and authentication observations.
type MetricsRecorder interface {
	ObserveLogin(provider string, success bool)
	ObservePasswordReset(stage string, success bool)
	ObserveRequest(route, method string, statusCode int, duration time.Duration)
}

// Dependencies wires the HTTP layer to the domain services. Google and LinkedIn are nil when the
// provider is not configured.
type Dependencies struct {
	Tokens         SessionIssuer
	Sessions       SessionChecker
	Users          *users.Service
	Catalog        *catalog.Service
	Voting         *voting.Service
	Tally          *tally.Service
	Images         *imageproxy.Fetcher
	Google         GoogleAuthenticator
	LinkedIn       LinkedInAuthenticator
	Metrics        MetricsRecorder
	MetricsHandler http.Handler
	Logger         *zap.Logger
	Options        Options
}

// Options carries the HTTP-facing settings.
type Options struct {
	FrontendURL          string
	AllowedOrigins       []string
	TrustedProxies       []string
	CookieSecure         bool
	ExposeProviderErrors bool
	ForgotPasswordPerMin int
	Clock                func() time.Time
}

// NewHTTPHandler builds the gin engine serving the ballot API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Metrics
	if recorder == nil {
		recorder = noopMetrics{}
	}
	clock := deps.Options.Clock
	if clock == nil {
		clock = time.Now
	}
	if err := registerValidators(); err != nil {
		return nil, err
	}

	handler := &httpHandler{
		tokens:       deps.Tokens,
		sessions:     deps.Sessions,
		users:        deps.Users,
		catalog:      deps.Catalog,
		voting:       deps.Voting,
		tally:        deps.Tally,
		images:       deps.Images,
		google:       deps.Google,
		linkedin:     deps.LinkedIn,
		metrics:      recorder,
		logger:       logger,
		frontendURL:  strings.TrimRight(strings.TrimSpace(deps.Options.FrontendURL), "/"),
		cookieSecure: deps.Options.CookieSecure,
		exposeErrors: deps.Options.ExposeProviderErrors,
		forgotLimit:  newIPRateLimiter(deps.Options.ForgotPasswordPerMin, clock),
	}

	router := gin.New()
	// Without trusted proxies ClientIP falls back to the socket address and ignores forwarding headers.
	if err := router.SetTrustedProxies(deps.Options.TrustedProxies); err != nil {
		return nil, fmt.Errorf("configure trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(handler.observeRequests)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     deps.Options.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", handler.handleHealth)
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}

	authRoutes := router.Group("/auth")
	authRoutes.POST("/register", handler.handleRegister)
	authRoutes.POST("/login", handler.handleLogin)
	authRoutes.GET("/google", handler.handleGoogleStart)
	authRoutes.GET("/google/callback", handler.handleGoogleCallback)
	authRoutes.GET("/linkedin", handler.handleLinkedInStart)
	authRoutes.GET("/linkedin/callback", handler.handleLinkedInCallback)
	authRoutes.POST("/forgot-password", handler.limitForgotPassword, handler.handleForgotPassword)
	authRoutes.POST("/reset-password", handler.handleResetPassword)

	sessionAuth := router.Group("/auth")
	sessionAuth.Use(handler.authorizeRequest)
	sessionAuth.GET("/me", handler.handleMe)
	sessionAuth.POST("/update-linkedin-url", handler.handleUpdateLinkedInURL)
	sessionAuth.POST("/logout", handler.handleLogout)

	router.GET("/teams", handler.handleTeams)
	router.GET("/candidates", handler.handleCandidates)
	router.GET("/results/voted-users", handler.handleVotedUsers)
	router.GET("/results/vote-counts", handler.handleVoteCounts)
	router.GET("/proxy/linkedin-image", handler.handleImageProxy)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/vote", handler.handleVote)
	protected.GET("/results", handler.handleResults)

	return router, nil
}

func (d Dependencies) validate() error {
	switch {
	case d.Tokens == nil:
		return errMissingTokenIssuer
	case d.Sessions == nil:
		return errMissingSessionCheck
	case d.Users == nil:
		return errMissingUsersService
	case d.Catalog == nil:
		return errMissingCatalogService
	case d.Voting == nil:
		return errMissingVotingService
	case d.Tally == nil:
		return errMissingTallyService
	case d.Images == nil:
		return errMissingImageFetcher
	case strings.TrimSpace(d.Options.FrontendURL) == "":
		return errMissingFrontendURL
	case len(d.Options.AllowedOrigins) == 0:
		return errMissingAllowedOrigins
	case d.Options.ForgotPasswordPerMin <= 0:
		return errInvalidForgotPassLimit
	}
	return nil
}

type httpHandler struct {
	tokens       SessionIssuer
	sessions     SessionChecker
	users        *users.Service
	catalog      *catalog.Service
	voting       *voting.Service
	tally        *tally.Service
	images       *imageproxy.Fetcher
	google       GoogleAuthenticator
	linkedin     LinkedInAuthenticator
	metrics      MetricsRecorder
	logger       *zap.Logger
	frontendURL  string
	cookieSecure bool
	exposeErrors bool
	forgotLimit  *ipRateLimiter
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "OK", "message": "Server is healthy"})
}

type noopMetrics struct{}

func (noopMetrics) ObserveLogin(string, bool) {}
func (noopMetrics) ObservePasswordReset(string, bool) {}
func (noopMetrics) ObserveRequest(string, string, int, time.Duration) {}
