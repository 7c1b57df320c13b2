package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/auth"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/catalog"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/database"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/ids"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/imageproxy"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/tally"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/users"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/voting"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	testFrontendURL = "http://localhost:3000"
	testCookieName  = "ballotbox_session"
	testOrigin      = "http://localhost:3000"
)

type resetMail struct {
	email    string
	resetURL string
}

type capturingNotifier struct {
	mu   sync.Mutex
	sent []resetMail
}

func (n *capturingNotifier) SendPasswordReset(_ context.Context, email, _ string, resetURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, resetMail{email: email, resetURL: resetURL})
	return nil
}

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *capturingNotifier) last(t *testing.T) resetMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		t.Fatalf("expected a reset mail to be sent")
	}
	return n.sent[len(n.sent)-1]
}

type stubGoogle struct {
	profile auth.GoogleProfile
	err     error
	codes   []string
}

func (s *stubGoogle) AuthCodeURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (s *stubGoogle) Exchange(_ context.Context, code string) (auth.GoogleProfile, error) {
	s.codes = append(s.codes, code)
	return s.profile, s.err
}

type stubLinkedIn struct {
	profile auth.LinkedInProfile
	err     error
}

func (s *stubLinkedIn) AuthCodeURL(state string) string {
	return "https://linkedin.example.com/oauth/v2/authorization?state=" + state
}

func (s *stubLinkedIn) Exchange(context.Context, string) (auth.LinkedInProfile, error) {
	return s.profile, s.err
}

type fixtureOptions struct {
	google         GoogleAuthenticator
	linkedin       LinkedInAuthenticator
	forgotPerMin   int
	imageClient    *http.Client
	metrics        MetricsRecorder
	metricsHandler http.Handler
	logger         *zap.Logger
	exposeErrors   bool
	trustedProxies []string
}

type serverFixture struct {
	handler  http.Handler
	db       *gorm.DB
	catalog  *catalog.Service
	notifier *capturingNotifier
}

func newServerFixture(t *testing.T, opts fixtureOptions) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := opts.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	idProvider := ids.NewUUIDProvider()
	notifier := &capturingNotifier{}
	usersService, err := users.NewService(users.ServiceConfig{
		Database:      db,
		IDProvider:    idProvider,
		Logger:        logger,
		BcryptCost:    bcrypt.MinCost,
		ResetNotifier: notifier,
		FrontendURL:   testFrontendURL,
	})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{Database: db, IDProvider: idProvider, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build catalog service: %v", err)
	}
	votingService, err := voting.NewService(voting.ServiceConfig{Database: db, IDProvider: idProvider, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build voting service: %v", err)
	}
	tallyService, err := tally.NewService(tally.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build tally service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("server-test-secret"),
		Issuer:        "ballotbox-api",
		Audience:      "ballotbox-web",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}
	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{Tokens: issuer, CookieName: testCookieName})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}

	forgotPerMin := opts.forgotPerMin
	if forgotPerMin == 0 {
		forgotPerMin = 5
	}
	deps := Dependencies{
		Tokens:         issuer,
		Sessions:       sessions,
		Users:          usersService,
		Catalog:        catalogService,
		Voting:         votingService,
		Tally:          tallyService,
		Images:         imageproxy.NewFetcher(imageproxy.FetcherConfig{HTTPClient: opts.imageClient}),
		Metrics:        opts.metrics,
		MetricsHandler: opts.metricsHandler,
		Logger:         logger,
		Options: Options{
			FrontendURL:          testFrontendURL,
			AllowedOrigins:       []string{testOrigin},
			ExposeProviderErrors: opts.exposeErrors,
			ForgotPasswordPerMin: forgotPerMin,
			TrustedProxies:       opts.trustedProxies,
		},
	}
	if opts.google != nil {
		deps.Google = opts.google
	}
	if opts.linkedin != nil {
		deps.LinkedIn = opts.linkedin
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &serverFixture{handler: handler, db: db, catalog: catalogService, notifier: notifier}
}

func (f *serverFixture) seedCatalog(t *testing.T, teams []catalog.TeamSeed) {
	t.Helper()
	if _, err := f.catalog.Seed(context.Background(), teams); err != nil {
		t.Fatalf("failed to seed catalog: %v", err)
	}
}

func (f *serverFixture) candidateIDByName(t *testing.T, name string) string {
	t.Helper()
	var candidate catalog.Candidate
	if err := f.db.Where("name = ?", name).Take(&candidate).Error; err != nil {
		t.Fatalf("failed to load candidate %s: %v", name, err)
	}
	return candidate.ID
}

func (f *serverFixture) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	request := newJSONRequest(t, method, path, body)
	for _, cookie := range cookies {
		request.AddCookie(cookie)
	}
	return f.serve(request)
}

func (f *serverFixture) serve(request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func newJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var payload *bytes.Reader
	if body == nil {
		payload = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		payload = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, payload)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return request
}

func (f *serverFixture) register(t *testing.T, email string) *http.Cookie {
	t.Helper()
	recorder := f.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":              email,
		"password":           "secret-password",
		"name":               "Test Voter",
		"linkedinProfileUrl": "https://www.linkedin.com/in/test-voter",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	return sessionCookie(t, recorder)
}

func sessionCookie(t *testing.T, recorder *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == testCookieName && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatalf("expected a session cookie in response")
	return nil
}

func findCookie(recorder *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode body %q: %v", recorder.Body.String(), err)
	}
	return value
}

func singleTeamSeed() []catalog.TeamSeed {
	return []catalog.TeamSeed{{
		Name:        "Team One",
		Description: "The only team",
		Candidates: []catalog.CandidateSeed{{
			Name:        "C1",
			Description: "First candidate",
			LinkedInURL: "https://www.linkedin.com/in/c1",
		}},
	}}
}
