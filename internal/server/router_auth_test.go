package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegisterSetsSessionCookieAndReturnsSummary(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})
	recorder := fixture.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":              "Voter@Example.com",
		"password":           "secret-password",
		"name":               "Test Voter",
		"linkedinProfileUrl": "https://www.linkedin.com/in/test-voter",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	cookie := sessionCookie(t, recorder)
	if !cookie.HttpOnly {
		t.Fatalf("expected session cookie to be http only")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected lax same-site cookie, got %v", cookie.SameSite)
	}
	if cookie.MaxAge != 3600 {
		t.Fatalf("expected cookie max age to match the session ttl, got %d", cookie.MaxAge)
	}
	body := decodeBody[userSummaryResponse](t, recorder)
	if body.User.Email != "voter@example.com" || body.User.Name != "Test Voter" || body.User.ID == "" {
		t.Fatalf("unexpected user summary %+v", body.User)
	}
}

func TestRegisterRejectsInvalidPayloads(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})

	recorder := fixture.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":              "voter@example.com",
		"password":           "secret-password",
		"name":               "Test Voter",
		"linkedinProfileUrl": "https://example.com/in/test-voter",
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
	body := decodeBody[map[string]any](t, recorder)
	details, ok := body["details"].(map[string]any)
	if !ok {
		t.Fatalf("expected validation details, got %+v", body)
	}
	if details["linkedinProfileUrl"] != "must be a valid LinkedIn URL" {
		t.Fatalf("unexpected linkedin detail %+v", details)
	}

	short := fixture.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":              "voter@example.com",
		"password":           "abc",
		"name":               "Test Voter",
		"linkedinProfileUrl": "https://www.linkedin.com/in/test-voter",
	})
	if short.Code != http.StatusBadRequest {
		t.Fatalf("expected short password to be rejected, got %d", short.Code)
	}

	request := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{not json"))
	request.Header.Set("Content-Type", "application/json")
	malformed := httptest.NewRecorder()
	fixture.handler.ServeHTTP(malformed, request)
	if malformed.Code != http.StatusBadRequest {
		t.Fatalf("expected malformed json to be rejected, got %d", malformed.Code)
	}
}

func TestRegisterTwiceConflicts(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})
	fixture.register(t, "voter@example.com")

	recorder := fixture.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email":              "VOTER@example.com",
		"password":           "another-password",
		"name":               "Someone Else",
		"linkedinProfileUrl": "https://www.linkedin.com/in/someone",
	})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", recorder.Code)
	}
	body := decodeBody[map[string]string](t, recorder)
	if body["error"] != "email_taken" {
		t.Fatalf("unexpected error code %q", body["error"])
	}
}

func TestLoginAuthenticatesWithPassword(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})
	fixture.register(t, "voter@example.com")

	wrong := fixture.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "voter@example.com",
		"password": "wrong-password",
	})
	if wrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", wrong.Code)
	}
	if findCookie(wrong, testCookieName) != nil {
		t.Fatalf("expected no session cookie on failed login")
	}

	ok := fixture.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "voter@example.com",
		"password": "secret-password",
	})
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", ok.Code, ok.Body.String())
	}
	session := sessionCookie(t, ok)

	me := fixture.do(t, http.MethodGet, "/auth/me", nil, session)
	if me.Code != http.StatusOK {
		t.Fatalf("expected /auth/me to succeed, got %d", me.Code)
	}
	view := decodeBody[map[string]any](t, me)
	if view["email"] != "voter@example.com" || view["hasPassword"] != true {
		t.Fatalf("unexpected user view %+v", view)
	}
	if _, leaked := view["passwordHash"]; leaked {
		t.Fatalf("user view must not expose credentials")
	}
}

func TestUpdateLinkedInURLAndLogout(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})
	session := fixture.register(t, "voter@example.com")

	invalid := fixture.do(t, http.MethodPost, "/auth/update-linkedin-url",
		map[string]string{"linkedinProfileUrl": "not a url"}, session)
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid url, got %d", invalid.Code)
	}

	updated := fixture.do(t, http.MethodPost, "/auth/update-linkedin-url",
		map[string]string{"linkedinProfileUrl": "https://linkedin.com/in/renamed"}, session)
	if updated.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", updated.Code, updated.Body.String())
	}
	body := decodeBody[userViewResponse](t, updated)
	if body.User.LinkedInProfileURL != "https://linkedin.com/in/renamed" {
		t.Fatalf("unexpected profile url %q", body.User.LinkedInProfileURL)
	}

	logout := fixture.do(t, http.MethodPost, "/auth/logout", nil, session)
	if logout.Code != http.StatusOK {
		t.Fatalf("expected logout to succeed, got %d", logout.Code)
	}
	cleared := findCookie(logout, testCookieName)
	if cleared == nil || cleared.MaxAge >= 0 {
		t.Fatalf("expected logout to expire the session cookie, got %+v", cleared)
	}
}

func TestForgotAndResetPassword(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})
	fixture.register(t, "voter@example.com")

	unknown := fixture.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
	if unknown.Code != http.StatusOK {
		t.Fatalf("expected generic success for unknown email, got %d", unknown.Code)
	}
	if fixture.notifier.count() != 0 {
		t.Fatalf("expected no mail for unknown email")
	}

	requested := fixture.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "voter@example.com"})
	if requested.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", requested.Code)
	}
	if decodeBody[map[string]string](t, requested)["message"] != decodeBody[map[string]string](t, unknown)["message"] {
		t.Fatalf("expected identical replies for known and unknown emails")
	}

	mail := fixture.notifier.last(t)
	resetURL, err := url.Parse(mail.resetURL)
	if err != nil {
		t.Fatalf("failed to parse reset url: %v", err)
	}
	token := resetURL.Query().Get("token")

	reset := fixture.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"token": token, "password": "brand-new-password"})
	if reset.Code != http.StatusOK {
		t.Fatalf("expected reset to succeed, got %d: %s", reset.Code, reset.Body.String())
	}
	reused := fixture.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"token": token, "password": "another-password"})
	if reused.Code != http.StatusBadRequest {
		t.Fatalf("expected reused token to be rejected, got %d", reused.Code)
	}

	login := fixture.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email":    "voter@example.com",
		"password": "brand-new-password",
	})
	if login.Code != http.StatusOK {
		t.Fatalf("expected login with new password, got %d", login.Code)
	}
}

func TestForgotPasswordIsRateLimitedPerClient(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{forgotPerMin: 2})

	for attempt := 0; attempt < 2; attempt++ {
		recorder := fixture.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
		if recorder.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", attempt, recorder.Code)
		}
	}
	limited := fixture.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
	if limited.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", limited.Code)
	}
	if limited.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestForgotPasswordLimitIgnoresForwardedForFromUntrustedPeers(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{forgotPerMin: 2})

	accepted := 0
	for attempt := 1; attempt <= 10; attempt++ {
		request := newJSONRequest(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
		request.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", attempt))
		if fixture.serve(request).Code == http.StatusOK {
			accepted++
		}
	}
	if accepted != 2 {
		t.Fatalf("expected 2 of 10 requests from one peer to pass, got %d", accepted)
	}
}

func TestForgotPasswordLimitUsesForwardedForFromTrustedProxy(t *testing.T) {
	// httptest requests originate from 192.0.2.1.
	fixture := newServerFixture(t, fixtureOptions{forgotPerMin: 1, trustedProxies: []string{"192.0.2.1"}})

	for attempt := 1; attempt <= 3; attempt++ {
		request := newJSONRequest(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
		request.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", attempt))
		if recorder := fixture.serve(request); recorder.Code != http.StatusOK {
			t.Fatalf("client %d: expected its own bucket, got %d", attempt, recorder.Code)
		}
	}

	repeat := newJSONRequest(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
	repeat.Header.Set("X-Forwarded-For", "203.0.113.1")
	if recorder := fixture.serve(repeat); recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected repeated client to be limited, got %d", recorder.Code)
	}
}

func TestAuthorizeRequestLogsRejectedSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	request := httptest.NewRequest(http.MethodGet, "/auth/me", http.NoBody)
	request.AddCookie(&http.Cookie{Name: testCookieName, Value: "expired"})
	ctx.Request = request

	core, logs := observer.New(zapcore.DebugLevel)
	handler := &httpHandler{
		sessions: stubSessions{err: auth.ErrExpiredSessionToken},
		logger:   zap.New(core),
	}

	handler.authorizeRequest(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status code: got %d, want %d", recorder.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(recorder.Body.String(), "session_expired") {
		t.Fatalf("expected session_expired code, got %s", recorder.Body.String())
	}
	entries := logs.FilterMessage("session rejected").All()
	if len(entries) != 1 {
		t.Fatalf("expected one rejection log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %s", entries[0].Level)
	}
}

func TestRespondErrorHidesInternalCauses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	for _, expose := range []bool{false, true} {
		recorder := httptest.NewRecorder()
		ctx, _ := gin.CreateTestContext(recorder)
		ctx.Request = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		handler := &httpHandler{logger: zap.New(core), exposeErrors: expose}

		handler.respondError(ctx, "test", apperr.Upstream("google_auth_failed", "google authentication failed", errors.New("token endpoint said no")))

		if recorder.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", recorder.Code)
		}
		leaked := strings.Contains(recorder.Body.String(), "token endpoint said no")
		if leaked != expose {
			t.Fatalf("expose=%v: unexpected detail presence in %s", expose, recorder.Body.String())
		}
	}
	if logs.FilterMessage("request failed").Len() != 2 {
		t.Fatalf("expected upstream failures to be logged")
	}
}

type stubSessions struct {
	userID string
	err    error
}

func (s stubSessions) CookieName() string {
	return testCookieName
}

func (s stubSessions) ValidateRequest(*http.Request) (string, error) {
	return s.userID, s.err
}
