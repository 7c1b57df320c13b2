package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/imageproxy"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestHealthReportsOK(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})
	recorder := fixture.do(t, http.MethodGet, "/health", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if decodeBody[map[string]string](t, recorder)["status"] != "OK" {
		t.Fatalf("unexpected health body %s", recorder.Body.String())
	}
}

func TestCORSAllowsConfiguredOriginWithCredentials(t *testing.T) {
	fixture := newServerFixture(t, fixtureOptions{})

	request := httptest.NewRequest(http.MethodOptions, "/vote", http.NoBody)
	request.Header.Set("Origin", testOrigin)
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "Content-Type")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != testOrigin {
		t.Fatalf("expected origin to be echoed, got %q", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be enabled")
	}

	foreign := httptest.NewRequest(http.MethodOptions, "/vote", http.NoBody)
	foreign.Header.Set("Origin", "https://evil.example.com")
	foreign.Header.Set("Access-Control-Request-Method", http.MethodPost)
	foreignRecorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(foreignRecorder, foreign)
	if foreignRecorder.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected foreign origin to be refused")
	}
}

func TestMetricsEndpointExposesRequestCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	fixture := newServerFixture(t, fixtureOptions{
		metrics:        collector,
		metricsHandler: metrics.Handler(registry),
	})

	fixture.do(t, http.MethodGet, "/health", nil)
	fixture.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "nobody@example.com", "password": "nope-nope"})

	recorder := fixture.do(t, http.MethodGet, "/metrics", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected metrics, got %d", recorder.Code)
	}
	body := recorder.Body.String()
	for _, expected := range []string{
		`ballotbox_http_requests_total{method="GET",route="/health",status_code="200"} 1`,
		`ballotbox_logins_total{provider="local",result="failure"} 1`,
	} {
		if !strings.Contains(body, expected) {
			t.Fatalf("expected metrics to contain %q, got:\n%s", expected, body)
		}
	}
}

func TestImageProxyServesUpstreamImage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/page.html" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<script>alert(1)</script>"))
			return
		}
		if r.URL.Path != "/photo.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	t.Cleanup(upstream.Close)
	fixture := newServerFixture(t, fixtureOptions{imageClient: upstream.Client()})

	recorder := fixture.do(t, http.MethodGet, "/proxy/linkedin-image?url="+upstream.URL+"/photo.png", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if recorder.Header().Get("Cache-Control") != imageproxy.CacheControl {
		t.Fatalf("unexpected cache header %q", recorder.Header().Get("Cache-Control"))
	}
	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" || recorder.Header().Get("Content-Security-Policy") != "default-src 'none'" {
		t.Fatalf("expected proxied images to be served with nosniff and a locked-down CSP")
	}
	if recorder.Header().Get("Content-Type") != "image/png" || recorder.Body.String() != "png-bytes" {
		t.Fatalf("unexpected proxied image %q %q", recorder.Header().Get("Content-Type"), recorder.Body.String())
	}

	missing := fixture.do(t, http.MethodGet, "/proxy/linkedin-image", nil)
	if missing.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without url, got %d", missing.Code)
	}

	broken := fixture.do(t, http.MethodGet, "/proxy/linkedin-image?url="+upstream.URL+"/absent.png", nil)
	if broken.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for upstream failure, got %d", broken.Code)
	}

	html := fixture.do(t, http.MethodGet, "/proxy/linkedin-image?url="+upstream.URL+"/page.html", nil)
	if html.Code != http.StatusInternalServerError || strings.Contains(html.Body.String(), "<script>") {
		t.Fatalf("expected html upstream to be refused, got %d %s", html.Code, html.Body.String())
	}
}

func TestNewHTTPHandlerValidatesDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err != errMissingTokenIssuer {
		t.Fatalf("expected missing token issuer error, got %v", err)
	}
}

func TestIPRateLimiterSweepsIdleClients(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter(1, func() time.Time { return now })

	if !limiter.allow("10.0.0.1") {
		t.Fatalf("expected first request to pass")
	}
	if limiter.allow("10.0.0.1") {
		t.Fatalf("expected second request within the window to be limited")
	}
	if !limiter.allow("10.0.0.2") {
		t.Fatalf("expected a different client to have its own bucket")
	}

	now = now.Add(limiterIdleTTL + time.Second)
	if !limiter.allow("10.0.0.3") {
		t.Fatalf("expected new client to pass")
	}
	if limiter.size() != 1 {
		t.Fatalf("expected idle clients to be swept, got %d entries", limiter.size())
	}
	if limiter.retryAfterSeconds() != 60 {
		t.Fatalf("expected a 60s retry hint, got %d", limiter.retryAfterSeconds())
	}
}
