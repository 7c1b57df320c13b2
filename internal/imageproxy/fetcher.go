// Package imageproxy fetches remote profile pictures on behalf of browsers that block them.
package imageproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/apperr"
	"github.com/doyensec/safeurl"
)

const (
	// DefaultContentType is served when the upstream omits a content type.
	DefaultContentType = "image/jpeg"
	// CacheControl is the caching policy for proxied images.
	CacheControl = "public, max-age=86400"

	defaultTimeout   = 10 * time.Second
	defaultMaxBytes  = 5 << 20
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

var (
	errUnexpectedStatus = errors.New("upstream returned non-success status")
	errImageTooLarge    = errors.New("upstream image exceeds size limit")
	errNotAnImage       = errors.New("upstream content is not a raster image")
)

// FetcherConfig configures the proxy client. A nil HTTPClient selects an SSRF-safe client that
// only reaches public addresses on ports 80 and 443.
type FetcherConfig struct {
	Timeout    time.Duration
	MaxBytes   int64
	UserAgent  string
	HTTPClient *http.Client
}

// Image is a fetched image body with its content type.
type Image struct {
	ContentType string
	Body        []byte
}

// Fetcher downloads images from untrusted URLs.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
}

// NewFetcher constructs a Fetcher from cfg.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newSafeClient(timeout)
	}
	return &Fetcher{client: client, maxBytes: maxBytes, userAgent: userAgent}
}

func newSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(config).Client
}

// Fetch downloads rawURL. Bad input is a validation error; every upstream failure is an
// upstream error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Image, error) {
	target, err := parseTarget(rawURL)
	if err != nil {
		return Image{}, err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Image{}, apperr.Validation("invalid_url", "url parameter is not a valid URL")
	}
	request.Header.Set("User-Agent", f.userAgent)
	request.Header.Set("Accept", "image/*")

	response, err := f.client.Do(request)
	if err != nil {
		return Image{}, imageFailure(err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return Image{}, imageFailure(fmt.Errorf("%w: %d", errUnexpectedStatus, response.StatusCode))
	}
	contentType := strings.TrimSpace(response.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = DefaultContentType
	}
	if !isRasterImage(contentType) {
		return Image{}, imageFailure(fmt.Errorf("%w: %s", errNotAnImage, contentType))
	}
	body, err := io.ReadAll(io.LimitReader(response.Body, f.maxBytes+1))
	if err != nil {
		return Image{}, imageFailure(err)
	}
	if int64(len(body)) > f.maxBytes {
		return Image{}, imageFailure(errImageTooLarge)
	}
	return Image{ContentType: contentType, Body: body}, nil
}

// isRasterImage accepts image/* media types except SVG, which can carry script.
func isRasterImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml"
}

func parseTarget(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, apperr.Validation("missing_url", "url parameter is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return nil, apperr.Validation("invalid_url", "url parameter is not a valid URL")
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return parsed, nil
	default:
		return nil, apperr.Validation("invalid_url", "only http and https URLs can be proxied")
	}
}

func imageFailure(err error) error {
	return apperr.Upstream("image_fetch_failed", "failed to load image", err)
}
