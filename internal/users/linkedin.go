package users

import (
	"net/url"
	"strings"
)

const (
	linkedInHome       = "https://www.linkedin.com/"
	linkedInSearchBase = "https://www.linkedin.com/search/results/people/?keywords="
)

// keywordEscaper restores the characters QueryEscape encodes but URI components keep literal.
var keywordEscaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// ProfileSearchURL derives a LinkedIn people-search URL for a member. The given and family
// names are preferred over the display name; a member without a name gets the LinkedIn home page.
func ProfileSearchURL(name, givenName, familyName string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return linkedInHome
	}
	keywords := name
	givenName = strings.TrimSpace(givenName)
	familyName = strings.TrimSpace(familyName)
	if givenName != "" && familyName != "" {
		keywords = givenName + " " + familyName
	}
	return linkedInSearchBase + keywordEscaper.Replace(url.QueryEscape(keywords))
}

// IsLinkedInURL reports whether raw is an http(s) URL on linkedin.com or one of its subdomains.
func IsLinkedInURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com")
}
