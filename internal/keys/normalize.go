// Package keys derives reproducible cache identifiers from canonicalized
// semantic inputs.
package keys

import (
	"net/url"
	"strings"
)

// Normalize canonicalizes a product URL so cosmetic differences (case,
// query string, fragment, trailing slash, default port) collapse to one form.
// It never fails; unparseable input degrades to a trimmed lowercase string.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + strings.TrimPrefix(candidate, "//")
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Hostname() == "" {
		return fallbackNormalize(trimmed)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}

	path := strings.ToLower(u.EscapedPath())
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

func fallbackNormalize(s string) string {
	s = strings.ToLower(s)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	return s
}
