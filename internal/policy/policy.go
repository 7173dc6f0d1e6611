// Package policy decides which product URLs the service is willing to audit.
package policy

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrNotAllowed marks URLs rejected by policy rather than malformed ones.
var ErrNotAllowed = errors.New("url not allowed")

// Config lists admission rules. BlockedHosts entries are exact hosts or
// suffix wildcards written as "*.example.com" or ".example.com".
type Config struct {
	BlockedHosts      []string
	AllowPrivateHosts bool
}

// Policy validates audit targets before they are queued.
type Policy struct {
	blocked      *hostBlocklist
	allowPrivate bool
}

// New builds a Policy.
func New(cfg Config) *Policy {
	return &Policy{
		blocked:      newHostBlocklist(cfg.BlockedHosts),
		allowPrivate: cfg.AllowPrivateHosts,
	}
}

// AllowURL returns nil when raw may be captured. Scheme-less input is treated
// as https. Rejections by rule wrap ErrNotAllowed.
func (p *Policy) AllowURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return errors.New("url required")
	}
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + strings.TrimPrefix(candidate, "//")
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q", ErrNotAllowed, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.New("url has no host")
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in url", ErrNotAllowed)
	}
	if p.blocked.IsBlocked(host) {
		return fmt.Errorf("%w: host %s is blocked", ErrNotAllowed, host)
	}
	if !p.allowPrivate && isPrivateHost(host) {
		return fmt.Errorf("%w: host %s is private", ErrNotAllowed, host)
	}
	return nil
}

// isPrivateHost only inspects literal addresses and well-known local names;
// it does not resolve DNS.
func isPrivateHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".internal") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

type hostBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostBlocklist(patterns []string) *hostBlocklist {
	b := &hostBlocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *hostBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

func (b *hostBlocklist) IsBlocked(host string) bool {
	if b == nil || host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
