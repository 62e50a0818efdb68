package page

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
)

// decodePasses is fixed at two: clients may encode once and the transport once
// more. Decoding to a fixpoint would corrupt URLs carrying a literal '%'.
const decodePasses = 2

// DefaultMobileHosts maps well-known mobile hostnames to their desktop sites.
var DefaultMobileHosts = map[string]string{
	"m.blog.naver.com":   "blog.naver.com",
	"m.cafe.naver.com":   "cafe.naver.com",
	"m.dcinside.com":     "gall.dcinside.com",
	"mobile.twitter.com": "twitter.com",
	"m.youtube.com":      "www.youtube.com",
	"m.facebook.com":     "www.facebook.com",
	"en.m.wikipedia.org": "en.wikipedia.org",
}

// CanonicalURL is a singly-decoded absolute http(s) URL with mobile aliases
// rewritten. The zero value is not valid; obtain one from Canonicalizer.
type CanonicalURL struct {
	u *url.URL
}

// String returns the canonical form.
func (c CanonicalURL) String() string {
	if c.u == nil {
		return ""
	}
	return c.u.String()
}

// Host returns the host component verbatim (including any port).
func (c CanonicalURL) Host() string {
	if c.u == nil {
		return ""
	}
	return c.u.Host
}

// URL returns a copy of the parsed URL.
func (c CanonicalURL) URL() *url.URL {
	if c.u == nil {
		return &url.URL{}
	}
	cp := *c.u
	if c.u.User != nil {
		user := *c.u.User
		cp.User = &user
	}
	return &cp
}

// Query returns the parsed query parameters.
func (c CanonicalURL) Query() url.Values {
	if c.u == nil {
		return url.Values{}
	}
	return c.u.Query()
}

// Resolve resolves ref against the canonical URL. Absolute refs come back
// untouched; refs that fail to parse are returned as given.
func (c CanonicalURL) Resolve(ref string) string {
	if c.u == nil {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if parsed.IsAbs() {
		return ref
	}
	return c.u.ResolveReference(parsed).String()
}

// Canonicalizer turns raw submitted URLs into CanonicalURLs.
type Canonicalizer struct {
	hosts map[string]string
}

// NewCanonicalizer builds a Canonicalizer with the given host rewrite table.
// Keys are matched case-insensitively against the hostname.
func NewCanonicalizer(hosts map[string]string) *Canonicalizer {
	table := make(map[string]string, len(hosts))
	for from, to := range hosts {
		from = strings.ToLower(strings.TrimSpace(from))
		to = strings.ToLower(strings.TrimSpace(to))
		if from == "" || to == "" {
			continue
		}
		table[from] = to
	}
	return &Canonicalizer{hosts: table}
}

// Canonicalize decodes raw at most twice, rewrites mobile hosts and verifies
// the result is an absolute http(s) URL.
func (c *Canonicalizer) Canonicalize(raw string) (CanonicalURL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CanonicalURL{}, fmt.Errorf("%w: empty url", archive.ErrInvalidURL)
	}

	u, err := parseDecoded(raw)
	if err != nil {
		return CanonicalURL{}, fmt.Errorf("%w: %v", archive.ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return CanonicalURL{}, fmt.Errorf("%w: unsupported scheme %q", archive.ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return CanonicalURL{}, fmt.Errorf("%w: missing host", archive.ErrInvalidURL)
	}

	u.Host = c.rewriteHost(u)
	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = escapeQuery(u.RawQuery)

	return CanonicalURL{u: u}, nil
}

// parseDecoded parses the most-decoded form of raw that is still a valid URL.
// A decode that exposes a literal '%' (e.g. "100%25off") would not parse, so
// the less-decoded forms are tried before giving up.
func parseDecoded(raw string) (*url.URL, error) {
	var firstErr error
	for _, candidate := range decodeLevels(raw) {
		u, err := url.Parse(candidate)
		if err == nil {
			return u, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func (c *Canonicalizer) rewriteHost(u *url.URL) string {
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()

	if u.Scheme == "http" && port == "80" || u.Scheme == "https" && port == "443" {
		port = ""
	}
	if mapped, ok := c.hosts[hostname]; ok {
		hostname = mapped
	}
	if port == "" {
		if strings.Contains(hostname, ":") {
			return "[" + hostname + "]"
		}
		return hostname
	}
	return net.JoinHostPort(hostname, port)
}

// decodeLevels returns s decoded up to decodePasses times, most-decoded first,
// followed by each shallower level. Levels that do not change are omitted.
func decodeLevels(s string) []string {
	levels := []string{s}
	for i := 0; i < decodePasses; i++ {
		if !strings.Contains(s, "%") {
			break
		}
		unescaped, err := url.PathUnescape(s)
		if err != nil || unescaped == s {
			break
		}
		s = unescaped
		levels = append([]string{s}, levels...)
	}
	return levels
}

// escapeQuery re-encodes bytes that decoding may have exposed and that are not
// legal in a query string. Delimiters and existing escapes are kept.
func escapeQuery(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if shouldEscapeQueryByte(ch) {
			fmt.Fprintf(&b, "%%%02X", ch)
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func shouldEscapeQueryByte(ch byte) bool {
	if ch <= 0x20 || ch >= 0x7f {
		return true
	}
	switch ch {
	case '"', '<', '>', '`', '{', '}', '|', '\\', '^':
		return true
	}
	return false
}
