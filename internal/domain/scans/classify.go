package scans

import (
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/publicsuffix"
)

var (
	hexRe   = regexp.MustCompile(`^[0-9a-fA-F]+$`)
	labelRe = regexp.MustCompile(`^[a-z0-9_]([a-z0-9_-]{0,61}[a-z0-9_])?$`)
)

// Classify decides whether input is a URL, a file hash or neither.
// It never fails; anything it cannot place is TypeUnknown.
func Classify(input string) IOCType {
	s := strings.TrimSpace(input)
	if s == "" {
		return TypeUnknown
	}
	if looksLikeURL(s) {
		return TypeURL
	}
	if HashKind(s) != "" {
		return TypeHash
	}
	return TypeUnknown
}

// HashKind returns md5, sha1 or sha256 for hex strings of length 32, 40, 64.
func HashKind(s string) string {
	s = strings.TrimSpace(s)
	if !hexRe.MatchString(s) {
		return ""
	}
	switch len(s) {
	case 32:
		return "md5"
	case 40:
		return "sha1"
	case 64:
		return "sha256"
	default:
		return ""
	}
}

func looksLikeURL(s string) bool {
	// scheme://host...
	if i := strings.Index(s, "://"); i >= 0 {
		host := s[i+3:]
		if j := strings.IndexAny(host, "/?#"); j >= 0 {
			host = host[:j]
		}
		return host != "" && !hasSpace(host)
	}

	// bare locator: example.com/path, 1.2.3.4:8080
	if hasSpace(s) || !strings.Contains(s, ".") {
		return false
	}
	return isNetworkLocator(hostPart(s))
}

// hostPart strips path, query, userinfo and port from a scheme-less locator.
func hostPart(s string) string {
	if j := strings.IndexAny(s, "/?#"); j >= 0 {
		s = s[:j]
	}
	if at := strings.LastIndex(s, "@"); at >= 0 {
		s = s[at+1:]
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	if c := strings.LastIndex(s, ":"); c >= 0 {
		if _, err := strconv.Atoi(s[c+1:]); err == nil {
			return s[:c]
		}
	}
	return s
}

func isNetworkLocator(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return true
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if !labelRe.MatchString(l) {
			return false
		}
	}
	suffix, icann := publicsuffix.PublicSuffix(host)
	return icann && suffix != host
}

func hasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}
