package service

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const maxShortIDLen = 32

// ShortIDGenerator produces random short IDs from UUIDv4 hex digits.
// Uniqueness is enforced by the store; callers retry on conflict.
type ShortIDGenerator struct {
	length int
}

// NewShortIDGenerator creates a generator for IDs of the given length (1..32)
func NewShortIDGenerator(length int) *ShortIDGenerator {
	if length <= 0 || length > maxShortIDLen {
		length = 8
	}
	return &ShortIDGenerator{length: length}
}

// Generate returns a new candidate ID
func (g *ShortIDGenerator) Generate() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:g.length]
}

// NormalizeURL trims the input, assumes https when no scheme is given,
// lowercases the host, drops default ports and the fragment, and rejects
// anything that is not an absolute http(s) URL with a host.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: url is required", ErrValidation)
	}
	if !strings.HasPrefix(strings.ToLower(s), "http://") && !strings.HasPrefix(strings.ToLower(s), "https://") {
		if strings.Contains(s, "://") {
			return "", fmt.Errorf("%w: unsupported scheme", ErrValidation)
		}
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("%w: invalid url", ErrValidation)
	}
	if strings.ContainsAny(u.Host, " \t") {
		return "", fmt.Errorf("%w: invalid url", ErrValidation)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	u.Fragment = ""

	return u.String(), nil
}
