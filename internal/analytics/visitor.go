package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/lold2424/LessURL-Service/internal/model"
)

// countryHeaders are edge headers carrying the visitor's ISO country code,
// checked in order.
var countryHeaders = []string{
	"CloudFront-Viewer-Country",
	"CF-IPCountry",
	"X-Country-Code",
}

// HeaderGetter is satisfied by http.Header
type HeaderGetter interface {
	Get(key string) string
}

// DeviceType classifies a User-Agent as MOBILE, TABLET or PC
func DeviceType(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet") ||
		(strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")):
		return model.DeviceTablet
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone") || strings.Contains(ua, "ipod"):
		return model.DeviceMobile
	default:
		return model.DevicePC
	}
}

// Country reads the visitor's country from edge headers, "unknown" when absent
func Country(h HeaderGetter) string {
	for _, name := range countryHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" && v != "XX" {
			return strings.ToUpper(v)
		}
	}
	return countryUnknown
}

// HashIP returns the first 16 hex characters of the SHA-256 of ip so raw
// addresses are never stored.
func HashIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}
