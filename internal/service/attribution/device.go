package attribution

import (
	"context"
	"strings"
)

// unknownField is the sentinel for telemetry we could not resolve. It is
// stored instead of an empty string so report queries can group on it.
const unknownField = "unknown"

// GeoResolver turns a source IP into a coarse location. Implementations
// may call out to an external service; the ingestor tolerates failure by
// recording the unknown sentinel.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (country, city string, err error)
}

func parseDevice(ua string) string {
	if ua == "" {
		return unknownField
	}
	ua = strings.ToLower(ua)
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone") {
		return "mobile"
	}
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return "tablet"
	}
	return "desktop"
}

func parseBrowser(ua string) string {
	if ua == "" {
		return unknownField
	}
	lower := strings.ToLower(ua)
	switch {
	// Gmail fetches pixels through its image proxy; the hit is a real
	// open even though the UA looks nothing like the recipient's client
	case strings.Contains(lower, "googleimageproxy"):
		return "gmail"
	case strings.Contains(lower, "outlook"):
		return "outlook"
	case strings.Contains(lower, "thunderbird"):
		return "thunderbird"
	case strings.Contains(lower, "edg"):
		return "edge"
	case strings.Contains(lower, "opr") || strings.Contains(lower, "opera"):
		return "opera"
	case strings.Contains(lower, "chrome"):
		return "chrome"
	case strings.Contains(lower, "firefox"):
		return "firefox"
	case strings.Contains(lower, "safari"):
		return "safari"
	default:
		return unknownField
	}
}

var botKeywords = []string{"bot", "crawler", "spider", "headless", "phantom", "wget", "curl", "python-requests"}

func isBot(ua string) bool {
	lower := strings.ToLower(ua)
	for _, kw := range botKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// resolveGeo wraps the resolver with the unknown-sentinel fallback.
func resolveGeo(ctx context.Context, geo GeoResolver, ip string) (string, string) {
	if geo == nil || ip == "" {
		return unknownField, unknownField
	}
	country, city, err := geo.Resolve(ctx, ip)
	if err != nil || country == "" {
		return unknownField, unknownField
	}
	if city == "" {
		city = unknownField
	}
	return country, city
}
