package registry

import (
	"net"
	"net/url"
	"strings"
)

const (
	// Routing provider endpoints.
	LiFiBaseURL       = "https://li.quest/v1"
	LiFiSettlementURL = "https://li.quest/v1/status"

	GoogleTranslateURL = "https://translation.googleapis.com/language/translate/v2"
	TwilioBaseURL      = "https://api.twilio.com/2010-04-01"

	DefaultClaimBaseURL = "https://lingowallet.vercel.app"
)

// IsAllowedSettlementURL reports whether endpoint may be polled for bridge
// settlement. Loopback hosts are accepted for local testing.
func IsAllowedSettlementURL(endpoint string) bool {
	if strings.TrimSpace(endpoint) == "" {
		return true
	}
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	if isLoopbackHost(parsed.Hostname()) {
		scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
		return scheme == "" || scheme == "http" || scheme == "https"
	}
	allowed, err := url.Parse(LiFiSettlementURL)
	if err != nil {
		return false
	}
	if !strings.EqualFold(parsed.Scheme, allowed.Scheme) {
		return false
	}
	if !strings.EqualFold(parsed.Hostname(), allowed.Hostname()) {
		return false
	}
	if normalizedURLPort(parsed) != normalizedURLPort(allowed) {
		return false
	}
	return normalizedURLPath(parsed.Path) == normalizedURLPath(allowed.Path)
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func normalizedURLPort(parsed *url.URL) string {
	if port := strings.TrimSpace(parsed.Port()); port != "" {
		return port
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

func normalizedURLPath(path string) string {
	p := strings.TrimSuffix(strings.TrimSpace(path), "/")
	if p == "" {
		return "/"
	}
	return p
}
