package analytics

import (
	"net/url"
	"strings"
)

// NormalizeRefererSource reduces a raw Referer header to a canonical
// source: the lowercased hostname, falling back to the path when the value
// has no host. Traffic from ownDomain (and empty or unparsable headers) is
// coerced to the empty string, which buckets it as direct traffic.
func NormalizeRefererSource(raw, ownDomain string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	source := strings.ToLower(u.Hostname())
	if source == "" {
		source = strings.ToLower(strings.TrimSpace(u.Path))
	}

	if ownDomain != "" && source == strings.ToLower(ownDomain) {
		return ""
	}
	return source
}
