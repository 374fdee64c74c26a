// Package subdomain derives tenant identity from the visited host and decides
// whether the current session may view that tenant's dashboard.
package subdomain

import (
	"net"
	"strings"
)

// FromHost extracts the tenant slug from a visited host. The slug is the
// first label of a multi-label hostname, excluding "www", bare "localhost"
// and the apex domain itself. Ports are ignored. Returns false when the host
// carries no tenant segment.
func FromHost(host, apexDomain string) (string, bool) {
	hostname := stripPort(host)
	if hostname == "" || strings.EqualFold(hostname, apexDomain) {
		return "", false
	}

	parts := strings.Split(hostname, ".")
	if len(parts) < 2 {
		return "", false
	}

	label := strings.ToLower(parts[0])
	if label == "www" || label == "localhost" {
		return "", false
	}
	return label, true
}

// MainDomain returns the apex host a tenant page should link back to,
// preserving localhost (with its port) during development.
func MainDomain(host, apexDomain string) string {
	hostname := stripPort(host)
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		if _, port, err := net.SplitHostPort(host); err == nil && port != "" {
			return "localhost:" + port
		}
		return "localhost"
	}
	return apexDomain
}

func stripPort(host string) string {
	if hostname, _, err := net.SplitHostPort(host); err == nil {
		return hostname
	}
	return host
}
