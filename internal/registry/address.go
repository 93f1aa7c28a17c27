package registry

import (
	"net"
	"strings"
)

// loopback is the canonical literal every loopback form collapses to, so
// that local tabs and the server agree on one identity key.
const loopback = "127.0.0.1"

// NormalizeAddress canonicalizes a transport source address into an
// identity key: strips any port, unwraps the IPv6-mapped-IPv4 prefix, and
// folds loopback forms to a fixed literal.
func NormalizeAddress(address string) string {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return loopback
	}

	// Proxied requests may carry a comma-separated chain; the first hop is
	// the original client.
	if idx := strings.IndexByte(addr, ','); idx >= 0 {
		addr = strings.TrimSpace(addr[:idx])
	}

	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.Trim(addr, "[]")
	addr = strings.TrimPrefix(addr, "::ffff:")

	if addr == "::1" || addr == "" || addr == "localhost" {
		return loopback
	}
	return addr
}
