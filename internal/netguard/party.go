package netguard

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// registrableDomain returns the eTLD+1 for a host using the public suffix
// list, falling back to the last two labels when the lookup cannot decide
// (bare TLDs, IP literals, single-label hosts).
func registrableDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return ""
	}
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// isThirdParty reports whether the request host belongs to a different
// registrable domain than the page host. With no page context the request
// is treated as first-party.
func isThirdParty(requestHost, pageHost string) bool {
	if pageHost == "" || requestHost == "" {
		return false
	}
	return registrableDomain(requestHost) != registrableDomain(pageHost)
}
