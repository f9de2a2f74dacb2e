package tenant

import (
	"context"
	"net"
	"net/netip"
	"strings"
)

// reservedLabels never name a tenant; hosts carrying them count as the main domain.
var reservedLabels = map[string]struct{}{
	"www": {}, "api": {}, "admin": {}, "app": {}, "mail": {}, "ftp": {}, "smtp": {},
	"pop": {}, "imap": {}, "webmail": {}, "cpanel": {}, "whm": {}, "ns1": {}, "ns2": {},
	"system": {}, "test": {}, "dev": {}, "staging": {}, "demo": {},
}

// HostBinding ties tenant users to <slug>.<BaseDomain>. The zero value binds nothing.
type HostBinding struct {
	BaseDomain string
}

// Label returns the tenant label carried by host. bound is false when the
// binding does not apply to host: no base domain is configured, host is
// localhost or an IP literal, or host lies outside the base domain. The base
// domain itself and reserved labels give ("", true).
func (b HostBinding) Label(host string) (label string, bound bool) {
	base := normalizeHost(b.BaseDomain)
	if base == "" {
		return "", false
	}
	host = normalizeHost(host)
	if host == "" || host == "localhost" {
		return "", false
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return "", false
	}
	if host == base {
		return "", true
	}
	label, ok := strings.CutSuffix(host, "."+base)
	if !ok || label == "" {
		return "", false
	}
	if _, reserved := reservedLabels[label]; reserved {
		return "", true
	}
	return label, true
}

// TenantHost returns the host tenant users of slug are expected to use, or ""
// when no base domain is configured.
func (b HostBinding) TenantHost(slug string) string {
	base := normalizeHost(b.BaseDomain)
	if base == "" || slug == "" {
		return ""
	}
	return strings.ToLower(slug) + "." + base
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

type hostKey struct{}

// WithHost records the host the request was addressed to.
func WithHost(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, hostKey{}, host)
}

// HostFromContext returns the host recorded by WithHost.
func HostFromContext(ctx context.Context) (string, bool) {
	host, ok := ctx.Value(hostKey{}).(string)
	return host, ok && host != ""
}
