package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHostBindingLabel(t *testing.T) {
	t.Parallel()

	b := HostBinding{BaseDomain: "wificore.example.com"}
	cases := []struct {
		host  string
		label string
		bound bool
	}{
		{"acme.wificore.example.com", "acme", true},
		{"ACME.wificore.example.com:443", "acme", true},
		{"acme.wificore.example.com.", "acme", true},
		{"wificore.example.com", "", true},
		{"www.wificore.example.com", "", true},
		{"api.wificore.example.com", "", true},
		{"localhost:3000", "", false},
		{"127.0.0.1:3000", "", false},
		{"[::1]:3000", "", false},
		{"acme.other.example.com", "", false},
		{"evilwificore.example.com", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		label, bound := b.Label(tc.host)
		require.Equal(t, tc.label, label, tc.host)
		require.Equal(t, tc.bound, bound, tc.host)
	}

	_, bound := HostBinding{}.Label("acme.wificore.example.com")
	require.False(t, bound)
}

func TestHostBindingTenantHost(t *testing.T) {
	t.Parallel()

	require.Equal(t, "acme.wificore.example.com", HostBinding{BaseDomain: "WiFiCore.example.com"}.TenantHost("acme"))
	require.Empty(t, HostBinding{}.TenantHost("acme"))
}

func TestHostTravelsInContext(t *testing.T) {
	t.Parallel()

	_, ok := HostFromContext(context.Background())
	require.False(t, ok)

	host, ok := HostFromContext(WithHost(context.Background(), "acme.wificore.example.com"))
	require.True(t, ok)
	require.Equal(t, "acme.wificore.example.com", host)
}
