package main

import (
	"net/http"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
)

// buildAuthMiddleware verifies session tokens issued at login. Tokens without a
// tenant claim are only accepted for system administrators.
func buildAuthMiddleware(issuer *platformauth.Issuer) func(http.Handler) http.Handler {
	return platformauth.JWT(issuer.Verify)
}
