package devtoken

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
)

// Params captures what is needed to mint a signed session token for local and CI
// environments without running a RADIUS login. No environment variables are
// read so the builder stays deterministic for tooling.
type Params struct {
	Secret    string
	Issuer    string
	UserID    string // defaults to a random UUID
	Username  string
	Role      string
	TenantID  string // required unless Role is system_admin
	ExpiresIn time.Duration
}

// Build returns a token accepted by the API's JWT middleware.
func Build(p Params, now time.Time) (string, error) {
	if strings.TrimSpace(p.Username) == "" {
		return "", errors.New("username is required")
	}

	role := platformauth.Role(strings.TrimSpace(p.Role))
	if !role.Valid() {
		return "", errors.New("role must be one of system_admin, admin, user, hotspot_user")
	}

	userID := uuid.New()
	if strings.TrimSpace(p.UserID) != "" {
		parsed, err := uuid.Parse(p.UserID)
		if err != nil {
			return "", errors.New("user id must be a uuid")
		}
		userID = parsed
	}

	caller := platformauth.Caller{UserID: userID, Username: p.Username, Role: role, Authenticated: true}
	if role != platformauth.RoleSystemAdmin {
		tid, err := uuid.Parse(strings.TrimSpace(p.TenantID))
		if err != nil {
			return "", errors.New("tenant id is required for tenant roles")
		}
		caller.TenantID = &tid
	}

	if now.IsZero() {
		now = time.Now().UTC()
	}

	issuer, err := platformauth.NewIssuer(platformauth.IssuerConfig{
		Secret: []byte(p.Secret),
		Issuer: p.Issuer,
		TTL:    p.ExpiresIn,
		Now:    func() time.Time { return now },
	})
	if err != nil {
		return "", err
	}

	token, _, err := issuer.Issue(caller)
	return token, err
}
