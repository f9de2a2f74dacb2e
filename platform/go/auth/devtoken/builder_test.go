package devtoken

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/traidnet/wificore/platform/go/auth"
)

const testSecret = "dev-secret-0123456789abcdef"

func TestBuildTenantAdminToken(t *testing.T) {
	tid := uuid.New()
	token, err := Build(Params{Secret: testSecret, Username: "opA", Role: "admin", TenantID: tid.String(), ExpiresIn: time.Hour}, time.Now())
	require.NoError(t, err)

	issuer, err := platformauth.NewIssuer(platformauth.IssuerConfig{Secret: []byte(testSecret)})
	require.NoError(t, err)

	caller, err := issuer.Verify(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, platformauth.RoleAdmin, caller.Role)
	require.Equal(t, tid, *caller.TenantID)
}

func TestBuildValidatesInput(t *testing.T) {
	_, err := Build(Params{Secret: testSecret, Role: "admin"}, time.Now())
	require.ErrorContains(t, err, "username")

	_, err = Build(Params{Secret: testSecret, Username: "x", Role: "root"}, time.Now())
	require.ErrorContains(t, err, "role")

	_, err = Build(Params{Secret: testSecret, Username: "x", Role: "user"}, time.Now())
	require.ErrorContains(t, err, "tenant id")

	_, err = Build(Params{Secret: testSecret, Username: "x", Role: "system_admin"}, time.Now())
	require.NoError(t, err)
}
