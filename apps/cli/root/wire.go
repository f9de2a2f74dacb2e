package root

import (
	"github.com/traidnet/wificore/apps/cli/cmd/auth"
	"github.com/traidnet/wificore/apps/cli/cmd/bootstrap"
	"github.com/traidnet/wificore/apps/cli/cmd/radiususer"
	tenantcmd "github.com/traidnet/wificore/apps/cli/cmd/tenant"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(bootstrap.Command())
	Root().AddCommand(tenantcmd.Command())
	Root().AddCommand(radiususer.Command())
}
