package sqlassets

import _ "embed"

// Platform DDL lives in the system schema and is shared by every tenant.

//go:embed schema/platform/tenants.sql
var TenantsSQL string

//go:embed schema/platform/users.sql
var UsersSQL string

//go:embed schema/platform/radius_user_schema_mapping.sql
var SchemaMappingSQL string

//go:embed schema/platform/catalog.sql
var CatalogSQL string

//go:embed schema/platform/billing.sql
var BillingSQL string

// Tenant space DDL is applied inside each tenant namespace.

//go:embed schema/tenant_space/radius.sql
var RadiusSQL string

// PlatformStatements returns the platform DDL files in dependency order.
func PlatformStatements() []string {
	return []string{TenantsSQL, UsersSQL, SchemaMappingSQL, CatalogSQL, BillingSQL}
}
