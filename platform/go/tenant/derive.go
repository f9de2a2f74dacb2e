package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

// SchemaPrefix is prepended to every tenant namespace.
const SchemaPrefix = "tenant_"

var schemaNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,63}$`)

// ToSnake converts a kebab-case slug into snake_case for schema names.
func ToSnake(slug string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(slug)), "-", "_")
}

// BuildSchemaName returns the namespace for a tenant slug: tenant_<slug_snake>.
func BuildSchemaName(slug string) string {
	return SchemaPrefix + ToSnake(slug)
}

// ValidateSchemaName rejects anything that is not a plain lowercase identifier.
// Schema names end up in search_path, so this is the last line before SQL.
func ValidateSchemaName(name string) error {
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("invalid schema name %q", name)
	}
	return nil
}
