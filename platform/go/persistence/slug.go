package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/traidnet/wificore/platform/go/tenant"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// maxSlugLength keeps tenant_<slug> within the Postgres identifier limit.
const maxSlugLength = 63 - len(tenant.SchemaPrefix)

// NormalizeSlug trims whitespace, lowercases the value, and ensures it matches
// the canonical URL-safe slug pattern used for tenant identifiers.
func NormalizeSlug(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("slug is required")
	}

	normalized := strings.ToLower(trimmed)
	if !slugPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid slug %q: must match ^[a-z0-9]+(?:-[a-z0-9]+)*$", input)
	}
	if len(normalized) > maxSlugLength {
		return "", fmt.Errorf("invalid slug %q: longer than %d characters", input, maxSlugLength)
	}

	return normalized, nil
}
