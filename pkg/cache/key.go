package cache

import (
	"fmt"
	"strings"

	"github.com/EdvardGK/skiplumxge-configcache/pkg/policy"
)

// NormalizeKey trims surrounding whitespace and validates the
// "category" / "category:field" shape.
//
// Examples:
//
//	"calculations:bra_adjustment" -> ok
//	" content "                   -> "content"
//	":field", "calculations:"     -> ErrInvalidKey
func NormalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrInvalidKey)
	}

	category, field := policy.SplitKey(key)
	if category == "" {
		return "", fmt.Errorf("%w: %q has no category", ErrInvalidKey, key)
	}
	if field == "" && strings.Contains(key, policy.KeyDelimiter) {
		return "", fmt.Errorf("%w: %q has an empty field", ErrInvalidKey, key)
	}

	return key, nil
}
