package vectorstore

import (
	"fmt"
	"strings"
)

// ValidateKey rejects keys that cannot be used as a single path segment or collection name.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" || key == "." || key == ".." {
		return fmt.Errorf("invalid index key %q", key)
	}
	if strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return fmt.Errorf("invalid index key %q: contains a path separator", key)
	}
	return nil
}
