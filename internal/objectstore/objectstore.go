// Package objectstore stores uploaded originals in Google Cloud Storage or,
// for development, a local directory.
package objectstore

import (
	"context"
	"fmt"
	"strings"
)

// Store writes immutable objects. Put returns a URI for the stored object.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// cleanKey rejects absolute and parent-escaping keys.
func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", key)
	}

	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return "", fmt.Errorf("invalid object key %q", key)
		}
	}

	return key, nil
}
