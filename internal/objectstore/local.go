package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Local stores objects under a root directory. Writes go through a temp
// file and rename so readers never see partial objects.
type Local struct {
	root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving object dir: %w", err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating object dir: %w", err)
	}

	return &Local{root: abs}, nil
}

// Put writes data and returns a file:// URI.
func (l *Local) Put(ctx context.Context, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	path := filepath.Join(l.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("creating object parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return "", fmt.Errorf("creating temp object: %w", err)
	}

	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename.

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing object %s: %w", key, err)
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing object %s: %w", key, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("committing object %s: %w", key, err)
	}

	return "file://" + filepath.ToSlash(path), nil
}
