package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Archive stores generated documents (log exports) on the local filesystem,
// grouped by the module that produced them.
type Archive struct {
	basePath string
}

func NewArchive(basePath string) *Archive {
	return &Archive{basePath: basePath}
}

// SaveJSON writes a document under <base>/<group>/<id>.json and returns the
// stored path.
func (a *Archive) SaveJSON(_ context.Context, group, id string, data []byte) (string, error) {
	dir := filepath.Join(a.basePath, group)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}

	path := filepath.Join(dir, id+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return path, nil
}

func (a *Archive) Open(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	return f, nil
}

func (a *Archive) Delete(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove document: %w", err)
	}
	return nil
}
