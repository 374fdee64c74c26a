package tokenstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var _ Repo = (*FileRepo)(nil)

// FileRepo stores the token in a single mode-0600 file, the client-side
// equivalent of the browser's localStorage slot.
type FileRepo struct {
	path string
}

// NewFileRepo creates a file-backed token repo at the given path.
func NewFileRepo(path string) (*FileRepo, error) {
	if path == "" {
		return nil, fmt.Errorf("[NewFileRepo] path is required")
	}
	return &FileRepo{path: path}, nil
}

func (r *FileRepo) Load() (string, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("[FileRepo.Load] %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (r *FileRepo) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("[FileRepo.Save] %w", err)
	}
	if err := os.WriteFile(r.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("[FileRepo.Save] %w", err)
	}
	return nil
}

func (r *FileRepo) Clear() error {
	err := os.Remove(r.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("[FileRepo.Clear] %w", err)
	}
	return nil
}
