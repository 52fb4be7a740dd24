// Package blob stores archive blobs on a local or mounted filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSStore - root/container/blobName 경로에 저장
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, errors.New("blob root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FSStore{root: root}, nil
}

// Upload - 임시 파일에 쓴 뒤 rename하므로 읽는 쪽은 완성된 blob만 본다
func (s *FSStore) Upload(ctx context.Context, container, blobName string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(container, blobName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close blob: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FSStore) Open(container, blobName string) (*os.File, error) {
	path, err := s.path(container, blobName)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (s *FSStore) path(container, blobName string) (string, error) {
	if container == "" || blobName == "" {
		return "", errors.New("container and blob name are required")
	}
	clean := filepath.Clean(filepath.FromSlash(blobName))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob name %q", blobName)
	}
	if strings.ContainsAny(container, `/\`) || container == ".." {
		return "", fmt.Errorf("invalid container %q", container)
	}
	return filepath.Join(s.root, container, clean), nil
}
