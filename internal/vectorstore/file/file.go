// Package file persists each index as JSON under <root>/<document id>/index.json.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const indexFile = "index.json"

var _ vectorstore.Storage = (*Storage)(nil)

// Storage writes indexes atomically (temp file in the same directory, then rename),
// so a reader never observes a half-written index.
type Storage struct {
	root string
}

// NewStorage creates the root directory if needed.
func NewStorage(root string) (*Storage, error) {
	if root == "" {
		root = "vector_db"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	return &Storage{root: root}, nil
}

// Root returns the directory holding all indexes.
func (s *Storage) Root() string { return s.root }

func (s *Storage) dir(key string) string { return filepath.Join(s.root, key) }

func (s *Storage) Save(ctx context.Context, key string, index *domain.Index) error {
	if err := vectorstore.ValidateKey(key); err != nil {
		return err
	}
	if err := index.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.dir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	return writeAtomic(dir, filepath.Join(dir, indexFile), index)
}

func (s *Storage) Load(ctx context.Context, key string) (*domain.Index, error) {
	if err := vectorstore.ValidateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir(key), indexFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, key)
		}
		return nil, fmt.Errorf("opening index: %w", err)
	}
	defer f.Close()

	var idx domain.Index
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&idx); err != nil {
		return nil, fmt.Errorf("decoding index %s: %w", key, err)
	}
	if err := idx.Validate(); err != nil {
		return nil, fmt.Errorf("corrupt index %s: %w", key, err)
	}
	return &idx, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := vectorstore.ValidateKey(key); err != nil {
		return err
	}
	return os.RemoveAll(s.dir(key))
}

func writeAtomic(dir, dest string, index *domain.Index) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	bw := bufio.NewWriter(tmp)
	if err := json.NewEncoder(bw).Encode(index); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
