// Package blobstore holds the atomic file write primitive and a
// content-addressed store for archived scan documents.
package blobstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrBlobNotFound is returned for ids with no stored content.
var ErrBlobNotFound = errors.New("blob not found")

// Blobstore stores content under its SHA-256 at <dir>/<id[:2]>/<id>.
type Blobstore struct {
	dir string
}

// New creates the store directory if needed.
func New(dir string) (*Blobstore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blobstore dir: %w", err)
	}
	return &Blobstore{dir: dir}, nil
}

// Put stores data and returns its id. Storing the same content twice is a
// no-op.
func (b *Blobstore) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:])
	if b.Exists(id) {
		return id, nil
	}
	if err := AtomicWriteFile(b.path(id), data, 0o644); err != nil {
		return "", err
	}
	return id, nil
}

func (b *Blobstore) Get(id string) ([]byte, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	data, err := os.ReadFile(b.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
	}
	return data, err
}

func (b *Blobstore) GetReader(id string) (io.ReadCloser, error) {
	data, err := b.Get(id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *Blobstore) Exists(id string) bool {
	if !validID(id) {
		return false
	}
	_, err := os.Stat(b.path(id))
	return err == nil
}

// Delete removes a blob. Missing blobs are not an error.
func (b *Blobstore) Delete(id string) error {
	if !validID(id) {
		return nil
	}
	if err := os.Remove(b.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *Blobstore) path(id string) string {
	return filepath.Join(b.dir, id[:2], id)
}

func validID(id string) bool {
	if len(id) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// AtomicWriteFile replaces path with data through a hidden sibling temp file
// and a rename, so a reader of summary.json, a report or an archived blob
// sees the previous document or the new one and never a torn write. The temp
// name starts with a dot; result listings skip it.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if err := checkDocumentPath(path); err != nil {
		return err
	}

	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write %s: create dir: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("write %s: sync: %w", name, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("write %s: chmod: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: close: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: publish: %w", name, err)
	}
	committed = true
	return nil
}

// ErrUnsafePath is returned for document paths that climb out of their root.
var ErrUnsafePath = errors.New("unsafe document path")

// checkDocumentPath rejects an empty path or one that keeps a ".." segment
// after cleaning. Summary and report paths are always built under a root.
func checkDocumentPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrUnsafePath)
	}
	for _, seg := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %s", ErrUnsafePath, path)
		}
	}
	return nil
}
