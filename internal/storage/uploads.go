// Package storage keeps uploaded point cloud files on disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrNoFilename is returned when the sanitized filename is empty.
	ErrNoFilename = errors.New("no selected file")
	// ErrExtensionNotAllowed is returned for files the store does not accept.
	ErrExtensionNotAllowed = errors.New("file extension not allowed")
	// ErrNotFound is returned when no upload has the requested name.
	ErrNotFound = errors.New("upload not found")
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename strips directories and anything outside [A-Za-z0-9_.-],
// turning spaces into underscores. Leading dots are removed so the result
// is never hidden or relative.
func SecureFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.TrimLeft(name, "._")
	return name
}

// UploadStore writes uploads into one directory.
type UploadStore struct {
	dir     string
	allowed map[string]struct{}
}

// NewUploadStore accepts files whose extension, without the dot, is listed.
func NewUploadStore(dir string, extensions []string) *UploadStore {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &UploadStore{dir: dir, allowed: allowed}
}

// Dir returns the upload directory.
func (s *UploadStore) Dir() string {
	return s.dir
}

// Allowed reports whether name has an accepted extension.
func (s *UploadStore) Allowed(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return false
	}
	_, ok := s.allowed[ext]
	return ok
}

// Save stores r under the sanitized name and returns that name.
func (s *UploadStore) Save(name string, r io.Reader) (string, error) {
	clean := SecureFilename(name)
	if clean == "" {
		return "", ErrNoFilename
	}
	if !s.Allowed(clean) {
		return "", fmt.Errorf("%w: %s", ErrExtensionNotAllowed, clean)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write upload %s: %w", clean, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write upload %s: %w", clean, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, clean)); err != nil {
		return "", fmt.Errorf("store upload %s: %w", clean, err)
	}
	return clean, nil
}

// Path returns the on-disk path of an existing upload.
func (s *UploadStore) Path(name string) (string, error) {
	clean := SecureFilename(name)
	if clean == "" || clean != name {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	p := filepath.Join(s.dir, clean)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	return p, nil
}

// Remove deletes an upload. A missing file is not an error.
func (s *UploadStore) Remove(name string) error {
	p, err := s.Path(name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// List returns the names of the stored uploads.
func (s *UploadStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && s.Allowed(e.Name()) && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
