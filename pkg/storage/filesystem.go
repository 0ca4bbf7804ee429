package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage persists files on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./qr-images"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes the given bytes to the provided relative path under the base dir.
func (s *LocalStorage) Save(filename string, data []byte) (string, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare storage directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write stored file: %w", err)
	}
	return filename, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(filename string) (*os.File, error) {
	path, err := s.resolve(filename)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// CleanupOlderThan removes files older than the provided TTL and returns deleted names.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			rel = path
		}
		deleted = append(deleted, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup stored files: %w", err)
	}
	return deleted, nil
}

// resolve keeps every path inside the base directory.
func (s *LocalStorage) resolve(filename string) (string, error) {
	clean := filepath.Clean("/" + filename)
	path := filepath.Join(s.baseDir, clean)
	if !strings.HasPrefix(path, filepath.Clean(s.baseDir)) {
		return "", fmt.Errorf("invalid storage path %q", filename)
	}
	return path, nil
}

// LocalUploader saves QR images on disk and links them through signed tokens
// served by the gateway itself.
type LocalUploader struct {
	store   *LocalStorage
	signer  *SignedURLSigner
	baseURL string
	grace   time.Duration
}

// NewLocalUploader builds an uploader that links files as <baseURL>/qr-images/<token>.
func NewLocalUploader(store *LocalStorage, signer *SignedURLSigner, baseURL string, grace time.Duration) *LocalUploader {
	return &LocalUploader{store: store, signer: signer, baseURL: strings.TrimRight(baseURL, "/"), grace: grace}
}

// Upload implements Uploader.
func (u *LocalUploader) Upload(_ context.Context, obj Object) (string, error) {
	if len(obj.Data) == 0 {
		return "", fmt.Errorf("empty object %q", obj.Key)
	}
	rel, err := u.store.Save(obj.Key, obj.Data)
	if err != nil {
		return "", err
	}
	owner := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	expiresAt := obj.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Now()
	}
	token, err := u.signer.GenerateUntil(owner, rel, expiresAt.Add(u.grace))
	if err != nil {
		return "", fmt.Errorf("sign stored file: %w", err)
	}
	return u.baseURL + "/qr-images/" + token, nil
}

// Resolve validates a link token and opens the referenced file.
func (u *LocalUploader) Resolve(token string) (*os.File, error) {
	_, rel, _, err := u.signer.Parse(token, false)
	if err != nil {
		return nil, err
	}
	return u.store.Open(rel)
}

// Cleanup removes stored images older than ttl.
func (u *LocalUploader) Cleanup(ttl time.Duration) ([]string, error) {
	return u.store.CleanupOlderThan(ttl)
}
