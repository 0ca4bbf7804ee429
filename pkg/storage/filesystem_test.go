package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUploaderRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	uploader := NewLocalUploader(store, NewSignedURLSigner("secret"), "http://gateway.local/", time.Minute)

	link, err := uploader.Upload(context.Background(), Object{
		Key:         "2026-10-17/lx3k9a-ab12cd.png",
		ContentType: "image/png",
		Data:        []byte("png-bytes"),
		ExpiresAt:   time.Now().Add(5 * time.Minute),
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(link, "http://gateway.local/qr-images/lx3k9a-ab12cd."))

	token := strings.TrimPrefix(link, "http://gateway.local/qr-images/")
	file, err := uploader.Resolve(token)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestLocalUploaderRejectsEmptyObject(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	uploader := NewLocalUploader(store, NewSignedURLSigner("secret"), "http://gateway.local", 0)
	_, err = uploader.Upload(context.Background(), Object{Key: "a.png"})
	assert.Error(t, err)
}

func TestLocalStorageKeepsPathsInsideBaseDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("../../escape.png", []byte("x"))
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "escape.png"))
	assert.NoError(t, statErr)
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("old.png", []byte("old"))
	require.NoError(t, err)
	_, err = store.Save("new.png", []byte("new"))
	require.NoError(t, err)
	past := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.png"), past, past))

	deleted, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.png"}, deleted)
}
