package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUploaderWritesFile(t *testing.T) {
	dir := t.TempDir()
	u, err := NewLocalUploader(dir, "/uploads/")
	require.NoError(t, err)

	res, err := u.Upload(context.Background(), UploadInput{Key: "abc.jpg", Body: []byte("data"), ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/abc.jpg", res.URL)
	assert.Equal(t, filepath.Join(dir, "abc.jpg"), res.Path)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestLocalUploaderStripsDirectories(t *testing.T) {
	dir := t.TempDir()
	u, err := NewLocalUploader(dir, "")
	require.NoError(t, err)

	res, err := u.Upload(context.Background(), UploadInput{Key: "../../etc/x.png", Body: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/x.png", res.URL)
	assert.Equal(t, filepath.Join(dir, "x.png"), res.Path)
}

func TestLocalUploaderRejectsEmpty(t *testing.T) {
	u, err := NewLocalUploader(t.TempDir(), "")
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), UploadInput{Key: "a.png"})
	assert.Error(t, err)
	_, err = u.Upload(context.Background(), UploadInput{Body: []byte("x")})
	assert.Error(t, err)
}

func TestLocalUploaderRefusesOverwrite(t *testing.T) {
	u, err := NewLocalUploader(t.TempDir(), "")
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), UploadInput{Key: "a.png", Body: []byte("1")})
	require.NoError(t, err)
	_, err = u.Upload(context.Background(), UploadInput{Key: "a.png", Body: []byte("2")})
	assert.Error(t, err)
}
