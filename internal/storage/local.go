package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalUploader writes blobs under a directory that the HTTP layer serves at PublicPath.
type LocalUploader struct {
	dir        string
	publicPath string
}

func NewLocalUploader(dir, publicPath string) (*LocalUploader, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create upload dir: %w", err)
	}
	if publicPath == "" {
		publicPath = "/uploads"
	}
	return &LocalUploader{dir: dir, publicPath: "/" + strings.Trim(publicPath, "/")}, nil
}

func (u *LocalUploader) Dir() string { return u.dir }

func (u *LocalUploader) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	key := filepath.Base(strings.TrimSpace(input.Key))
	if key == "" || key == "." || key == string(filepath.Separator) {
		return nil, errors.New("storage: object key is required")
	}
	if len(input.Body) == 0 {
		return nil, errors.New("storage: empty body")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := filepath.Join(u.dir, key)
	// O_EXCL keeps an existing object from being overwritten.
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", key, err)
	}
	if _, err := f.Write(input.Body); err != nil {
		f.Close()
		os.Remove(target)
		return nil, fmt.Errorf("storage: write %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(target)
		return nil, fmt.Errorf("storage: close %s: %w", key, err)
	}

	return &UploadResult{URL: path.Join(u.publicPath, key), Path: target}, nil
}
