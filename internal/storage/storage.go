// Package storage persists uploaded blobs.
package storage

import "context"

type UploadInput struct {
	Key         string
	Body        []byte
	ContentType string
}

// UploadResult locates a stored blob. URL is what clients fetch, Path is the backend location.
type UploadResult struct {
	URL  string
	Path string
}

type Uploader interface {
	Upload(ctx context.Context, input UploadInput) (*UploadResult, error)
}
