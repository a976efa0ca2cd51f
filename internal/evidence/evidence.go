// Package evidence accepts photo and video uploads attached to issues.
package evidence

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/storage"
)

var allowed = map[string]issue.EvidenceType{
	"image/jpeg": issue.EvidenceImage,
	"image/png":  issue.EvidenceImage,
	"image/webp": issue.EvidenceImage,
	"video/mp4":  issue.EvidenceVideo,
	"video/webm": issue.EvidenceVideo,
}

// Allowed reports whether a MIME type may be uploaded.
func Allowed(mime string) bool {
	_, ok := allowed[mime]
	return ok
}

// TypeFor maps an allowed MIME type to its evidence kind.
func TypeFor(mime string) (issue.EvidenceType, bool) {
	t, ok := allowed[mime]
	return t, ok
}

type Result struct {
	URL          string             `json:"url"`
	Path         string             `json:"path"`
	FileName     string             `json:"fileName"`
	OriginalName string             `json:"originalName"`
	Size         int64              `json:"size"`
	MimeType     string             `json:"mimeType"`
	Type         issue.EvidenceType `json:"type"`
}

// Ref converts an upload into the reference stored with an issue.
func (r Result) Ref() issue.EvidenceRef {
	return issue.EvidenceRef{
		Type:     r.Type,
		FilePath: r.URL,
		FileName: r.FileName,
		FileSize: r.Size,
		MimeType: r.MimeType,
	}
}

type Service struct {
	uploader storage.Uploader
	maxSize  int64
}

func NewService(uploader storage.Uploader, maxSize int64) *Service {
	return &Service{uploader: uploader, maxSize: maxSize}
}

// Upload sniffs the content, enforces the size ceiling and stores the file as <uuid><ext>.
func (s *Service) Upload(ctx context.Context, originalName string, r io.Reader) (Result, error) {
	body, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return Result{}, fmt.Errorf("evidence: read upload: %w", err)
	}
	if int64(len(body)) > s.maxSize {
		return Result{}, apperr.New(apperr.KindTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("File exceeds the %d byte limit", s.maxSize))
	}
	if len(body) == 0 {
		return Result{}, apperr.BadRequest("file is required")
	}

	mtype := mimetype.Detect(body)
	mime := baseMIME(mtype)
	kind, ok := TypeFor(mime)
	if !ok {
		return Result{}, apperr.New(apperr.KindInvalidType, "INVALID_FILE_TYPE",
			"Only JPEG, PNG, WebP, MP4 and WebM files are allowed")
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if ext == "" {
		ext = mtype.Extension()
	}
	name := uuid.NewString() + ext

	stored, err := s.uploader.Upload(ctx, storage.UploadInput{Key: name, Body: body, ContentType: mime})
	if err != nil {
		return Result{}, fmt.Errorf("evidence: store: %w", err)
	}

	log.Ctx(ctx).Debug().Str("file", name).Str("mime", mime).Int("size", len(body)).Msg("evidence stored")

	return Result{
		URL:          stored.URL,
		Path:         stored.Path,
		FileName:     name,
		OriginalName: filepath.Base(originalName),
		Size:         int64(len(body)),
		MimeType:     mime,
		Type:         kind,
	}, nil
}

// baseMIME walks the detection tree so aliases resolve to an allow-listed type.
func baseMIME(m *mimetype.MIME) string {
	for cur := m; cur != nil; cur = cur.Parent() {
		if Allowed(cur.String()) {
			return cur.String()
		}
	}
	return m.String()
}
