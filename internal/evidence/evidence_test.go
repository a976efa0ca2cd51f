package evidence

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citywatch/api/internal/apperr"
	"github.com/citywatch/api/internal/issue"
	"github.com/citywatch/api/internal/storage"
)

type stubUploader struct {
	inputs []storage.UploadInput
	err    error
}

func (s *stubUploader) Upload(ctx context.Context, in storage.UploadInput) (*storage.UploadResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.inputs = append(s.inputs, in)
	return &storage.UploadResult{URL: "/uploads/" + in.Key, Path: "/data/" + in.Key}, nil
}

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

func TestUploadPNG(t *testing.T) {
	up := &stubUploader{}
	svc := NewService(up, 1024)

	res, err := svc.Upload(context.Background(), "Road.PNG", bytes.NewReader(pngHeader))
	require.NoError(t, err)

	assert.Equal(t, "image/png", res.MimeType)
	assert.Equal(t, issue.EvidenceImage, res.Type)
	assert.True(t, strings.HasSuffix(res.FileName, ".png"))
	assert.Equal(t, "/uploads/"+res.FileName, res.URL)
	assert.Equal(t, "Road.PNG", res.OriginalName)
	assert.Equal(t, int64(len(pngHeader)), res.Size)
	require.Len(t, up.inputs, 1)
	assert.Equal(t, "image/png", up.inputs[0].ContentType)

	ref := res.Ref()
	assert.Equal(t, res.URL, ref.FilePath)
	assert.Equal(t, issue.EvidenceImage, ref.Type)
}

func TestUploadRejectsText(t *testing.T) {
	svc := NewService(&stubUploader{}, 1024)
	_, err := svc.Upload(context.Background(), "notes.jpg", strings.NewReader("just some text"))
	assert.Equal(t, apperr.KindInvalidType, apperr.KindOf(err))
}

func TestUploadTooLarge(t *testing.T) {
	svc := NewService(&stubUploader{}, 8)
	_, err := svc.Upload(context.Background(), "a.png", bytes.NewReader(pngHeader))
	assert.Equal(t, apperr.KindTooLarge, apperr.KindOf(err))
}

func TestUploadEmpty(t *testing.T) {
	svc := NewService(&stubUploader{}, 8)
	_, err := svc.Upload(context.Background(), "a.png", bytes.NewReader(nil))
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
}

func TestUploadStorageFailure(t *testing.T) {
	svc := NewService(&stubUploader{err: errors.New("disk full")}, 1024)
	_, err := svc.Upload(context.Background(), "a.png", bytes.NewReader(pngHeader))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestAllowedTypes(t *testing.T) {
	for _, m := range []string{"image/jpeg", "image/png", "image/webp", "video/mp4", "video/webm"} {
		assert.True(t, Allowed(m), m)
	}
	assert.False(t, Allowed("application/pdf"))

	kind, ok := TypeFor("video/webm")
	assert.True(t, ok)
	assert.Equal(t, issue.EvidenceVideo, kind)
}
