package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
)

// LocalFileSink writes images to a dated directory under a base path and
// returns an HTTP URL served by the gateway's own file server, matching the
// teacher's create_image.go temp-file convention generalized to a
// permanent, date-bucketed layout (images/{yyyy}/{mm}/{dd}/{uuid}.png).
type LocalFileSink struct {
	baseDir  string
	baseURL  string // e.g. "http://localhost:8090/images"
}

// NewLocalFileSink creates a LocalFileSink writing under baseDir and
// serving from baseURL.
func NewLocalFileSink(baseDir, baseURL string) *LocalFileSink {
	return &LocalFileSink{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *LocalFileSink) Name() string { return "local" }

// Upload writes image under {baseDir}/{yyyy}/{mm}/{dd}/{uuid}.png.
func (s *LocalFileSink) Upload(ctx context.Context, image []byte, meta Meta) (string, string, error) {
	now := time.Now().UTC()
	rel := filepath.Join(fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", now.Month()), fmt.Sprintf("%02d", now.Day()))
	dir := filepath.Join(s.baseDir, rel)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", apperr.Wrap(apperr.Internal, "create local upload directory", err)
	}

	filename := uuid.NewString() + ".png"
	fullPath := filepath.Join(dir, filename)
	if err := os.WriteFile(fullPath, image, 0o644); err != nil {
		return "", "", apperr.Wrap(apperr.Internal, "write local upload file", err)
	}

	url := fmt.Sprintf("%s/%s/%s", s.baseURL, filepath.ToSlash(rel), filename)
	return url, "", nil
}
