package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sdforge/sdforge-gateway/internal/apperr"
)

// ExternalHostSink uploads to a hosting service's multipart API using the
// API key it was constructed with. Router.Deliver tries its per-user sink
// only when the user has a stored credential, but does not pass that
// credential's key to the sink: every upload uses the constructed key.
type ExternalHostSink struct {
	name    string
	baseURL string
	apiKey  string
	albumID string
	client  *http.Client
}

// NewExternalHostSink creates an ExternalHostSink. name distinguishes the
// per-user and guest tiers in Result.SinkName.
func NewExternalHostSink(name, baseURL, apiKey, albumID string, timeout time.Duration) *ExternalHostSink {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExternalHostSink{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		albumID: albumID,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *ExternalHostSink) Name() string { return s.name }

// Upload posts image and meta as multipart/form-data to {baseURL}/upload.
func (s *ExternalHostSink) Upload(ctx context.Context, image []byte, meta Meta) (string, string, error) {
	if s.apiKey == "" {
		return "", "", apperr.New(apperr.Configuration, s.name+" has no API key configured")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("image", "upload.png")
	if err != nil {
		return "", "", apperr.Wrap(apperr.Internal, "build upload multipart body", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", "", apperr.Wrap(apperr.Internal, "write upload image part", err)
	}

	album := meta.Album
	if album == "" {
		album = s.albumID
	}
	for field, value := range map[string]string{
		"title":       meta.Title,
		"description": meta.Description,
		"tags":        strings.Join(meta.Tags, ","),
		"album":       album,
	} {
		if value == "" {
			continue
		}
		if err := w.WriteField(field, value); err != nil {
			return "", "", apperr.Wrap(apperr.Internal, "write upload form field", err)
		}
	}
	if err := w.Close(); err != nil {
		return "", "", apperr.Wrap(apperr.Internal, "close upload multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/upload", &buf)
	if err != nil {
		return "", "", apperr.Wrap(apperr.Internal, "build upload request", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", apperr.Wrap(apperr.Transport, s.name+" unreachable", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", "", apperr.Newf(apperr.Upstream, "%s upload failed: status %d: %s", s.name, resp.StatusCode, string(body))
	}

	var decoded struct {
		URL            string `json:"url"`
		DeletionHandle string `json:"deletion_handle"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", "", apperr.Wrap(apperr.Upstream, fmt.Sprintf("decode %s upload response", s.name), err)
	}
	if decoded.URL == "" {
		return "", "", apperr.Newf(apperr.Upstream, "%s upload response missing url", s.name)
	}
	return decoded.URL, decoded.DeletionHandle, nil
}
