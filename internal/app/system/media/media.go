// internal/app/system/media/media.go

// Package media uploads profile photos to the backend's media endpoint.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Uploader stores an image and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data io.Reader) (string, error)
}

// HTTPUploader uploads via multipart POST to the backend.
type HTTPUploader struct {
	endpoint string
	http     *http.Client
	log      *zap.Logger
}

// NewHTTPUploader creates an uploader posting to endpoint (e.g.
// "https://api.example.org/api/media").
func NewHTTPUploader(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		log:      logger,
	}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload sends the image as a multipart form and returns the hosted URL.
func (u *HTTPUploader) Upload(ctx context.Context, name string, data io.Reader) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filepath.Base(name))
	if err != nil {
		return "", fmt.Errorf("media: create form file: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return "", fmt.Errorf("media: read image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("media: finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("media: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("media: upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("media: upload status %d", resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("media: decode response: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("media: upload response missing url")
	}

	u.log.Debug("photo uploaded", zap.String("name", name), zap.String("url", out.URL))
	return out.URL, nil
}
