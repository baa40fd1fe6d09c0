// Package backend is the HTTP client for the external face-matching service.
package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/selfie-check/internal/capture"
	"github.com/example/selfie-check/internal/session"
)

// UploadResult is the backend's acknowledgement of an uploaded selfie.
type UploadResult struct {
	Message string `json:"message"`
}

// MatchResult is the face comparison outcome. Raw keeps the full response body for display.
type MatchResult struct {
	SimilarityScore float64         `json:"similarity_score"`
	Raw             json.RawMessage `json:"-"`
}

// Image is a downloaded selfie.
type Image struct {
	ContentType string
	Data        []byte
}

// Client exposes the subset of the backend used by the selfie screen.
type Client interface {
	UploadSelfie(ctx context.Context, creds session.Credentials, frame *capture.Frame) (*UploadResult, error)
	MatchFaces(ctx context.Context, creds session.Credentials) (*MatchResult, error)
	GetSelfie(ctx context.Context, creds session.Credentials) (*Image, error)
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("request failed with status %d", e.StatusCode)
}
