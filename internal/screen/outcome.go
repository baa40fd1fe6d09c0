package screen

import (
	"context"
	"errors"
	"net/http"

	"github.com/example/selfie-check/internal/backend"
	"github.com/example/selfie-check/internal/capture"
	"github.com/example/selfie-check/internal/session"
)

// VerifiedThreshold is the similarity score a selfie must exceed to pass.
const VerifiedThreshold = 0.70

// Status is the coarse result of one operation.
type Status int

const (
	// Skipped means a precondition failed and no request was sent.
	Skipped Status = iota
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Skipped:
		return "skipped"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Branch is what the screen offers after a verification result.
type Branch string

const (
	BranchNone     Branch = ""
	BranchVerified Branch = "verified"
	BranchRetry    Branch = "retry"
)

// Classify maps a similarity score to a branch. The comparison is strict.
func Classify(score float64) Branch {
	if score > VerifiedThreshold {
		return BranchVerified
	}
	return BranchRetry
}

type UploadOutcome struct {
	Status  Status
	Message string
	Err     error
}

type VerifyOutcome struct {
	Status Status
	Result *backend.MatchResult
	Err    error
}

type FetchOutcome struct {
	Status Status
	Image  *backend.Image
	Err    error
}

// Upload sends frame for creds. It has no side effects beyond the request itself.
func Upload(ctx context.Context, client backend.Client, creds session.Credentials, frame *capture.Frame) UploadOutcome {
	if err := creds.Validate(); err != nil {
		return UploadOutcome{Status: Skipped, Err: err}
	}
	result, err := client.UploadSelfie(ctx, creds, frame)
	if err != nil {
		return UploadOutcome{Status: Failed, Err: err}
	}
	return UploadOutcome{Status: Succeeded, Message: result.Message}
}

// Verify requests a face match for creds.
func Verify(ctx context.Context, client backend.Client, creds session.Credentials) VerifyOutcome {
	if err := creds.Validate(); err != nil {
		return VerifyOutcome{Status: Skipped, Err: err}
	}
	result, err := client.MatchFaces(ctx, creds)
	if err != nil {
		return VerifyOutcome{Status: Failed, Err: err}
	}
	return VerifyOutcome{Status: Succeeded, Result: result}
}

// Fetch downloads the stored selfie for creds.
func Fetch(ctx context.Context, client backend.Client, creds session.Credentials) FetchOutcome {
	if err := creds.Validate(); err != nil {
		return FetchOutcome{Status: Skipped, Err: err}
	}
	img, err := client.GetSelfie(ctx, creds)
	if err != nil {
		return FetchOutcome{Status: Failed, Err: err}
	}
	return FetchOutcome{Status: Succeeded, Image: img}
}

// errorText is the short message kept in view state after a failed verification.
func errorText(err error) string {
	var statusErr *backend.StatusError
	switch {
	case errors.As(err, &statusErr):
		return "Network response was not ok: " + http.StatusText(statusErr.StatusCode)
	case errors.Is(err, context.Canceled):
		return "Request canceled"
	default:
		return "Network request failed"
	}
}
