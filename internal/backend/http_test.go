package backend_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/example/selfie-check/internal/backend"
	"github.com/example/selfie-check/internal/backend/backendtest"
	"github.com/example/selfie-check/internal/capture"
	"github.com/example/selfie-check/internal/logging"
	"github.com/example/selfie-check/internal/session"
)

func newClient(t *testing.T) (*backend.HTTPClient, *backendtest.Server, session.Credentials) {
	t.Helper()
	srv := backendtest.NewServer()
	t.Cleanup(srv.Close)

	client, err := backend.NewHTTPClient(srv.URL+"/", 0, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return client, srv, session.Credentials{Username: "alice", Token: srv.IssueToken("alice")}
}

func TestNewHTTPClientRejectsInvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8000", "://bad"} {
		if _, err := backend.NewHTTPClient(raw, 0, zap.NewNop()); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestUploadSelfieSendsMultipartFile(t *testing.T) {
	client, srv, creds := newClient(t)
	frame := &capture.Frame{Name: capture.FileName, ContentType: capture.ContentType, Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}}

	result, err := client.UploadSelfie(context.Background(), creds, frame)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if result.Message != "Selfie uploaded for alice" {
		t.Fatalf("unexpected message: %q", result.Message)
	}

	uploads := srv.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(uploads))
	}
	got := uploads[0]
	if got.Username != "alice" || got.Filename != "selfie.jpg" || got.ContentType != "image/jpeg" {
		t.Fatalf("unexpected upload metadata: %+v", got)
	}
	if !bytes.Equal(got.Data, frame.Data) {
		t.Fatalf("uploaded bytes differ: %v", got.Data)
	}
	if auth := srv.Headers()[0].Get("Authorization"); auth != "Bearer "+creds.Token {
		t.Fatalf("unexpected authorization header: %q", auth)
	}
}

func TestUploadSelfieReturnsStatusError(t *testing.T) {
	client, srv, creds := newClient(t)
	srv.FailUpload(http.StatusInternalServerError)

	_, err := client.UploadSelfie(context.Background(), creds, &capture.Frame{Name: capture.FileName, ContentType: capture.ContentType, Data: []byte("x")})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var statusErr *backend.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", statusErr.StatusCode)
	}
	if op := logging.OperationOf(err); op != "backend.upload_selfie" {
		t.Fatalf("unexpected operation: %s", op)
	}
	if calls := srv.Calls("POST /upload-selfie/:username"); calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestUploadSelfieRejectsInvalidJSON(t *testing.T) {
	client, srv, creds := newClient(t)
	srv.SetUploadBody("<html>gateway page</html>")

	result, err := client.UploadSelfie(context.Background(), creds, &capture.Frame{Name: capture.FileName, ContentType: capture.ContentType, Data: []byte("x")})
	if err == nil {
		t.Fatalf("expected error for non-json body, got result %+v", result)
	}
	if op := logging.OperationOf(err); op != "backend.upload_selfie" {
		t.Fatalf("unexpected operation: %s", op)
	}
}

func TestMatchFacesParsesScore(t *testing.T) {
	client, srv, creds := newClient(t)
	srv.SetScore(0.71)

	result, err := client.MatchFaces(context.Background(), creds)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if result.SimilarityScore != 0.71 {
		t.Fatalf("unexpected score: %v", result.SimilarityScore)
	}
	if !bytes.Contains(result.Raw, []byte(`"username":"alice"`)) {
		t.Fatalf("expected raw body to be kept, got %s", result.Raw)
	}
	headers := srv.Headers()[0]
	if headers.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected content type: %q", headers.Get("Content-Type"))
	}
}

func TestMatchFacesRejectsInvalidJSON(t *testing.T) {
	client, srv, creds := newClient(t)
	srv.SetMatchBody("<html>oops</html>")

	if _, err := client.MatchFaces(context.Background(), creds); err == nil {
		t.Fatal("expected error for non-json body")
	}
}

func TestRequestsWithWrongTokenAreRejected(t *testing.T) {
	client, srv, _ := newClient(t)
	creds := session.Credentials{Username: "alice", Token: srv.IssueToken("mallory")}

	_, err := client.MatchFaces(context.Background(), creds)
	var statusErr *backend.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}
}

func TestGetSelfieReturnsBytes(t *testing.T) {
	client, srv, creds := newClient(t)
	want := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	srv.PutSelfie("alice", want)

	img, err := client.GetSelfie(context.Background(), creds)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if !bytes.Equal(img.Data, want) {
		t.Fatalf("unexpected bytes: %v", img.Data)
	}
	if img.ContentType != "image/jpeg" {
		t.Fatalf("unexpected content type: %s", img.ContentType)
	}
}

func TestGetSelfieNotFound(t *testing.T) {
	client, _, creds := newClient(t)

	_, err := client.GetSelfie(context.Background(), creds)
	var statusErr *backend.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestMissingCredentialsMakeNoRequest(t *testing.T) {
	client, srv, _ := newClient(t)
	ctx := context.Background()
	frame := &capture.Frame{Name: capture.FileName, ContentType: capture.ContentType, Data: []byte("x")}

	for _, creds := range []session.Credentials{{}, {Username: "alice"}, {Token: "tok"}} {
		if _, err := client.UploadSelfie(ctx, creds, frame); !errors.Is(err, session.ErrMissingCredentials) {
			t.Fatalf("expected ErrMissingCredentials, got %v", err)
		}
		if _, err := client.MatchFaces(ctx, creds); !errors.Is(err, session.ErrMissingCredentials) {
			t.Fatalf("expected ErrMissingCredentials, got %v", err)
		}
		if _, err := client.GetSelfie(ctx, creds); !errors.Is(err, session.ErrMissingCredentials) {
			t.Fatalf("expected ErrMissingCredentials, got %v", err)
		}
	}
	if total := srv.TotalCalls(); total != 0 {
		t.Fatalf("expected no requests, got %d", total)
	}
}

func TestTransportFailure(t *testing.T) {
	client, srv, creds := newClient(t)
	srv.Close()

	_, err := client.MatchFaces(context.Background(), creds)
	if err == nil {
		t.Fatal("expected transport error")
	}
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		t.Fatalf("expected transport error, got status %d", statusErr.StatusCode)
	}
}

func TestCanceledContext(t *testing.T) {
	client, _, creds := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.GetSelfie(ctx, creds); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
