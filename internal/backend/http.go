package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/selfie-check/internal/capture"
	"github.com/example/selfie-check/internal/logging"
	"github.com/example/selfie-check/internal/session"
)

const maxErrorBody = 512

// HTTPClient talks to the verification backend over plain HTTP. Every call is single-attempt.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPClient builds a client for baseURL. A zero timeout leaves requests unbounded except by
// the caller's context.
func NewHTTPClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*HTTPClient, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("backend_client"),
	}, nil
}

// UploadSelfie posts the frame as multipart field "file" to /upload-selfie/{username}.
func (c *HTTPClient) UploadSelfie(ctx context.Context, creds session.Credentials, frame *capture.Frame) (*UploadResult, error) {
	const operation = "backend.upload_selfie"
	requestID := uuid.NewString()
	if err := creds.Validate(); err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}
	if frame == nil {
		return nil, logging.NewOperationError(operation, requestID, capture.ErrNoFrame)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, frame.Name))
	header.Set("Content-Type", frame.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, fmt.Errorf("could not create form file: %w", err))
	}
	if _, err := part.Write(frame.Data); err != nil {
		return nil, logging.NewOperationError(operation, requestID, fmt.Errorf("could not write form file: %w", err))
	}
	if err := writer.Close(); err != nil {
		return nil, logging.NewOperationError(operation, requestID, fmt.Errorf("could not close writer: %w", err))
	}

	req, err := c.newRequest(ctx, http.MethodPost, "upload-selfie", creds, &body)
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, _, err := c.do(req, operation, requestID)
	if err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		wrapped := logging.NewOperationError(operation, requestID, fmt.Errorf("could not unmarshal response: %w", err))
		logging.WithOperation(c.logger, operation, requestID).Error("upload response was not json", zap.Error(wrapped))
		return nil, wrapped
	}
	return &result, nil
}

// MatchFaces asks the backend to compare the stored selfie with the reference document.
func (c *HTTPClient) MatchFaces(ctx context.Context, creds session.Credentials) (*MatchResult, error) {
	const operation = "backend.match_faces"
	requestID := uuid.NewString()
	if err := creds.Validate(); err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "match_faces", creds, nil)
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, _, err := c.do(req, operation, requestID)
	if err != nil {
		return nil, err
	}

	var result MatchResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, logging.NewOperationError(operation, requestID, fmt.Errorf("could not unmarshal response: %w", err))
	}
	result.Raw = json.RawMessage(respBody)
	return &result, nil
}

// GetSelfie downloads the stored selfie as raw bytes.
func (c *HTTPClient) GetSelfie(ctx context.Context, creds session.Credentials) (*Image, error) {
	const operation = "backend.get_selfie"
	requestID := uuid.NewString()
	if err := creds.Validate(); err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "get-selfie", creds, nil)
	if err != nil {
		return nil, logging.NewOperationError(operation, requestID, err)
	}

	respBody, contentType, err := c.do(req, operation, requestID)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = http.DetectContentType(respBody)
	}
	return &Image{ContentType: contentType, Data: respBody}, nil
}

func (c *HTTPClient) newRequest(ctx context.Context, method, endpoint string, creds session.Credentials, body io.Reader) (*http.Request, error) {
	target := fmt.Sprintf("%s/%s/%s", c.baseURL, endpoint, url.PathEscape(creds.Username))
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Authorization", creds.AuthorizationHeader())
	return req, nil
}

func (c *HTTPClient) do(req *http.Request, operation, requestID string) ([]byte, string, error) {
	opLogger := logging.WithOperation(c.logger, operation, requestID)
	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		wrapped := logging.NewOperationError(operation, requestID, fmt.Errorf("could not send request: %w", err))
		opLogger.Error("backend request failed", zap.Error(wrapped), zap.String("kind", failureKind(err)))
		return nil, "", wrapped
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(snippet))}
		wrapped := logging.NewOperationError(operation, requestID, statusErr)
		opLogger.Error("backend returned failure status", zap.Int("status", resp.StatusCode), zap.Duration("latency", time.Since(started)))
		return nil, "", wrapped
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		wrapped := logging.NewOperationError(operation, requestID, fmt.Errorf("could not read response body: %w", err))
		opLogger.Error("backend response read failed", zap.Error(wrapped))
		return nil, "", wrapped
	}

	opLogger.Debug("backend request succeeded",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("latency", time.Since(started)),
	)
	return body, resp.Header.Get("Content-Type"), nil
}

// failureKind labels transport errors for logs only; nothing is retried.
func failureKind(err error) string {
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "transport"
}
