package screen

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/selfie-check/internal/backend"
	"github.com/example/selfie-check/internal/backend/backendtest"
	"github.com/example/selfie-check/internal/capture"
	"github.com/example/selfie-check/internal/notify"
	"github.com/example/selfie-check/internal/preview"
	"github.com/example/selfie-check/internal/session"
)

var (
	selfieBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'f', 'a', 'c', 'e', 0xFF, 0xD9}
	frameURI    = capture.StaticCamera("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(selfieBytes))
	catalog     = notify.DefaultCatalog()
)

type stubClient struct {
	mu        sync.Mutex
	uploadErr error
	matchErr  error
	getErr    error
	match     *backend.MatchResult
	image     *backend.Image
	calls     int
}

func (s *stubClient) UploadSelfie(ctx context.Context, creds session.Credentials, frame *capture.Frame) (*backend.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	return &backend.UploadResult{Message: "ok"}, nil
}

func (s *stubClient) MatchFaces(ctx context.Context, creds session.Credentials) (*backend.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.matchErr != nil {
		return nil, s.matchErr
	}
	return s.match, nil
}

func (s *stubClient) GetSelfie(ctx context.Context, creds session.Credentials) (*backend.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.image, nil
}

func (s *stubClient) setMatchErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchErr = err
}

type fixture struct {
	screen   *Screen
	rec      *notify.Recorder
	previews *preview.Registry
	srv      *backendtest.Server
	creds    session.Credentials
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := backendtest.NewServer()
	t.Cleanup(srv.Close)

	client, err := backend.NewHTTPClient(srv.URL, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	f := newStubFixture(t, client)
	f.srv = srv
	f.creds = session.Credentials{Username: "alice", Token: srv.IssueToken("alice")}
	return f
}

func newStubFixture(t *testing.T, client backend.Client) *fixture {
	t.Helper()
	rec := &notify.Recorder{}
	previews := preview.NewRegistry()
	s := New(context.Background(), "screen-1", Options{
		Client:   client,
		Previews: previews,
		Catalog:  catalog,
		Logger:   zap.NewNop(),
	}, rec)
	s.Mount()
	t.Cleanup(func() {
		s.Unmount()
		s.Wait()
	})
	return &fixture{
		screen:   s,
		rec:      rec,
		previews: previews,
		creds:    session.Credentials{Username: "alice", Token: "tok"},
	}
}

func TestMountShowsReloadHint(t *testing.T) {
	f := newStubFixture(t, &stubClient{})
	f.screen.Mount()

	if n := f.rec.Count(notify.LevelInfo, catalog.Text(notify.MountHint)); n != 1 {
		t.Fatalf("expected one reload hint, got %d", n)
	}
}

func TestMissingCredentialsMakeNoNetworkCalls(t *testing.T) {
	cases := map[string]session.Credentials{
		"no username": {Token: "tok"},
		"no token":    {Username: "alice"},
		"neither":     {},
	}

	for name, creds := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)

			f.screen.OpenCamera()
			if !f.screen.Capture(creds, frameURI) {
				t.Fatal("expected capture to proceed to the upload step")
			}
			f.screen.Wait()

			if out := f.screen.Verify(creds); out.Status != Skipped {
				t.Fatalf("expected verify to be skipped, got %s", out.Status)
			}
			if out := f.screen.DisplaySelfie(creds); out.Status != Skipped {
				t.Fatalf("expected fetch to be skipped, got %s", out.Status)
			}

			if total := f.srv.TotalCalls(); total != 0 {
				t.Fatalf("expected zero network calls, got %d", total)
			}
			if n := f.rec.Count(notify.LevelError, ""); n != 0 {
				t.Fatalf("missing credentials must not surface errors, got %d", n)
			}
			if navs := f.rec.Navigations(); len(navs) != 0 {
				t.Fatalf("expected no navigation, got %v", navs)
			}
		})
	}
}

func TestVerifyThresholdIsStrict(t *testing.T) {
	cases := []struct {
		score  float64
		branch Branch
		route  string
	}{
		{score: 0.71, branch: BranchVerified, route: "/scancard"},
		{score: 0.70, branch: BranchRetry, route: "/selfie"},
		{score: 0.2, branch: BranchRetry, route: "/selfie"},
	}

	for _, tc := range cases {
		f := newFixture(t)
		f.srv.SetScore(tc.score)

		out := f.screen.Verify(f.creds)
		if out.Status != Succeeded {
			t.Fatalf("score %v: expected success, got %s (%v)", tc.score, out.Status, out.Err)
		}
		st := f.screen.Snapshot()
		if st.Result == nil {
			t.Fatalf("score %v: expected result in state", tc.score)
		}
		if st.Result.Branch != tc.branch || st.Result.Route != tc.route {
			t.Fatalf("score %v: expected %s -> %s, got %s -> %s", tc.score, tc.branch, tc.route, st.Result.Branch, st.Result.Route)
		}
		if navs := f.rec.Navigations(); len(navs) != 0 {
			t.Fatalf("score %v: result branches are links, not navigation; got %v", tc.score, navs)
		}
		if n := f.rec.Count(notify.LevelInfo, catalog.Text(notify.VerifyStarted)); n != 1 {
			t.Fatalf("expected one start notification, got %d", n)
		}
	}
}

func TestCaptureWhileUploadPendingIsIgnored(t *testing.T) {
	f := newFixture(t)
	started, release := f.srv.HoldUploads()
	defer release()

	f.screen.OpenCamera()
	if !f.screen.Capture(f.creds, frameURI) {
		t.Fatal("expected first capture to start an upload")
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("upload did not reach the backend")
	}
	if !f.screen.Snapshot().Uploading {
		t.Fatal("expected uploading state while the request is pending")
	}

	f.screen.OpenCamera()
	if f.screen.Capture(f.creds, frameURI) {
		t.Fatal("expected second capture to be ignored")
	}

	release()
	f.screen.Wait()

	if calls := f.srv.Calls("POST /upload-selfie/:username"); calls != 1 {
		t.Fatalf("expected one upload request, got %d", calls)
	}
	if f.screen.Snapshot().Uploading {
		t.Fatal("expected uploading state to clear after settle")
	}

	// the flag is released once the first upload settles
	if !f.screen.Capture(f.creds, frameURI) {
		t.Fatal("expected capture to work again after the upload settled")
	}
	f.screen.Wait()
	if calls := f.srv.Calls("POST /upload-selfie/:username"); calls != 2 {
		t.Fatalf("expected two upload requests, got %d", calls)
	}
}

func TestCaptureUploadsAndClosesCamera(t *testing.T) {
	f := newFixture(t)

	f.screen.OpenCamera()
	if !f.screen.Capture(f.creds, frameURI) {
		t.Fatal("expected capture to start an upload")
	}
	if f.screen.Snapshot().CameraOpen {
		t.Fatal("expected camera to close on capture")
	}
	f.screen.Wait()

	uploads := f.srv.Uploads()
	if len(uploads) != 1 || !bytes.Equal(uploads[0].Data, selfieBytes) || uploads[0].Filename != "selfie.jpg" {
		t.Fatalf("unexpected uploads: %+v", uploads)
	}

	notes := f.rec.Notifications()
	var order []string
	for _, n := range notes {
		order = append(order, n.Message)
	}
	want := []string{catalog.Text(notify.MountHint), catalog.Text(notify.CaptureSuccess), catalog.Text(notify.UploadSuccess)}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestUploadFailureShowsErrorOnly(t *testing.T) {
	f := newFixture(t)
	f.srv.FailUpload(http.StatusInternalServerError)

	f.screen.OpenCamera()
	f.screen.Capture(f.creds, frameURI)
	f.screen.Wait()

	if n := f.rec.Count(notify.LevelError, catalog.Text(notify.UploadFailure)); n != 1 {
		t.Fatalf("expected one upload error toast, got %d", n)
	}
	if n := f.rec.Count(notify.LevelSuccess, catalog.Text(notify.UploadSuccess)); n != 0 {
		t.Fatalf("expected no upload success toast, got %d", n)
	}
	if calls := f.srv.Calls("POST /upload-selfie/:username"); calls != 1 {
		t.Fatalf("expected no retry, got %d requests", calls)
	}
}

func TestUploadWithNonJSONResponseShowsError(t *testing.T) {
	f := newFixture(t)
	f.srv.SetUploadBody("<html>gateway page</html>")

	outcome := Upload(context.Background(), f.screen.client, f.creds, &capture.Frame{Name: capture.FileName, ContentType: capture.ContentType, Data: selfieBytes})
	if outcome.Status != Failed || outcome.Err == nil {
		t.Fatalf("expected failed upload, got %v (%v)", outcome.Status, outcome.Err)
	}

	f.screen.OpenCamera()
	f.screen.Capture(f.creds, frameURI)
	f.screen.Wait()

	if n := f.rec.Count(notify.LevelError, catalog.Text(notify.UploadFailure)); n != 1 {
		t.Fatalf("expected one upload error toast, got %d", n)
	}
	if n := f.rec.Count(notify.LevelSuccess, catalog.Text(notify.UploadSuccess)); n != 0 {
		t.Fatalf("expected no upload success toast, got %d", n)
	}
}

func TestCaptureWithoutFrameIsNoop(t *testing.T) {
	client := &stubClient{}
	f := newStubFixture(t, client)

	f.screen.OpenCamera()
	if f.screen.Capture(f.creds, capture.StaticCamera("")) {
		t.Fatal("expected capture without frame to be a no-op")
	}
	if f.screen.Capture(f.creds, capture.StaticCamera("garbage")) {
		t.Fatal("expected capture with malformed frame to be a no-op")
	}
	if !f.screen.Snapshot().CameraOpen {
		t.Fatal("camera should stay open when no frame was taken")
	}
	if len(f.rec.Notifications()) != 1 {
		t.Fatalf("expected only the mount hint, got %+v", f.rec.Notifications())
	}

	if !f.screen.Capture(f.creds, frameURI) {
		t.Fatal("expected a later capture with a frame to proceed")
	}
	f.screen.Wait()
	if client.calls != 1 {
		t.Fatalf("expected one upload, got %d", client.calls)
	}
}

func TestCaptureRequiresOpenCamera(t *testing.T) {
	client := &stubClient{}
	f := newStubFixture(t, client)

	if f.screen.Capture(f.creds, frameURI) {
		t.Fatal("expected capture with closed camera to be ignored")
	}
	if client.calls != 0 {
		t.Fatalf("expected no upload, got %d", client.calls)
	}
}

func TestVerifyNetworkFailureNavigatesOnce(t *testing.T) {
	client := &stubClient{match: &backend.MatchResult{SimilarityScore: 0.9, Raw: []byte(`{"similarity_score":0.9}`)}}
	f := newStubFixture(t, client)

	if out := f.screen.Verify(f.creds); out.Status != Succeeded {
		t.Fatalf("expected first verify to succeed, got %s", out.Status)
	}
	client.setMatchErr(errors.New("dial tcp: connection refused"))

	out := f.screen.Verify(f.creds)
	if out.Status != Failed {
		t.Fatalf("expected failure, got %s", out.Status)
	}

	if navs := f.rec.Navigations(); len(navs) != 1 || navs[0] != "/error" {
		t.Fatalf("expected a single navigation to /error, got %v", navs)
	}
	if n := f.rec.Count(notify.LevelError, catalog.Text(notify.VerifyFailure)); n != 1 {
		t.Fatalf("expected one verification error toast, got %d", n)
	}
	st := f.screen.Snapshot()
	if st.Result == nil || st.Result.SimilarityScore != 0.9 {
		t.Fatalf("expected previous result to stay, got %+v", st.Result)
	}
	if st.Error != "Network request failed" {
		t.Fatalf("unexpected error text: %q", st.Error)
	}
	if client.calls != 2 {
		t.Fatalf("expected no retry, got %d calls", client.calls)
	}

	client.setMatchErr(nil)
	f.screen.Verify(f.creds)
	if st := f.screen.Snapshot(); st.Error != "" {
		t.Fatalf("expected success to clear the error, got %q", st.Error)
	}
}

func TestVerifyStatusFailureKeepsStatusText(t *testing.T) {
	f := newFixture(t)
	f.srv.FailMatch(http.StatusBadGateway)

	f.screen.Verify(f.creds)

	if st := f.screen.Snapshot(); st.Error != "Network response was not ok: Bad Gateway" || st.Result != nil {
		t.Fatalf("unexpected state: %+v", st)
	}
	if navs := f.rec.Navigations(); len(navs) != 1 {
		t.Fatalf("expected one navigation, got %v", navs)
	}
}

func TestDisplaySelfieIsByteForByte(t *testing.T) {
	f := newFixture(t)
	f.srv.PutSelfie("alice", selfieBytes)

	if out := f.screen.DisplaySelfie(f.creds); out.Status != Succeeded {
		t.Fatalf("expected success, got %s (%v)", out.Status, out.Err)
	}
	first := f.screen.Snapshot().PreviewURL
	blob, ok := f.previews.Get(first)
	if !ok || !bytes.Equal(blob.Data, selfieBytes) {
		t.Fatalf("preview does not hold the downloaded bytes: %v", blob.Data)
	}

	latest := []byte{0xFF, 0xD8, 'n', 'e', 'w', 0xFF, 0xD9}
	f.srv.PutSelfie("alice", latest)
	f.screen.DisplaySelfie(f.creds)

	second := f.screen.Snapshot().PreviewURL
	if second == first {
		t.Fatal("expected a fresh preview url")
	}
	if _, ok := f.previews.Get(first); ok {
		t.Fatal("expected the replaced preview to be revoked")
	}
	blob, ok = f.previews.Get(second)
	if !ok || !bytes.Equal(blob.Data, latest) {
		t.Fatalf("preview does not hold the latest bytes: %v", blob.Data)
	}
	if n := f.rec.Count(notify.LevelSuccess, catalog.Text(notify.FetchSuccess)); n != 2 {
		t.Fatalf("expected two fetch success toasts, got %d", n)
	}
}

func TestDisplaySelfieFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.FailGet(http.StatusInternalServerError)

	if out := f.screen.DisplaySelfie(f.creds); out.Status != Failed {
		t.Fatalf("expected failure, got %s", out.Status)
	}
	if n := f.rec.Count(notify.LevelError, catalog.Text(notify.FetchFailure)); n != 1 {
		t.Fatalf("expected one fetch error toast, got %d", n)
	}
	if st := f.screen.Snapshot(); st.PreviewURL != "" {
		t.Fatalf("expected no preview, got %s", st.PreviewURL)
	}
	if navs := f.rec.Navigations(); len(navs) != 0 {
		t.Fatalf("fetch failures do not navigate, got %v", navs)
	}
}

func TestUnmountDropsLateUploadResult(t *testing.T) {
	f := newFixture(t)
	f.srv.PutSelfie("alice", selfieBytes)
	f.screen.DisplaySelfie(f.creds)
	previewURL := f.screen.Snapshot().PreviewURL

	started, release := f.srv.HoldUploads()
	defer release()

	f.screen.OpenCamera()
	f.screen.Capture(f.creds, frameURI)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("upload did not reach the backend")
	}

	before := len(f.rec.Events())
	f.screen.Unmount()
	f.screen.Wait()

	if after := len(f.rec.Events()); after != before {
		t.Fatalf("expected no events after unmount, got %+v", f.rec.Events()[before:])
	}
	if _, ok := f.previews.Get(previewURL); ok {
		t.Fatal("expected preview to be revoked on unmount")
	}
	if out := f.screen.Verify(f.creds); out.Status != Skipped {
		t.Fatalf("expected verify on unmounted screen to be skipped, got %s", out.Status)
	}
}

func TestClassify(t *testing.T) {
	cases := map[float64]Branch{
		0:     BranchRetry,
		0.7:   BranchRetry,
		0.701: BranchVerified,
		1:     BranchVerified,
	}
	for score, want := range cases {
		if got := Classify(score); got != want {
			t.Fatalf("score %v: expected %s, got %s", score, want, got)
		}
	}
}

func TestOutcomeFunctionsSkipWithoutCredentials(t *testing.T) {
	client := &stubClient{}
	ctx := context.Background()

	if out := Upload(ctx, client, session.Credentials{Username: "alice"}, &capture.Frame{}); out.Status != Skipped || !errors.Is(out.Err, session.ErrMissingToken) {
		t.Fatalf("unexpected upload outcome: %+v", out)
	}
	if out := Verify(ctx, client, session.Credentials{Token: "tok"}); out.Status != Skipped || !errors.Is(out.Err, session.ErrMissingUsername) {
		t.Fatalf("unexpected verify outcome: %+v", out)
	}
	if out := Fetch(ctx, client, session.Credentials{}); out.Status != Skipped {
		t.Fatalf("unexpected fetch outcome: %+v", out)
	}
	if client.calls != 0 {
		t.Fatalf("expected no client calls, got %d", client.calls)
	}
}
