// Package screen implements the selfie step of the verification flow as a view with typed
// operations. Operations compute an outcome first and render it afterwards.
package screen

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/example/selfie-check/internal/backend"
	"github.com/example/selfie-check/internal/capture"
	"github.com/example/selfie-check/internal/logging"
	"github.com/example/selfie-check/internal/notify"
	"github.com/example/selfie-check/internal/preview"
	"github.com/example/selfie-check/internal/session"
)

// Result is the verification result as held in view state.
type Result struct {
	SimilarityScore float64         `json:"similarity_score"`
	Branch          Branch          `json:"branch"`
	Route           string          `json:"route"`
	Text            string          `json:"text"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

// State is a point-in-time copy of the view.
type State struct {
	ID         string  `json:"id"`
	Mounted    bool    `json:"mounted"`
	CameraOpen bool    `json:"camera_open"`
	Uploading  bool    `json:"uploading"`
	Verifying  bool    `json:"verifying"`
	Fetching   bool    `json:"fetching"`
	Result     *Result `json:"result,omitempty"`
	Error      string  `json:"error,omitempty"`
	PreviewURL string  `json:"preview_url,omitempty"`
}

// Options are the collaborators shared by every screen.
type Options struct {
	Client   backend.Client
	Previews *preview.Registry
	Catalog  *notify.Catalog
	Logger   *zap.Logger
}

// Screen is one mounted selfie screen.
type Screen struct {
	id       string
	client   backend.Client
	previews *preview.Registry
	catalog  *notify.Catalog
	renderer notify.Renderer
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// uploading is the capture debounce: set before dispatch, cleared when the upload settles.
	uploading atomic.Bool
	wg        sync.WaitGroup

	mu        sync.Mutex
	mounted   bool
	camera    bool
	verifying int
	fetching  int
	result    *Result
	errText   string
	preview   string
}

// New builds an unmounted screen. In-flight requests are canceled when ctx ends or on Unmount.
func New(ctx context.Context, id string, opts Options, renderer notify.Renderer) *Screen {
	screenCtx, cancel := context.WithCancel(ctx)
	catalog := opts.Catalog
	if catalog == nil {
		catalog = notify.DefaultCatalog()
	}
	previews := opts.Previews
	if previews == nil {
		previews = preview.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Screen{
		id:       id,
		client:   opts.Client,
		previews: previews,
		catalog:  catalog,
		renderer: renderer,
		logger:   logging.WithScreen(logger.Named("screen"), id),
		ctx:      screenCtx,
		cancel:   cancel,
	}
}

func (s *Screen) ID() string { return s.id }

// Mount activates the screen and shows the reload hint.
func (s *Screen) Mount() {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = true
	s.mu.Unlock()

	s.renderer.Notify(s.catalog.Notice(notify.LevelInfo, notify.MountHint))
}

// Unmount cancels in-flight requests and releases the preview. Completions that arrive later are
// dropped.
func (s *Screen) Unmount() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		s.cancel()
		return
	}
	s.mounted = false
	s.camera = false
	previewURL := s.preview
	s.preview = ""
	s.mu.Unlock()

	s.cancel()
	s.previews.Revoke(previewURL)
}

// Wait blocks until background uploads have settled.
func (s *Screen) Wait() {
	s.wg.Wait()
}

// OpenCamera shows the camera view.
func (s *Screen) OpenCamera() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted {
		s.camera = true
	}
}

// Snapshot copies the current view state.
func (s *Screen) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		ID:         s.id,
		Mounted:    s.mounted,
		CameraOpen: s.camera,
		Uploading:  s.uploading.Load(),
		Verifying:  s.verifying > 0,
		Fetching:   s.fetching > 0,
		Error:      s.errText,
		PreviewURL: s.preview,
	}
	if s.result != nil {
		r := *s.result
		r.Raw = append(json.RawMessage(nil), s.result.Raw...)
		st.Result = &r
	}
	return st
}

// Capture grabs one frame from cam and starts uploading it in the background. It reports
// whether an upload was started. While an earlier upload is pending, or when the camera is
// closed or has no frame, it does nothing.
//
// The "Selfie captured" toast is shown as soon as the frame decodes, before the upload result
// is known.
func (s *Screen) Capture(creds session.Credentials, cam capture.Camera) bool {
	if !s.uploading.CompareAndSwap(false, true) {
		s.logger.Debug("capture ignored, upload in flight")
		return false
	}

	s.mu.Lock()
	ready := s.mounted && s.camera
	s.mu.Unlock()
	if !ready {
		s.uploading.Store(false)
		s.logger.Debug("capture ignored, camera not open")
		return false
	}

	frame, err := capture.Grab(cam)
	if err != nil {
		s.uploading.Store(false)
		s.logger.Debug("capture produced no frame", zap.Error(err))
		return false
	}

	s.mu.Lock()
	s.camera = false
	s.mu.Unlock()
	s.renderer.Notify(s.catalog.Notice(notify.LevelSuccess, notify.CaptureSuccess))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		outcome := Upload(s.ctx, s.client, creds, frame)
		s.settleUpload(outcome)
	}()
	return true
}

func (s *Screen) settleUpload(outcome UploadOutcome) {
	s.mu.Lock()
	mounted := s.mounted
	s.mu.Unlock()
	s.uploading.Store(false)

	opLogger := logging.WithOperation(s.logger, "screen.upload", "")
	if !mounted {
		opLogger.Debug("upload settled after unmount", zap.Stringer("status", outcome.Status))
		return
	}

	switch outcome.Status {
	case Skipped:
		opLogger.Warn("username or token not found in client storage", zap.Error(outcome.Err))
	case Succeeded:
		opLogger.Info("selfie uploaded", zap.String("message", outcome.Message))
	case Failed:
		opLogger.Error("error uploading selfie", zap.Error(outcome.Err))
	}
	RenderUpload(s.renderer, s.catalog, outcome)
}

// Verify submits the verification form. On failure the previous result stays in place and the
// user is sent to the error route.
func (s *Screen) Verify(creds session.Credentials) VerifyOutcome {
	opLogger := logging.WithOperation(s.logger, "screen.verify", "")
	if !s.isMounted() {
		return VerifyOutcome{Status: Skipped, Err: errUnmounted}
	}
	if err := creds.Validate(); err != nil {
		opLogger.Warn("verification not started", zap.Error(err))
		return VerifyOutcome{Status: Skipped, Err: err}
	}

	s.renderer.Notify(s.catalog.Notice(notify.LevelInfo, notify.VerifyStarted))

	s.mu.Lock()
	s.verifying++
	s.mu.Unlock()

	outcome := Verify(s.ctx, s.client, creds)

	s.mu.Lock()
	s.verifying--
	if !s.mounted {
		s.mu.Unlock()
		opLogger.Debug("verification settled after unmount", zap.Stringer("status", outcome.Status))
		return outcome
	}
	switch outcome.Status {
	case Succeeded:
		s.result = NewResult(s.catalog, outcome.Result)
		s.errText = ""
	case Failed:
		s.errText = errorText(outcome.Err)
	}
	s.mu.Unlock()

	switch outcome.Status {
	case Succeeded:
		opLogger.Info("verification result received",
			zap.Float64("similarity_score", outcome.Result.SimilarityScore),
			zap.String("branch", string(Classify(outcome.Result.SimilarityScore))),
		)
	case Failed:
		opLogger.Error("verification failed", zap.Error(outcome.Err))
	}
	RenderVerify(s.renderer, s.catalog, outcome)
	return outcome
}

// DisplaySelfie downloads the stored selfie and replaces the preview with it.
func (s *Screen) DisplaySelfie(creds session.Credentials) FetchOutcome {
	opLogger := logging.WithOperation(s.logger, "screen.display_selfie", "")
	if !s.isMounted() {
		return FetchOutcome{Status: Skipped, Err: errUnmounted}
	}
	if err := creds.Validate(); err != nil {
		opLogger.Warn("username or token not found in client storage", zap.Error(err))
		return FetchOutcome{Status: Skipped, Err: err}
	}

	s.mu.Lock()
	s.fetching++
	s.mu.Unlock()

	outcome := Fetch(s.ctx, s.client, creds)

	s.mu.Lock()
	s.fetching--
	if !s.mounted {
		s.mu.Unlock()
		return outcome
	}
	var stale string
	if outcome.Status == Succeeded {
		stale = s.preview
		s.preview = s.previews.Create(outcome.Image.Data, outcome.Image.ContentType)
	}
	s.mu.Unlock()

	switch outcome.Status {
	case Succeeded:
		s.previews.Revoke(stale)
	case Failed:
		opLogger.Error("error fetching selfie image", zap.Error(outcome.Err))
	}
	RenderFetch(s.renderer, s.catalog, outcome)
	return outcome
}

var errUnmounted = errors.New("screen is not mounted")

func (s *Screen) isMounted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mounted
}

// NewResult classifies a match and attaches the route and copy for its branch.
func NewResult(c *notify.Catalog, match *backend.MatchResult) *Result {
	branch := Classify(match.SimilarityScore)
	r := &Result{
		SimilarityScore: match.SimilarityScore,
		Branch:          branch,
		Raw:             append(json.RawMessage(nil), match.Raw...),
	}
	if branch == BranchVerified {
		r.Route = c.Routes.Next
		r.Text = c.Text(notify.VerifiedText)
	} else {
		r.Route = c.Routes.Retry
		r.Text = c.Text(notify.RetryText)
	}
	return r
}

// Routes returns the navigation targets this screen uses.
func (s *Screen) Routes() notify.Routes {
	return s.catalog.Routes
}
