package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/selfie-check/internal/capture"
	"github.com/example/selfie-check/internal/notify"
	"github.com/example/selfie-check/internal/preview"
	"github.com/example/selfie-check/internal/screen"
	"github.com/example/selfie-check/internal/session"
	"github.com/example/selfie-check/internal/stats"
)

// MaxCaptureSize bounds the JSON body carrying a webcam screenshot.
const MaxCaptureSize = 10 << 20

// CredentialSource loads the session credentials for an operation.
type CredentialSource interface {
	Load(ctx context.Context) (session.Credentials, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators the routes need.
type Deps struct {
	Screens     *screen.Manager
	Credentials CredentialSource
	Previews    *preview.Registry
	Hub         *notify.Hub
	Stats       *stats.Verifications
	Logger      *zap.Logger
}

type captureRequest struct {
	Image string `json:"image"`
}

type stateResponse struct {
	screen.State
	PreviewHref string `json:"preview_href,omitempty"`
}

// RegisterRoutes wires the screen API to the Gin router.
func RegisterRoutes(router gin.IRouter, deps Deps) {
	h := &handler{deps: deps, logger: deps.Logger.Named("handlers")}

	router.GET("/health", h.health)
	router.GET("/metrics", h.metrics)
	router.GET("/blobs/:id", h.blob)

	router.POST("/screens", h.mount)
	screens := router.Group("/screens/:id", h.loadScreen)
	screens.GET("", h.state)
	screens.DELETE("", h.unmount)
	screens.POST("/camera", h.openCamera)
	screens.POST("/capture", h.capture)
	screens.POST("/verify", h.verify)
	screens.POST("/selfie", h.displaySelfie)
	screens.GET("/events", h.events)
}

type handler struct {
	deps   Deps
	logger *zap.Logger
}

const screenKey = "screen"

func (h *handler) health(c *gin.Context) {
	if err := h.deps.Credentials.Ping(c.Request.Context()); err != nil {
		h.logger.Warn("client storage ping failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "storage": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "screens": h.deps.Screens.Len()})
}

func (h *handler) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Stats.Summary())
}

func (h *handler) blob(c *gin.Context) {
	blob, ok := h.deps.Previews.Get(preview.URL(c.Param("id")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "blob not found"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, blob.ContentType, blob.Data)
}

func (h *handler) mount(c *gin.Context) {
	s := h.deps.Screens.Mount()
	c.JSON(http.StatusCreated, render(s.Snapshot()))
}

func (h *handler) loadScreen(c *gin.Context) {
	s, ok := h.deps.Screens.Get(c.Param("id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "screen not found"})
		return
	}
	c.Set(screenKey, s)
	c.Next()
}

func (h *handler) state(c *gin.Context) {
	c.JSON(http.StatusOK, render(screenFrom(c).Snapshot()))
}

func (h *handler) unmount(c *gin.Context) {
	h.deps.Screens.Unmount(c.Param("id"))
	h.deps.Hub.CloseStream(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *handler) openCamera(c *gin.Context) {
	s := screenFrom(c)
	s.OpenCamera()
	c.JSON(http.StatusOK, render(s.Snapshot()))
}

func (h *handler) capture(c *gin.Context) {
	s := screenFrom(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxCaptureSize)
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "screenshot too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid capture body"})
		return
	}

	creds, ok := h.credentials(c)
	if !ok {
		return
	}
	started := s.Capture(creds, capture.StaticCamera(req.Image))
	c.JSON(http.StatusOK, gin.H{"started": started, "state": render(s.Snapshot())})
}

func (h *handler) verify(c *gin.Context) {
	s := screenFrom(c)
	creds, ok := h.credentials(c)
	if !ok {
		return
	}

	start := time.Now()
	outcome := s.Verify(creds)
	h.deps.Stats.Record(outcome, time.Since(start))
	resp := gin.H{"status": outcome.Status.String(), "state": render(s.Snapshot())}
	if outcome.Status == screen.Failed {
		resp["redirect"] = s.Routes().Error
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) displaySelfie(c *gin.Context) {
	s := screenFrom(c)
	creds, ok := h.credentials(c)
	if !ok {
		return
	}

	outcome := s.DisplaySelfie(creds)
	c.JSON(http.StatusOK, gin.H{"status": outcome.Status.String(), "state": render(s.Snapshot())})
}

func (h *handler) events(c *gin.Context) {
	s := screenFrom(c)
	ch := h.deps.Hub.Subscribe(c.Request.Context(), s.ID())

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-ch
		if !ok {
			return false
		}
		c.SSEvent(ev.Kind, ev)
		return true
	})

	// A closed tab ends the request; once nobody listens the screen is abandoned.
	if c.Request.Context().Err() != nil && h.deps.Hub.SubscriberCount(s.ID()) == 0 {
		if h.deps.Screens.Unmount(s.ID()) {
			h.logger.Info("screen unmounted after last stream closed", zap.String("screen_id", s.ID()))
		}
	}
}

// credentials loads the session pair. Missing keys are not an error here; the screen decides.
// Only a storage failure aborts the request.
func (h *handler) credentials(c *gin.Context) (session.Credentials, bool) {
	creds, err := h.deps.Credentials.Load(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read client storage", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "client storage unavailable"})
		return session.Credentials{}, false
	}
	return creds, true
}

func screenFrom(c *gin.Context) *screen.Screen {
	return c.MustGet(screenKey).(*screen.Screen)
}

func render(st screen.State) stateResponse {
	resp := stateResponse{State: st}
	if st.PreviewURL != "" {
		resp.PreviewHref = "/blobs/" + preview.ID(st.PreviewURL)
	}
	return resp
}
