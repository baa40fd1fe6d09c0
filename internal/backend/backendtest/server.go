// Package backendtest provides an in-process fake of the verification backend for tests.
package backendtest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
)

// Upload is one multipart upload the fake received.
type Upload struct {
	Username    string
	Filename    string
	ContentType string
	Data        []byte
}

// Server is a gin-backed fake of the upload/match/get endpoints. Zero-valued status fields mean
// success. All fields are guarded by the server mutex; use the setters while requests are live.
type Server struct {
	*httptest.Server

	secret []byte

	mu            sync.Mutex
	score         float64
	matchBody     string
	uploadBody    string
	uploadStatus  int
	matchStatus   int
	getStatus     int
	uploadGate    chan struct{}
	uploadStarted chan struct{}
	selfies       map[string][]byte
	uploads       []Upload
	calls         map[string]int
	headers       []http.Header
}

// NewServer starts a fake backend. Close it with t.Cleanup(srv.Close).
func NewServer() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		secret:  []byte("backendtest-secret"),
		score:   0.9,
		selfies: make(map[string][]byte),
		calls:   make(map[string]int),
	}

	router := gin.New()
	router.Use(s.count())
	authed := router.Group("/", s.bearerAuth())
	authed.POST("/upload-selfie/:username", s.uploadSelfie)
	authed.POST("/match_faces/:username", s.matchFaces)
	authed.GET("/get-selfie/:username", s.getSelfie)

	s.Server = httptest.NewServer(router)
	return s
}

// SetScore sets the similarity score returned by match_faces.
func (s *Server) SetScore(score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.score = score
	s.matchBody = ""
}

// SetMatchBody overrides the raw match_faces response body.
func (s *Server) SetMatchBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchBody = body
}

// SetUploadBody overrides the raw upload-selfie response body of a successful upload.
func (s *Server) SetUploadBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadBody = body
}

// FailUpload makes upload-selfie respond with status.
func (s *Server) FailUpload(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadStatus = status
}

// FailMatch makes match_faces respond with status.
func (s *Server) FailMatch(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchStatus = status
}

// FailGet makes get-selfie respond with status.
func (s *Server) FailGet(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getStatus = status
}

// HoldUploads blocks upload handlers until the returned release func is called. The started
// channel receives once per upload that reached the handler; signals beyond its buffer are
// dropped rather than blocking the handler.
func (s *Server) HoldUploads() (started <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	startedCh := make(chan struct{}, 16)
	s.uploadGate = gate
	s.uploadStarted = startedCh
	var once sync.Once
	return startedCh, func() { once.Do(func() { close(gate) }) }
}

// PutSelfie seeds the stored selfie for username.
func (s *Server) PutSelfie(username string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfies[username] = append([]byte(nil), data...)
}

// Calls returns how many requests hit route, e.g. "POST /upload-selfie/:username".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls returns the number of requests of any kind.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Uploads returns a copy of the received uploads.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Headers returns the request headers seen so far, in arrival order.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

func (s *Server) count() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.calls[c.Request.Method+" "+c.FullPath()]++
		s.headers = append(s.headers, c.Request.Header.Clone())
		s.mu.Unlock()
		c.Next()
	}
}

func (s *Server) uploadSelfie(c *gin.Context) {
	s.mu.Lock()
	gate, started, status, rawBody := s.uploadGate, s.uploadStarted, s.uploadStatus, s.uploadBody
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-c.Request.Context().Done():
			return
		}
	}
	if status != 0 {
		c.JSON(status, gin.H{"detail": "upload failed"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "file is required"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "unable to open file"})
		return
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to read file"})
		return
	}

	username := c.Param("username")
	s.mu.Lock()
	s.selfies[username] = data
	s.uploads = append(s.uploads, Upload{
		Username:    username,
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	})
	s.mu.Unlock()

	if rawBody != "" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(rawBody))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Selfie uploaded for " + username})
}

func (s *Server) matchFaces(c *gin.Context) {
	s.mu.Lock()
	status, score, body := s.matchStatus, s.score, s.matchBody
	s.mu.Unlock()

	if status != 0 {
		c.JSON(status, gin.H{"detail": "match failed"})
		return
	}
	if body != "" {
		c.Data(http.StatusOK, "application/json", []byte(body))
		return
	}
	c.JSON(http.StatusOK, gin.H{"similarity_score": score, "username": c.Param("username")})
}

func (s *Server) getSelfie(c *gin.Context) {
	s.mu.Lock()
	status := s.getStatus
	data, ok := s.selfies[c.Param("username")]
	s.mu.Unlock()

	if status != 0 {
		c.JSON(status, gin.H{"detail": "get failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"detail": "selfie not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
