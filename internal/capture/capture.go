// Package capture turns webcam screenshots into the JPEG payload that gets uploaded.
package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Selfie file metadata sent with every upload.
const (
	FileName    = "selfie.jpg"
	ContentType = "image/jpeg"
)

var (
	// ErrNoFrame means the camera had nothing to hand out yet.
	ErrNoFrame = errors.New("no frame available")
	// ErrMalformedDataURI means the screenshot was not a base64 data URI.
	ErrMalformedDataURI = errors.New("malformed data uri")
)

// Camera is the webcam widget. Screenshot returns a data URI, or "" while the stream is not ready.
type Camera interface {
	Screenshot() string
}

// Frame is one decoded still image, held only until its upload settles.
type Frame struct {
	Name        string
	ContentType string
	Data        []byte
}

// Grab takes one screenshot from cam and decodes it.
func Grab(cam Camera) (*Frame, error) {
	if cam == nil {
		return nil, ErrNoFrame
	}
	src := cam.Screenshot()
	if src == "" {
		return nil, ErrNoFrame
	}
	return Decode(src)
}

// Decode unpacks a data URI of the form "data:<mime>;base64,<payload>". Only the payload after
// the first comma is used; the declared mime type is ignored and the frame is always selfie.jpg.
func Decode(dataURI string) (*Frame, error) {
	_, payload, ok := strings.Cut(dataURI, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing payload separator", ErrMalformedDataURI)
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrNoFrame
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some widgets strip padding
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDataURI, err)
		}
	}

	return &Frame{Name: FileName, ContentType: ContentType, Data: data}, nil
}

// Encode builds a JPEG data URI from raw bytes.
func Encode(data []byte) string {
	return "data:" + ContentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// StaticCamera hands out one fixed screenshot, which is how frames pushed by a browser widget
// reach the screen.
type StaticCamera string

func (c StaticCamera) Screenshot() string {
	return string(c)
}

// FileCamera reads a JPEG from disk on every screenshot. Read errors look like an unready stream.
type FileCamera struct {
	Path string
}

func (c FileCamera) Screenshot() string {
	data, err := os.ReadFile(c.Path)
	if err != nil || len(data) == 0 {
		return ""
	}
	return Encode(data)
}
