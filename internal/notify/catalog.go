package notify

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var messagesYAML []byte

// Message keys in messages.yaml.
const (
	MountHint      = "mount_hint"
	CaptureSuccess = "capture_success"
	UploadSuccess  = "upload_success"
	UploadFailure  = "upload_failure"
	VerifyStarted  = "verify_started"
	VerifyFailure  = "verify_failure"
	FetchSuccess   = "fetch_success"
	FetchFailure   = "fetch_failure"
	VerifiedText   = "verified"
	RetryText      = "retry"
)

// Catalog holds toast copy, toast defaults and navigation targets.
type Catalog struct {
	Toast    ToastDefaults     `yaml:"toast"`
	Messages map[string]string `yaml:"messages"`
	Routes   Routes            `yaml:"routes"`
}

type ToastDefaults struct {
	Position  string        `yaml:"position"`
	AutoClose time.Duration `yaml:"auto_close"`
}

type Routes struct {
	Error string `yaml:"error"`
	Next  string `yaml:"next"`
	Retry string `yaml:"retry"`
}

// DefaultCatalog parses the embedded messages.yaml.
func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog(messagesYAML)
	if err != nil {
		// embedded file, only a broken build gets here
		panic("failed to unmarshal embedded messages.yaml: " + err.Error())
	}
	return catalog
}

// ParseCatalog decodes a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, err
	}
	if catalog.Routes.Error == "" || catalog.Routes.Next == "" || catalog.Routes.Retry == "" {
		return nil, fmt.Errorf("catalog is missing routes")
	}
	return &catalog, nil
}

// Text returns the copy for key, or the key itself when the catalog has no entry.
func (c *Catalog) Text(key string) string {
	if text, ok := c.Messages[key]; ok && text != "" {
		return text
	}
	return key
}

// Notice builds a notification for key at level using the catalog defaults.
func (c *Catalog) Notice(level Level, key string) Notification {
	return Notification{
		Level:     level,
		Message:   c.Text(key),
		Position:  c.Toast.Position,
		AutoClose: c.Toast.AutoClose,
	}
}
