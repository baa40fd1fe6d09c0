package handlers

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS lets the browser front end call the screen API. An empty origin list allows any origin
// without credentials.
func CORS(origins []string) gin.HandlerFunc {
	var cleaned []string
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}

	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"authorization", "accept", "content-type", "origin", "cache-control", "last-event-id",
		},
		MaxAge: 24 * time.Hour,
	}
	if len(cleaned) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = cleaned
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
