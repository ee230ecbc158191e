// Package http builds the gin router fronting the session gateway.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hungnci/elevate-fitness/internal/gateway"
	"github.com/hungnci/elevate-fitness/internal/storage"
)

// NewRouter wires the health endpoint, the client websocket, and the
// transcript API. transcriptsDir may be empty to disable transcripts.
func NewRouter(wsHandler *gateway.Handler, transcriptsDir string, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/client-ws", func(c *gin.Context) {
		wsHandler.Handle(c.Writer, c.Request)
	})

	if transcriptsDir != "" {
		registerTranscriptRoutes(router, transcriptsDir)
	}

	return router
}

func registerTranscriptRoutes(router *gin.Engine, dir string) {
	router.GET("/transcripts", func(c *gin.Context) {
		userID := c.Query("user_id")
		c.JSON(http.StatusOK, gin.H{"transcripts": storage.ListTranscripts(dir, userID)})
	})

	router.GET("/transcripts/:uid", func(c *gin.Context) {
		userID := c.Query("user_id")
		messages, err := storage.GetTranscript(dir, userID, c.Param("uid"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "transcript not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": messages})
	})

	router.DELETE("/transcripts/:uid", func(c *gin.Context) {
		userID := c.Query("user_id")
		if !storage.DeleteTranscript(dir, userID, c.Param("uid")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transcript not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true})
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		if logger == nil {
			return
		}
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", latency),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}
