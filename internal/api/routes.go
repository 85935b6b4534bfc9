package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// modelFamilies is the dispatch surface exposed for discovery. Matching is
// by identifier prefix; anything else falls back to the structured shape.
var modelFamilies = []gin.H{
	{"prefix": "anthropic.", "shape": "messages"},
	{"prefix": "amazon.", "shape": "flattened"},
	{"prefix": "cohere.", "shape": "flattened"},
	{"prefix": "meta.", "shape": "flattened"},
	{"prefix": "mistral.", "shape": "instruction-template"},
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/v1")
	v1.Use(s.apiKeyAuth())
	{
		v1.POST("/chat/completions", s.chatCompletions)
		v1.GET("/models", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"families": modelFamilies})
		})
		v1.GET("/stream", s.wsStream)
	}
}
