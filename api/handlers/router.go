package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the ops HTTP router. history may be nil when the session
// history is disabled.
func NewRouter(sessions *SessionHandler, ws *WebSocketHandler, history *HistoryHandler, log *logrus.Entry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))

	// Enable CORS for browser dashboards
	r.Use(corsMiddleware())

	r.GET("/health", sessions.Health)

	api := r.Group("/api")
	{
		sessions.RegisterRoutes(api)
		if history != nil {
			history.RegisterRoutes(api)
		}
	}

	ws.RegisterRoutes(&r.RouterGroup)
	return r
}

// requestLogger logs each request at debug level.
func requestLogger(log *logrus.Entry) gin.HandlerFunc {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("request")
	}
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "OPTIONS, GET, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
