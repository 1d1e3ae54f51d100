package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quillchat/quill/internal/log"
)

// RequestIDHeader carries the request correlation ID, generated when the
// client does not supply one.
const RequestIDHeader = "X-Request-ID"

// CORS allows the configured client origin with credentials. An empty
// origin config disables cross-origin access entirely.
func CORS(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if allowedOrigin != "" && origin == allowedOrigin {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, HEAD, PUT, PATCH, POST, DELETE")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestLogger builds a request-scoped logger carrying the correlation ID
// and request metadata, stores it in the request context so downstream
// log.Ctx calls resolve to it, and emits one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(RequestIDHeader, requestID)

		l := log.L().With().
			Str(log.FieldRequestID, requestID).
			Str(log.FieldMethod, c.Request.Method).
			Str(log.FieldPath, c.Request.URL.Path).
			Logger()
		c.Request = c.Request.WithContext(log.WithLogger(c.Request.Context(), l))

		c.Next()

		l.Info().
			Int(log.FieldStatus, c.Writer.Status()).
			Int64(log.FieldLatency, time.Since(start).Milliseconds()).
			Str(log.FieldClientIP, c.ClientIP()).
			Msg("request")
	}
}
