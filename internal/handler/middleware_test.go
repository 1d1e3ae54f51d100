package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/quillchat/quill/internal/log"
)

func TestRequestLoggerAssignsRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestLogger())
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("no %s header on response", RequestIDHeader)
	}
}

func TestRequestLoggerEchoesInboundRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestLogger())
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "req-42" {
		t.Fatalf("%s = %q, want req-42", RequestIDHeader, got)
	}
}

func TestRequestLoggerEnrichesContextLogger(t *testing.T) {
	var buf bytes.Buffer

	engine := gin.New()
	engine.Use(RequestLogger())
	engine.GET("/ping", func(c *gin.Context) {
		// Output preserves accumulated fields, so the request-scoped
		// logger's metadata is observable here.
		l := log.Ctx(c.Request.Context()).Output(&buf)
		l.Info().Msg("handled")
		c.String(http.StatusOK, "pong")
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	engine.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-42"`) {
		t.Fatalf("context logger missing request id, output: %q", out)
	}
	if !strings.Contains(out, `"path":"/ping"`) {
		t.Fatalf("context logger missing request metadata, output: %q", out)
	}
}
