package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/gridstore/errors"
	"github.com/kbukum/gridstore/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	e := gin.New()
	e.Use(mw...)
	return e
}

func do(e *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	e := newEngine(RequestID())
	e.GET("/", func(c *gin.Context) { seen = GetRequestID(c) })

	w := do(e, httptest.NewRequest(http.MethodGet, "/", nil))
	id := w.Header().Get(HeaderRequestID)
	if id == "" {
		t.Fatal("expected generated request id")
	}
	if seen != id {
		t.Errorf("context id %q != header id %q", seen, id)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	e := newEngine(RequestID())
	e.GET("/", func(c *gin.Context) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	if got := do(e, req).Header().Get(HeaderRequestID); got != "req-42" {
		t.Errorf("expected propagated id, got %q", got)
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "error", Format: "json"}, "gridstore", &buf)
	e := newEngine(RequestID(), Recovery(log))
	e.GET("/", func(c *gin.Context) { panic("boom") })

	w := do(e, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var resp apperrors.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != apperrors.ErrCodeInternal {
		t.Errorf("code = %s", resp.Error.Code)
	}
	if !strings.Contains(buf.String(), "Panic recovered") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected panic logged, got %q", buf.String())
	}
}

func TestCORS(t *testing.T) {
	cfg := CORSConfig{
		AllowedOrigins:   []string{"https://app.example.com"},
		AllowedMethods:   []string{"POST"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}
	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"allowed origin", http.MethodPost, "https://app.example.com", "https://app.example.com", http.StatusOK},
		{"other origin", http.MethodPost, "https://evil.example.com", "", http.StatusOK},
		{"no origin", http.MethodPost, "", "", http.StatusOK},
		{"preflight", http.MethodOptions, "https://app.example.com", "https://app.example.com", http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newEngine(CORS(cfg))
			e.POST("/upload", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tc.method, "/upload", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			w := do(e, req)
			if w.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("allow origin = %q, want %q", got, tc.wantOrigin)
			}
			if tc.wantOrigin != "" && w.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("expected credentials header")
			}
		})
	}
}

func TestCORSWildcard(t *testing.T) {
	if !isAllowedOrigin("https://any.example.com", []string{"*"}) {
		t.Error("wildcard should allow any origin")
	}
	if isAllowedOrigin("https://any.example.com", nil) {
		t.Error("empty list should allow nothing")
	}
}

func TestBodySizeLimit(t *testing.T) {
	handler := func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		c.Status(http.StatusOK)
	}

	t.Run("declared length over limit", func(t *testing.T) {
		e := newEngine(BodySizeLimit("1KB"))
		e.POST("/", handler)
		w := do(e, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 2048))))
		if w.Code != http.StatusRequestEntityTooLarge {
			t.Fatalf("status = %d", w.Code)
		}
		if !strings.Contains(w.Body.String(), string(apperrors.ErrCodePayloadTooLarge)) {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("undeclared length over limit", func(t *testing.T) {
		e := newEngine(BodySizeLimit("1KB"))
		e.POST("/", handler)
		req := httptest.NewRequest(http.MethodPost, "/", io.MultiReader(strings.NewReader(strings.Repeat("x", 2048))))
		req.ContentLength = -1
		if w := do(e, req); w.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d", w.Code)
		}
	})

	t.Run("under limit", func(t *testing.T) {
		e := newEngine(BodySizeLimit("1KB"))
		e.POST("/", handler)
		if w := do(e, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small"))); w.Code != http.StatusOK {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "gridstore", &buf)
	e := newEngine(RequestID(), RequestLogger(log))
	e.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	e.POST("/upload", func(c *gin.Context) { c.Status(http.StatusConflict) })

	do(e, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if buf.Len() != 0 {
		t.Fatalf("probe requests should not be logged, got %q", buf.String())
	}

	do(e, httptest.NewRequest(http.MethodPost, "/upload", nil))
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log: %v (%s)", err, buf.String())
	}
	if entry["level"] != "warn" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["status"] != float64(http.StatusConflict) || entry["path"] != "/upload" {
		t.Errorf("entry = %v", entry)
	}
	if entry[FieldRequestID] == "" || entry[FieldRequestID] == nil {
		t.Errorf("expected request id in log, got %v", entry)
	}
}
