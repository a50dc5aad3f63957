package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/gridstore/component"
	apperrors "github.com/kbukum/gridstore/errors"
	"github.com/kbukum/gridstore/logger"
	"github.com/kbukum/gridstore/security"
	"github.com/kbukum/gridstore/security/tlstest"
	"github.com/kbukum/gridstore/server/endpoint"
	"github.com/kbukum/gridstore/server/middleware"
)

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	cfg := Config{}
	cfg.ApplyDefaults()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	if mutate != nil {
		mutate(&cfg)
	}
	s := New(cfg, logger.Nop())
	gin.SetMode(gin.TestMode)
	return s
}

func serve(s *Server, method, path string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, body)
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Port != 8080 || cfg.ReadTimeout != 300 || cfg.WriteTimeout != 300 || cfg.IdleTimeout != 60 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.MaxBodySize != "64MB" {
		t.Errorf("max body size = %q", cfg.MaxBodySize)
	}
	found := false
	for _, h := range cfg.CORS.AllowedHeaders {
		if h == middleware.HeaderRequestID {
			found = true
		}
	}
	if !found {
		t.Errorf("expected request id header allowed, got %v", cfg.CORS.AllowedHeaders)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port too large", func(c *Config) { c.Port = 70000 }, "http.port"},
		{"negative read timeout", func(c *Config) { c.ReadTimeout = -1 }, "http.read_timeout"},
		{"negative write timeout", func(c *Config) { c.WriteTimeout = -1 }, "http.write_timeout"},
		{"negative idle timeout", func(c *Config) { c.IdleTimeout = -1 }, "http.idle_timeout"},
		{"bad body size", func(c *Config) { c.MaxBodySize = "lots" }, "http.max_body_size"},
		{"tls cert without key", func(c *Config) { c.TLS.CertFile = "cert.pem" }, "http.tls"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			cfg.ApplyDefaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestStartServeStop(t *testing.T) {
	s := newTestServer(t, nil)
	s.Engine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	comp := NewComponent(s)

	if h := comp.Health(context.Background()); h.Status != component.StatusDegraded {
		t.Errorf("expected degraded before start, got %s", h.Status)
	}
	if err := comp.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := comp.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy after start, got %s", h.Status)
	}

	resp, err := http.Get("http://" + s.Addr() + "/ping")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "pong" {
		t.Errorf("body = %q", body)
	}

	if err := comp.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartWithTLS(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	s := newTestServer(t, func(c *Config) {
		c.TLS = security.TLSConfig{CertFile: certs.CertFile, KeyFile: certs.KeyFile}
	})
	s.Engine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.Request.Proto) })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop(context.Background())

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig:   &tls.Config{RootCAs: certs.CertPool},
		ForceAttemptHTTP2: true,
	}}
	resp, err := client.Get("https://" + s.Addr() + "/ping")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.TLS == nil {
		t.Errorf("status %d, tls %v", resp.StatusCode, resp.TLS != nil)
	}
}

func TestStartTLSFailure(t *testing.T) {
	s := newTestServer(t, func(c *Config) {
		c.TLS = security.TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	})
	if err := s.Start(context.Background()); err == nil {
		s.Stop(context.Background())
		t.Fatal("expected an error for missing certificate files")
	}
}

func TestStartBindFailure(t *testing.T) {
	first := newTestServer(t, nil)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop(context.Background())

	var port int
	if _, err := fmt.Sscanf(first.Addr()[strings.LastIndex(first.Addr(), ":")+1:], "%d", &port); err != nil {
		t.Fatalf("parse port: %v", err)
	}
	second := newTestServer(t, func(c *Config) { c.Port = port })
	if err := second.Start(context.Background()); err == nil {
		second.Stop(context.Background())
		t.Fatal("expected bind failure on a used port")
	}
}

func TestDescribe(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.Port = 9090 })
	d := NewComponent(s).Describe()
	if d.Type != "server" || d.Port != 9090 || d.Details != "127.0.0.1:9090" {
		t.Errorf("unexpected description %+v", d)
	}
	if NewComponent(s).Name() != "http-server" {
		t.Error("unexpected component name")
	}
}

func TestHandleMountsBesideGin(t *testing.T) {
	s := newTestServer(t, nil)
	s.Handle("/raw/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	if w := serve(s, http.MethodGet, "/raw/x", nil); w.Code != http.StatusTeapot {
		t.Errorf("status = %d", w.Code)
	}
	if w := serve(s, http.MethodGet, "/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected gin 404, got %d", w.Code)
	}
}

func TestApplyDefaultsEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	checker := func(ctx context.Context) []component.Health {
		return []component.Health{{Name: "gridfs", Status: component.StatusHealthy}}
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "gridstore_uploads_total 1\n")
	})
	s.ApplyDefaults("gridstore", checker, metrics)

	for _, path := range []string{endpoint.PathHealth, endpoint.PathLive, endpoint.PathReady, endpoint.PathVersion, endpoint.PathMetrics} {
		w := serve(s, http.MethodGet, path, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, w.Code)
		}
		if w.Header().Get(middleware.HeaderRequestID) == "" {
			t.Errorf("%s: missing request id header", path)
		}
	}
}

func TestRoutesSystemPathsLast(t *testing.T) {
	s := newTestServer(t, nil)
	s.RegisterDefaultEndpoints("gridstore", nil, nil)
	s.Engine().POST("/upload", func(c *gin.Context) {})
	s.Engine().DELETE("/files/:id", func(c *gin.Context) {})

	routes := s.Routes()
	if len(routes) != 6 {
		t.Fatalf("expected 6 routes, got %v", routes)
	}
	if routes[0].Path != "/files/:id" || routes[1].Path != "/upload" {
		t.Errorf("expected application routes first, got %v", routes[:2])
	}
	for _, r := range routes[2:] {
		if r.Path == "/upload" || r.Path == "/files/:id" {
			t.Errorf("application route %s after system routes", r.Path)
		}
	}
}

func TestHandlerName(t *testing.T) {
	tests := map[string]string{
		"github.com/kbukum/gridstore/httpupload.(*Uploader).Single.func1": "Uploader.Single",
		"github.com/kbukum/gridstore/server/endpoint.Liveness.func1":      "Liveness",
		"main.(*app).upload-fm":                                           "app.upload",
		"main.handler":                                                    "handler",
	}
	for in, want := range tests {
		if got := handlerName(in); got != want {
			t.Errorf("handlerName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{"app error", apperrors.AlreadyExists("file"), http.StatusConflict, apperrors.ErrCodeAlreadyExists},
		{"wrapped app error", fmt.Errorf("upload: %w", apperrors.Timeout("upload")), http.StatusGatewayTimeout, apperrors.ErrCodeTimeout},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondWithError(c, tc.err)

			if w.Code != tc.status {
				t.Errorf("status = %d, want %d", w.Code, tc.status)
			}
			var resp apperrors.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Code != tc.code {
				t.Errorf("code = %s, want %s", resp.Error.Code, tc.code)
			}
			if !c.IsAborted() {
				t.Error("expected context aborted")
			}
		})
	}
}

func TestRespondHelpers(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondCreated(c, map[string]string{"id": "1"})
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"data":{"id":"1"}`) {
		t.Errorf("created: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	RespondOK(c, []int{1})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"data":[1]`) {
		t.Errorf("ok: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	RespondNoContent(c)
	c.Writer.WriteHeaderNow()
	if w.Code != http.StatusNoContent {
		t.Errorf("no content: %d", w.Code)
	}
}
