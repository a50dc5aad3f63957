package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/gridstore/logger"
)

type storeSection struct {
	URL            string        `mapstructure:"url"`
	BucketName     string        `mapstructure:"bucket_name"`
	ChunkSize      int32         `mapstructure:"chunk_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	GridFS        storeSection `mapstructure:"gridfs"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "gridstore"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.ServiceName != "gridstore" {
			t.Errorf("expected logging service name, got %q", cfg.Logging.ServiceName)
		}
		if cfg.Version == "" {
			t.Error("expected version to default to the build version")
		}
	})

	t.Run("production keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "gridstore", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	valid := func(env string) ServiceConfig {
		cfg := ServiceConfig{Name: "gridstore", Environment: env}
		cfg.Logging.ApplyDefaults()
		return cfg
	}
	badLogging := valid("production")
	badLogging.Logging.Level = "loud"

	tests := []struct {
		name   string
		cfg    ServiceConfig
		errMsg string
	}{
		{"valid development", valid("development"), ""},
		{"valid staging", valid("staging"), ""},
		{"valid production", valid("production"), ""},
		{"missing name", ServiceConfig{Environment: "production"}, "config.name is required"},
		{"invalid environment", valid("qa"), "config.environment must be one of"},
		{"invalid logging", badLogging, "config.logging"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.errMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errMsg) {
				t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
			}
		})
	}
}

func TestLoadConfigWithYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yml", `
name: gridstore
environment: staging
gridfs:
  url: mongodb://db:27017/uploads
  bucket_name: avatars
  chunk_size: 1024
  connect_timeout: 5s
`)

	var cfg testConfig
	if err := LoadConfig("gridstore", &cfg, WithConfigFile(path), WithLogger(logger.Nop())); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Name != "gridstore" || cfg.Environment != "staging" {
		t.Errorf("service config = %+v", cfg.ServiceConfig)
	}
	if cfg.GridFS.URL != "mongodb://db:27017/uploads" || cfg.GridFS.BucketName != "avatars" {
		t.Errorf("gridfs = %+v", cfg.GridFS)
	}
	if cfg.GridFS.ChunkSize != 1024 {
		t.Errorf("chunk size = %d", cfg.GridFS.ChunkSize)
	}
	if cfg.GridFS.ConnectTimeout != 5*time.Second {
		t.Errorf("connect timeout = %v", cfg.GridFS.ConnectTimeout)
	}
}

func TestLoadConfigEnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yml", `
name: gridstore
gridfs:
  bucket_name: avatars
`)
	t.Setenv("GRIDFS_BUCKET_NAME", "photos")

	var cfg testConfig
	if err := LoadConfig("gridstore", &cfg, WithConfigFile(path), WithLogger(logger.Nop())); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.GridFS.BucketName != "photos" {
		t.Errorf("expected env override, got %q", cfg.GridFS.BucketName)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	var cfg testConfig
	err := LoadConfig("gridstore", &cfg,
		WithConfigFile("/nonexistent/config.yml"),
		WithEnvFile("/nonexistent/.env"),
		WithDefault("gridfs.bucket_name", "fs"),
		WithLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.GridFS.BucketName != "fs" {
		t.Errorf("expected default bucket, got %q", cfg.GridFS.BucketName)
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	const key = "GRIDSTORE_CONFIG_TEST_URL"
	t.Cleanup(func() { os.Unsetenv(key) })

	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", key+"=mem://envfile\n")

	type envConfig struct {
		Gridstore struct {
			Config struct {
				Test struct {
					URL string `mapstructure:"url"`
				} `mapstructure:"test"`
			} `mapstructure:"config"`
		} `mapstructure:"gridstore"`
	}
	var cfg envConfig
	if err := LoadConfig("gridstore", &cfg, WithConfigFile(filepath.Join(dir, "none.yml")), WithEnvFile(envPath), WithLogger(logger.Nop())); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Gridstore.Config.Test.URL; got != "mem://envfile" {
		t.Errorf("expected value from .env, got %q", got)
	}
}

func TestLoadConfigMalformedFileIsIgnored(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yml", "name: [unterminated\n")

	var cfg testConfig
	if err := LoadConfig("gridstore", &cfg, WithConfigFile(path), WithLogger(logger.Nop())); err != nil {
		t.Fatalf("expected malformed file to be skipped, got %v", err)
	}
}

func TestResolverWithMockFS(t *testing.T) {
	tests := []struct {
		name       string
		files      map[string]bool
		wantConfig string
		wantEnv    string
	}{
		{
			name:       "cmd directory",
			files:      map[string]bool{"./cmd/gridstore/config.yml": true},
			wantConfig: "./cmd/gridstore/config.yml",
		},
		{
			name:       "yaml extension",
			files:      map[string]bool{"./config/config.yaml": true},
			wantConfig: "./config/config.yaml",
		},
		{
			name:       "service env file wins",
			files:      map[string]bool{"./.env.gridstore": true, "./.env": true},
			wantEnv:    "./.env.gridstore",
		},
		{
			name: "nothing found",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resolver := &Resolver{FileSystem: &mockFS{files: tc.files}}
			files := resolver.ResolveFiles("gridstore", LoaderConfig{})
			if files.ConfigFile != tc.wantConfig {
				t.Errorf("config file = %q, want %q", files.ConfigFile, tc.wantConfig)
			}
			if files.EnvFile != tc.wantEnv {
				t.Errorf("env file = %q, want %q", files.EnvFile, tc.wantEnv)
			}
		})
	}
}

func TestResolverExplicitPaths(t *testing.T) {
	resolver := &Resolver{FileSystem: &mockFS{}}
	files := resolver.ResolveFiles("gridstore", LoaderConfig{ConfigFile: "/etc/gridstore.yml", EnvFile: "/etc/gridstore.env"})
	if files.ConfigFile != "/etc/gridstore.yml" || files.EnvFile != "/etc/gridstore.env" {
		t.Errorf("explicit paths not kept: %+v", files)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool  { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }
func (m *mockFS) Getwd() (string, error)    { return "/mock", nil }

func TestLoadConfigWithFileSystem(t *testing.T) {
	var cfg testConfig
	err := LoadConfig("gridstore", &cfg,
		WithFileSystem(&mockFS{}),
		WithDefault("gridfs.url", "mem://mock"),
		WithLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.GridFS.URL != "mem://mock" {
		t.Errorf("expected default url with no files found, got %q", cfg.GridFS.URL)
	}
}

func TestGenerateEnvKeyVariants(t *testing.T) {
	variants := generateEnvKeyVariants("GRIDFS_BUCKET_NAME")
	want := []string{"gridfs_bucket_name", "gridfs.bucket.name", "gridfs.bucket_name"}
	for _, w := range want {
		found := false
		for _, v := range variants {
			if v == w {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing variant %q in %v", w, variants)
		}
	}

	if got := generateEnvKeyVariants("PORT"); len(got) != 1 || got[0] != "port" {
		t.Errorf("single-part key variants = %v", got)
	}
}

func TestRemoveDuplicates(t *testing.T) {
	got := removeDuplicates([]string{"a", "b", "a", "c", "b"})
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("removeDuplicates = %v", got)
	}
}
