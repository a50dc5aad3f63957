package gridfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	apperrors "github.com/kbukum/gridstore/errors"
	"github.com/kbukum/gridstore/security"
)

func TestConnectionErrorMatching(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := connectionError(cause)

	if err.Error() != "The database connection must be open to store files" {
		t.Errorf("message = %q", err.Error())
	}
	if !errors.Is(err, ErrConnectionNotOpen) || !errors.Is(err, cause) {
		t.Error("expected both the sentinel and the cause to match")
	}
	if again := connectionError(fmt.Errorf("wrapped: %w", err)); again != err {
		t.Error("an existing ConnectionError should be reused")
	}
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"connection", connectionError(errors.New("x")), apperrors.ErrCodeConnectionFailed},
		{"closed", ErrClosed, apperrors.ErrCodeConnectionFailed},
		{"duplicate", &DuplicateKeyError{Collection: "db.fs.files"}, apperrors.ErrCodeAlreadyExists},
		{"invalid", invalidConfig("bad bucket"), apperrors.ErrCodeInvalidInput},
		{"deadline", fmt.Errorf("wait: %w", context.DeadlineExceeded), apperrors.ErrCodeTimeout},
		{"store", &StoreError{Op: "close", Err: errors.New("write concern")}, apperrors.ErrCodeStorageError},
		{"app error", apperrors.PayloadTooLarge("file", 10), apperrors.ErrCodePayloadTooLarge},
		{"other", errors.New("Random bytes error"), apperrors.ErrCodeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ToAppError(tc.err); got.Code != tc.code {
				t.Errorf("code = %s, want %s", got.Code, tc.code)
			}
		})
	}
	if ToAppError(nil) != nil {
		t.Error("nil should map to nil")
	}
}

func TestDuplicateKeyErrorMessage(t *testing.T) {
	err := &DuplicateKeyError{Collection: "uploads.fs.files", Index: "contentHash_1", Key: `{ contentHash: "ab" }`}
	if !strings.HasPrefix(err.Error(), "E11000 duplicate key error") {
		t.Errorf("message = %q", err.Error())
	}
	if !IsDuplicateKey(fmt.Errorf("close: %w", err)) {
		t.Error("wrapped duplicate not detected")
	}
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"mongodb://localhost:27017/uploads", "uploads"},
		{"mongodb://a:1,b:2/uploads?replicaSet=rs0", "uploads"},
		{"mongodb+srv://user:pw@cluster.example.net/media?retryWrites=true", "media"},
		{"mongodb://localhost:27017", "test"},
		{"mongodb://localhost:27017/", "test"},
		{"mongodb://localhost/my%20db", "my db"},
	}
	for _, tc := range tests {
		if got := DatabaseName(tc.url, "test"); got != tc.want {
			t.Errorf("DatabaseName(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestSchemeOf(t *testing.T) {
	if s, err := schemeOf("MongoDB+SRV://host"); err != nil || s != "mongodb+srv" {
		t.Errorf("scheme = %q, %v", s, err)
	}
	if _, err := schemeOf("localhost:27017"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v", err)
	}
}

func TestDriverForUnknownScheme(t *testing.T) {
	_, err := DriverFor("nosuch://host/db", ConnectOptions{})
	if !errors.Is(err, ErrNoDriver) {
		t.Errorf("err = %v", err)
	}
}

func TestRandomFilename(t *testing.T) {
	name, err := randomFilename(bytes.NewReader(bytes.Repeat([]byte{0x0f}, 4)), 4)
	if err != nil || name != "0f0f0f0f" {
		t.Errorf("name = %q, %v", name, err)
	}

	errRandom := errors.New("Random bytes error")
	_, err = randomFilename(RandomFunc(func([]byte) (int, error) { panic(errRandom) }), 16)
	if err != errRandom {
		t.Errorf("panic error = %v", err)
	}

	_, err = randomFilename(bytes.NewReader([]byte{1}), 16)
	if err == nil {
		t.Error("short read should fail")
	}
}

func TestFileInfoMerge(t *testing.T) {
	info := FileInfo{Filename: "a", BucketName: "fs", Metadata: map[string]any{"k": 1}}
	info.merge(&FileInfo{ContentType: "text/plain", BucketName: "docs"})
	info.merge(nil)

	if info.Filename != "a" || info.BucketName != "docs" || info.ContentType != "text/plain" {
		t.Errorf("merged = %+v", info)
	}
	if info.Metadata["k"] != 1 {
		t.Errorf("metadata lost: %v", info.Metadata)
	}
}

func TestSnapshotMapKeys(t *testing.T) {
	m := snapshotOf(&FileInfo{Filename: "a"}).Map()
	if len(m) != 6 {
		t.Fatalf("keys = %v", m)
	}
	for _, k := range []string{"chunkSize", "contentType", "filename", "metadata", "bucketName", "id"} {
		if _, ok := m[k]; !ok {
			t.Errorf("missing key %s", k)
		}
	}
}

func TestStateStrings(t *testing.T) {
	if StateReady.String() != "ready" || StateFailed.String() != "failed" {
		t.Error("connection state names")
	}
	if FileStreaming.String() != "streaming" || FileAwaitingConnection.String() != "awaiting_connection" {
		t.Error("file state names")
	}
	if ModePending.String() != "pending" || ModeNone.String() != "none" {
		t.Error("mode names")
	}
}

func TestSettings(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing url: %v", err)
	}

	s.URL = "mongodb://localhost/uploads"
	s.UniqueContent = true
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	cfg := s.Config()
	if cfg.Mode() != ModeURL || cfg.BucketName != DefaultBucketName || cfg.ChunkSize != DefaultChunkSize {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Options.Extra[OptionUniqueContent] != true {
		t.Errorf("extra = %v", cfg.Options.Extra)
	}
	if cfg.Options.TLS != nil {
		t.Errorf("TLS should be unset, got %+v", cfg.Options.TLS)
	}

	s.TLS.CAFile = "/etc/ssl/mongo-ca.pem"
	if cfg := s.Config(); cfg.Options.TLS == nil || cfg.Options.TLS.CAFile != s.TLS.CAFile {
		t.Errorf("TLS not carried: %+v", cfg.Options.TLS)
	}
	s.TLS.CertFile = "client.pem"
	if err := s.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("cert without key: %v", err)
	}
	s.TLS = security.TLSConfig{}

	s.ChunkSize = -1
	if err := s.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("negative chunk: %v", err)
	}
}

func TestContextReaderStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cr := &sourceReader{ctx: ctx, r: strings.NewReader("abc")}
	buf := make([]byte, 1)
	if _, err := cr.Read(buf); err != nil {
		t.Fatal(err)
	}
	cancel()
	if _, err := cr.Read(buf); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
}

func TestDefaultResolverIsEmpty(t *testing.T) {
	it, err := defaultResolver{}.Resolve(context.Background(), &http.Request{}, &Part{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := it.Next(context.Background()); ok {
		t.Error("default resolver should yield nothing")
	}
}
