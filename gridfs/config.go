package gridfs

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/kbukum/gridstore/async"
	"github.com/kbukum/gridstore/events"
	"github.com/kbukum/gridstore/logger"
	"github.com/kbukum/gridstore/observability"
	"github.com/kbukum/gridstore/security"
	"github.com/kbukum/gridstore/validation"
)

// Config configures a Storage. Exactly one of URL, DB and PendingDB must be set.
type Config struct {
	// URL is dialled through Driver, or the driver registered for its scheme.
	URL     string
	Options ConnectOptions
	// DB is an already-connected handle. It must report itself open.
	DB Database
	// PendingDB is settled later with a handle or a connection error.
	PendingDB *async.Future[Database]
	// Driver overrides the scheme lookup in URL mode.
	Driver Driver

	// Resolver derives per-file metadata. Nil uses defaults for every file.
	Resolver Resolver
	// RandomBytes is the length of random filenames before hex encoding.
	RandomBytes int
	// Random is the entropy source for filenames. Defaults to crypto/rand.
	Random io.Reader

	ChunkSize  int32
	BucketName string

	Logger  *logger.Logger
	Metrics *observability.Metrics
	// Events receives lifecycle events. A private bus is created when nil.
	Events *events.Bus
}

// Mode reports which handle source is configured, or ModeNone when the
// configuration sets none or more than one.
func (c *Config) Mode() Mode {
	modes := 0
	mode := ModeNone
	if c.URL != "" {
		modes++
		mode = ModeURL
	}
	if c.DB != nil {
		modes++
		mode = ModeHandle
	}
	if c.PendingDB != nil {
		modes++
		mode = ModePending
	}
	if modes != 1 {
		return ModeNone
	}
	return mode
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.BucketName == "" {
		c.BucketName = DefaultBucketName
	}
	if c.RandomBytes == 0 {
		c.RandomBytes = DefaultRandomBytes
	}
	if c.Random == nil {
		c.Random = rand.Reader
	}
	if c.Logger == nil {
		c.Logger = logger.GetGlobalLogger()
	}
}

// Validate checks the handle mode and the file defaults.
func (c *Config) Validate() error {
	modes := 0
	for _, set := range []bool{c.URL != "", c.DB != nil, c.PendingDB != nil} {
		if set {
			modes++
		}
	}
	switch modes {
	case 0:
		return invalidConfig("one of URL, DB or PendingDB is required")
	case 1:
	default:
		return invalidConfig("only one of URL, DB or PendingDB may be set")
	}
	if c.URL != "" {
		if _, err := schemeOf(c.URL); err != nil {
			return err
		}
	}

	s := Settings{
		BucketName:  c.BucketName,
		ChunkSize:   c.ChunkSize,
		RandomBytes: c.RandomBytes,
	}
	if err := validation.Struct(s); err != nil {
		return invalidConfig("%v", err)
	}
	return nil
}

// Settings is the file-configurable part of a URL-mode Config.
type Settings struct {
	URL            string        `mapstructure:"url" json:"url"`
	Database       string        `mapstructure:"database" json:"database"`
	AppName        string        `mapstructure:"app_name" json:"app_name"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" json:"connect_timeout" validate:"gte=0"`
	BucketName     string        `mapstructure:"bucket_name" json:"bucket_name" validate:"required,max=128,excludesall=$"`
	ChunkSize      int32         `mapstructure:"chunk_size" json:"chunk_size" validate:"gt=0,lte=16777216"`
	RandomBytes    int           `mapstructure:"random_bytes" json:"random_bytes" validate:"gte=1,lte=256"`
	// UniqueContent asks the driver to reject byte-identical files.
	UniqueContent bool `mapstructure:"unique_content" json:"unique_content"`
	// TLS is used when set; URL options such as tls=true work as well.
	TLS security.TLSConfig `mapstructure:"tls" json:"tls"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	s := Settings{}
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills in zero-valued fields.
func (s *Settings) ApplyDefaults() {
	if s.BucketName == "" {
		s.BucketName = DefaultBucketName
	}
	if s.ChunkSize == 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.RandomBytes == 0 {
		s.RandomBytes = DefaultRandomBytes
	}
}

// Validate checks the settings. A URL is required.
func (s *Settings) Validate() error {
	if s.URL == "" {
		return invalidConfig("url is required")
	}
	if _, err := schemeOf(s.URL); err != nil {
		return err
	}
	if err := validation.Struct(s); err != nil {
		return invalidConfig("%v", err)
	}
	if err := s.TLS.Validate(); err != nil {
		return invalidConfig("%v", err)
	}
	return nil
}

// Config converts the settings into a URL-mode Config.
func (s Settings) Config() Config {
	return Config{
		URL: s.URL,
		Options: ConnectOptions{
			Database:       s.Database,
			AppName:        s.AppName,
			ConnectTimeout: s.ConnectTimeout,
			TLS:            tlsOrNil(s.TLS),
			Extra:          map[string]any{OptionUniqueContent: s.UniqueContent},
		},
		BucketName:  s.BucketName,
		ChunkSize:   s.ChunkSize,
		RandomBytes: s.RandomBytes,
	}
}

func tlsOrNil(c security.TLSConfig) *security.TLSConfig {
	if !c.IsEnabled() {
		return nil
	}
	return &c
}

// OptionUniqueContent is the ConnectOptions.Extra key drivers read to
// enforce content uniqueness.
const OptionUniqueContent = "unique_content"
