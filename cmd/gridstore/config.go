package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/gridstore/config"
	"github.com/kbukum/gridstore/gridfs"
	"github.com/kbukum/gridstore/observability"
	"github.com/kbukum/gridstore/server"
	"github.com/kbukum/gridstore/util"
	"github.com/kbukum/gridstore/validation"
	"github.com/kbukum/gridstore/version"
)

// serveConfig is the configuration of the serve command.
type serveConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	GridFS    gridfs.Settings      `yaml:"gridfs" mapstructure:"gridfs"`
	HTTP      server.Config        `yaml:"http" mapstructure:"http"`
	Upload    uploadConfig         `yaml:"upload" mapstructure:"upload"`
	Telemetry observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
}

type uploadConfig struct {
	Path          string `yaml:"path" mapstructure:"path"`
	MaxFileSize   string `yaml:"max_file_size" mapstructure:"max_file_size"`
	MaxFieldSize  string `yaml:"max_field_size" mapstructure:"max_field_size"`
	RemoveOnError bool   `yaml:"remove_on_error" mapstructure:"remove_on_error"`
	RemoveRetries int    `yaml:"remove_retries" mapstructure:"remove_retries"`
	// MaxConcurrent caps in-flight upload requests; 0 disables the cap.
	MaxConcurrent int           `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `yaml:"queue_timeout" mapstructure:"queue_timeout"`
	// RateLimit is requests per second per client address; 0 disables it.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
	// Headers lists request headers copied into each file's metadata.
	Headers []string `yaml:"headers" mapstructure:"headers"`
	// EventsPath serves the live event stream; "-" disables it.
	EventsPath string        `yaml:"events_path" mapstructure:"events_path"`
	KeepAlive  time.Duration `yaml:"keep_alive" mapstructure:"keep_alive"`
}

func (c *serveConfig) ApplyDefaults() {
	if c.Name == "" {
		c.Name = version.Name
	}
	c.ServiceConfig.ApplyDefaults()

	c.GridFS.ApplyDefaults()
	if c.GridFS.AppName == "" {
		c.GridFS.AppName = version.AppName()
	}
	c.HTTP.ApplyDefaults()

	c.Upload.Path = util.Coalesce(c.Upload.Path, "/upload")
	c.Upload.MaxFileSize = util.Coalesce(c.Upload.MaxFileSize, "32MB")
	c.Upload.MaxFieldSize = util.Coalesce(c.Upload.MaxFieldSize, "1MB")
	if c.Upload.RemoveRetries == 0 {
		c.Upload.RemoveRetries = 3
	}
	c.Upload.EventsPath = util.Coalesce(c.Upload.EventsPath, "/events")
	if c.Upload.KeepAlive == 0 {
		c.Upload.KeepAlive = 30 * time.Second
	}

	c.Telemetry.ServiceName = util.Coalesce(c.Telemetry.ServiceName, c.Name)
	c.Telemetry.ServiceVersion = util.Coalesce(c.Telemetry.ServiceVersion, c.Version)
	c.Telemetry.Environment = util.Coalesce(c.Telemetry.Environment, c.Environment)
	c.Telemetry.ApplyDefaults()
}

func (c *serveConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.GridFS.Validate(); err != nil {
		return fmt.Errorf("config.gridfs: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Upload.validate(); err != nil {
		return err
	}
	return c.Telemetry.Validate()
}

func (u *uploadConfig) validate() error {
	v := validation.New("upload.")
	v.Check(strings.HasPrefix(u.Path, "/"), "path", "must start with /")
	v.Check(util.ParseSize(u.MaxFileSize, -1) > 0, "max_file_size", "is not a size")
	v.Check(util.ParseSize(u.MaxFieldSize, -1) > 0, "max_field_size", "is not a size")
	v.Check(u.RemoveRetries >= 0, "remove_retries", "must be non-negative")
	v.Check(u.MaxConcurrent >= 0, "max_concurrent", "must be non-negative")
	v.Check(u.QueueTimeout >= 0, "queue_timeout", "must be non-negative")
	v.Check(u.RateLimit >= 0, "rate_limit", "must be non-negative")
	v.Check(u.RateBurst >= 0, "rate_burst", "must be non-negative")
	v.Check(u.EventsPath == "-" || strings.HasPrefix(u.EventsPath, "/"), "events_path", "must start with / or be -")
	v.Check(u.EventsPath != u.Path, "events_path", "must differ from path")
	v.Check(u.KeepAlive > 0, "keep_alive", "must be positive")
	return v.Err()
}
