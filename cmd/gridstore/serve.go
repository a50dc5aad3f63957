package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/kbukum/gridstore/bootstrap"
	"github.com/kbukum/gridstore/config"
	"github.com/kbukum/gridstore/events"
	"github.com/kbukum/gridstore/gridfs"
	_ "github.com/kbukum/gridstore/gridfs/mongodb"
	"github.com/kbukum/gridstore/httpupload"
	"github.com/kbukum/gridstore/logger"
	"github.com/kbukum/gridstore/observability"
	"github.com/kbukum/gridstore/server"
	"github.com/kbukum/gridstore/server/endpoint"
	"github.com/kbukum/gridstore/sse"
)

type serveFlags struct {
	configFile string
	envFile    string
	url        string
	port       int
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP upload server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(flags)
			if err != nil {
				return err
			}
			app, _, err := newServeApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&flags.configFile, "config", "", "config file (default: search for config.yml)")
	cmd.Flags().StringVar(&flags.envFile, "env-file", "", ".env file (default: search for .env)")
	cmd.Flags().StringVar(&flags.url, "url", "", "database URL, overrides gridfs.url")
	cmd.Flags().IntVar(&flags.port, "port", 0, "listen port, overrides http.port")
	return cmd
}

func loadServeConfig(flags serveFlags) (*serveConfig, error) {
	cfg := &serveConfig{}
	opts := []config.LoaderOption{
		config.WithDefault("gridfs.url", "mongodb://localhost:27017/gridstore"),
	}
	if flags.configFile != "" {
		opts = append(opts, config.WithConfigFile(flags.configFile))
	}
	if flags.envFile != "" {
		opts = append(opts, config.WithEnvFile(flags.envFile))
	}
	if err := config.LoadConfig("gridstore", cfg, opts...); err != nil {
		return nil, err
	}
	if flags.url != "" {
		cfg.GridFS.URL = flags.url
	}
	if flags.port != 0 {
		cfg.HTTP.Port = flags.port
	}
	return cfg, nil
}

// newServeApp wires storage, upload handlers and the HTTP server into an
// application. Nothing is started.
func newServeApp(ctx context.Context, cfg *serveConfig, opts ...bootstrap.Option) (*bootstrap.App[*serveConfig], *server.Server, error) {
	app, err := bootstrap.NewApp(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	log := app.Logger

	shutdownTelemetry, err := observability.Init(ctx, &cfg.Telemetry)
	if err != nil {
		return nil, nil, err
	}
	app.OnStop(func(ctx context.Context) error { return shutdownTelemetry(ctx) })

	var metrics *observability.Metrics
	if cfg.Telemetry.Enabled {
		if metrics, err = observability.NewMetrics(observability.Meter(cfg.Name)); err != nil {
			return nil, nil, err
		}
	}

	storeCfg := cfg.GridFS.Config()
	storeCfg.Logger = log
	storeCfg.Metrics = metrics
	storeCfg.Resolver = headerResolver(cfg.Upload.Headers)
	storage, err := gridfs.New(storeCfg)
	if err != nil {
		return nil, nil, err
	}
	storage.OnStreamError(func(err error, snap gridfs.Snapshot) {
		log.Warn("Upload rejected by store", logger.MergeWithError(snap.Map(), err))
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(events.Collectors()...)
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := server.New(cfg.HTTP, log)
	srv.ApplyDefaults(cfg.Name, app.Components.HealthAll, endpoint.Metrics(registry))

	upOpts := []httpupload.Option{
		httpupload.WithMaxFileSize(cfg.Upload.MaxFileSize),
		httpupload.WithMaxFieldSize(cfg.Upload.MaxFieldSize),
		httpupload.WithLogger(log.WithComponent("httpupload")),
	}
	if cfg.Upload.RemoveOnError {
		upOpts = append(upOpts, httpupload.WithRemoveOnError(), httpupload.WithRemoveRetry(cfg.Upload.RemoveRetries))
	}
	if cfg.Upload.MaxConcurrent > 0 {
		upOpts = append(upOpts, httpupload.WithConcurrencyLimit(cfg.Upload.MaxConcurrent, cfg.Upload.QueueTimeout))
	}
	if cfg.Upload.RateLimit > 0 {
		upOpts = append(upOpts, httpupload.WithRateLimit(cfg.Upload.RateLimit, cfg.Upload.RateBurst))
	}
	up := httpupload.New(storage, upOpts...)
	srv.Engine().POST(cfg.Upload.Path, up.Any(), httpupload.Respond)

	var feed *sse.Hub
	if cfg.Upload.EventsPath != "-" {
		feed = sse.NewHub(sse.WithLogger(log.WithComponent("sse")), sse.WithKeepAlive(cfg.Upload.KeepAlive))
		forwardEvents(storage, feed, log)
		srv.Engine().GET(cfg.Upload.EventsPath, gin.WrapH(feed))
	}

	for _, r := range srv.Routes() {
		app.Summary.TrackRoute(r.Method, r.Path, r.Handler)
	}

	if err := app.RegisterComponent(storage); err != nil {
		return nil, nil, err
	}
	if err := app.RegisterComponent(server.NewComponent(srv)); err != nil {
		return nil, nil, err
	}
	// Registered after the server so open streams close before it shuts down.
	if feed != nil {
		if err := app.RegisterComponent(sse.NewComponent(feed, cfg.Upload.EventsPath)); err != nil {
			return nil, nil, err
		}
	}
	return app, srv, nil
}

// headerResolver records the upload's origin in each file's metadata: the
// form field, the client's file name and the listed request headers.
func headerResolver(headers []string) gridfs.Resolver {
	return gridfs.ResolverFunc(func(_ context.Context, req *http.Request, part *gridfs.Part) (*gridfs.FileInfo, error) {
		meta := map[string]any{
			"field":        part.FieldName,
			"originalName": part.OriginalName,
		}
		if req != nil {
			for _, h := range headers {
				if v := req.Header.Get(h); v != "" {
					meta[strings.ToLower(h)] = v
				}
			}
		}
		return &gridfs.FileInfo{Metadata: meta}, nil
	})
}
