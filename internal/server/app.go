// Package server initializes and runs the covault server. It wires the
// document store, object storage, notification bus and metrics endpoint to
// the context, container and resource services and handles graceful
// shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/covault/covault/internal/blob"
	"github.com/covault/covault/internal/container"
	"github.com/covault/covault/internal/contexts"
	"github.com/covault/covault/internal/keys"
	"github.com/covault/covault/internal/logging"
	"github.com/covault/covault/internal/metrics"
	"github.com/covault/covault/internal/notify"
	"github.com/covault/covault/internal/policy"
	"github.com/covault/covault/internal/resource"
	"github.com/covault/covault/internal/server/config"
	"github.com/covault/covault/internal/storage"
	"github.com/covault/covault/internal/storage/memdocs"
	"github.com/covault/covault/internal/storage/mongodocs"
	"github.com/covault/covault/internal/upload"
)

// App owns the wired service graph. Embedding applications reach the
// services through the accessors and register their resource types on
// Registry before Run.
type App struct {
	config *config.Config
	logger logging.Logger

	mgr      storage.Manager
	notifier notify.Dispatcher
	nats     *notify.Nats

	contexts   *contexts.Service
	keys       *keys.Service
	registry   *resource.Registry
	resources  *resource.Service
	containers map[policy.Kind]*container.Service
	staging    *upload.Memory
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout,
		&slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})))

	mgr, err := newManager(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	blobs, err := newBlobs(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("blob storage init error: %w", err)
	}

	app := &App{
		config:   cfg,
		logger:   logger,
		mgr:      mgr,
		notifier: notify.Nop{},
		registry: resource.NewRegistry(),
		staging:  upload.NewMemory(),
	}

	if cfg.NatsURL != "" {
		nc, err := notify.NewNats(cfg.NatsURL, logger)
		if err != nil {
			return nil, fmt.Errorf("nats init error: %w", err)
		}
		app.nats = nc
		app.notifier = nc
	}

	prom := metrics.NewProm("covault")

	app.contexts = contexts.NewService(mgr)
	app.keys = keys.NewService(app.contexts)

	app.resources = resource.NewService(app.registry, resource.Deps{
		Manager:  mgr,
		Keys:     app.keys,
		Staging:  app.staging,
		Blobs:    blobs,
		Notifier: app.notifier,
		Logger:   logger,
		Metrics:  prom,
	})

	app.containers = make(map[policy.Kind]*container.Service, len(policy.Kinds()))
	for _, kind := range policy.Kinds() {
		app.containers[kind] = container.NewService(kind, container.Deps{
			Manager:  mgr,
			Keys:     app.keys,
			Contexts: app.contexts,
			Notifier: app.notifier,
			Logger:   logger,
			Metrics:  prom,
		})
	}

	return app, nil
}

func newManager(ctx context.Context, cfg *config.Config) (storage.Manager, error) {
	if cfg.MongoURI == "" {
		return memdocs.NewManager(), nil
	}
	return mongodocs.NewManager(ctx, cfg.MongoURI, cfg.MongoDatabase)
}

func newBlobs(ctx context.Context, cfg *config.Config) (blob.Storage, error) {
	if cfg.S3BaseEndpoint == "" {
		return blob.NewMemory(), nil
	}
	return blob.NewS3(ctx, blob.S3Config{
		Region:       cfg.S3Region,
		Bucket:       cfg.S3Bucket,
		BaseEndpoint: cfg.S3BaseEndpoint,
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
	})
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Contexts returns the context membership service.
func (app *App) Contexts() *contexts.Service { return app.contexts }

// Containers returns the service for one container kind.
func (app *App) Containers(kind policy.Kind) *container.Service { return app.containers[kind] }

// Resources returns the generic resource service.
func (app *App) Resources() *resource.Service { return app.resources }

// Registry returns the resource type registry. Types must be registered
// before the first resource operation.
func (app *App) Registry() *resource.Registry { return app.registry }

// Staging returns the upload staging area big buffers are submitted through.
func (app *App) Staging() *upload.Memory { return app.staging }

// Logger returns the application logger.
func (app *App) Logger() logging.Logger { return app.logger }

// DeleteContext removes a context together with all its containers and
// resources in one transaction. The caller decides who is allowed to do
// this; no per-entity policy checks run.
func (app *App) DeleteContext(ctx context.Context, contextID string) error {
	return app.mgr.WithTransaction(ctx, func(ctx context.Context) error {
		if err := app.contexts.Delete(ctx, contextID); err != nil {
			return err
		}
		for _, kind := range policy.Kinds() {
			if err := app.containers[kind].DeleteByContext(ctx, contextID); err != nil {
				return err
			}
		}
		return app.resources.DeleteByContext(ctx, contextID)
	})
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves the metrics endpoint until ctx is canceled or a termination
// signal arrives, then closes the bus and store sessions.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var srv *http.Server
	if app.config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv = &http.Server{Addr: app.config.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				app.logger.Error(ctx, "metrics endpoint failed", "error", err)
				cancelFunc()
			}
		}()
	}

	<-ctx.Done()
	app.logger.Info(ctx, "shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "metrics endpoint shutdown failed", "error", err)
		}
	}
	if app.nats != nil {
		app.nats.Close()
	}
	if err := app.mgr.Close(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "store close failed", "error", err)
	}
}
