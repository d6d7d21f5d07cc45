// Package runtime wires the application together and manages its lifecycle.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/dasudiy/scratchpadsharp/internal/app/domain/execution"
	"github.com/dasudiy/scratchpadsharp/internal/app/httpapi"
	"github.com/dasudiy/scratchpadsharp/internal/app/services/executions"
	"github.com/dasudiy/scratchpadsharp/internal/app/storage"
	"github.com/dasudiy/scratchpadsharp/internal/app/storage/memory"
	"github.com/dasudiy/scratchpadsharp/internal/app/storage/postgres"
	"github.com/dasudiy/scratchpadsharp/internal/config"
	"github.com/dasudiy/scratchpadsharp/internal/scratch"
	"github.com/dasudiy/scratchpadsharp/internal/scratch/refs"
	"github.com/dasudiy/scratchpadsharp/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	httpServer *http.Server
	indexer    *refs.Indexer
	db         *sql.DB
}

// NewApplication constructs an application instance from the configuration at
// configPath.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Logging)

	store, db, err := buildStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}

	indexer := refs.NewIndexer(cfg.PackageCache.Root, cfg.PackageCache.RefreshSchedule, log.WithField("service", "package-index"))
	resolver := refs.NewResolver(indexer, log,
		refs.WithReferenceConfig(cfg.Execution),
		refs.WithProbingPaths(cfg.PackageCache.ProbingPaths...),
	)

	pipelineOpts := []scratch.Option{
		scratch.WithProbingPaths(cfg.PackageCache.ProbingPaths...),
	}
	if cfg.PackageCache.DependencyManifest != "" {
		pipelineOpts = append(pipelineOpts, scratch.WithDependencyManifest(cfg.PackageCache.DependencyManifest))
	}
	pipeline := scratch.NewPipeline(resolver, log, pipelineOpts...)

	svc := executions.New(pipeline, store, log).
		WithDefaults(executionDefaults(cfg))
	if cfg.RateLimit.PerSecond > 0 {
		svc = svc.WithRateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpapi.NewHandler(svc, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		httpServer: httpSrv,
		indexer:    indexer,
		db:         db,
	}, nil
}

// Run starts the package indexer and HTTP server, blocking until the context
// is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.indexer.Start(ctx); err != nil {
		return fmt.Errorf("start package index: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, the indexer, and the database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.indexer.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping package index")
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func executionDefaults(cfg *config.Config) execution.Config {
	return execution.Config{
		Timeout:          cfg.Execution.Timeout(),
		DefaultImports:   cfg.Execution.DefaultImports,
		ConnectionString: cfg.Execution.ConnectionString,
	}
}

func buildStore(cfg *config.Config) (storage.ExecutionStore, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		return memory.New(), nil, nil
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}

	store := postgres.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, db, nil
}
