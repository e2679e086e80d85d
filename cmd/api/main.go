package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/bryanwahyu/pestwatch/internal/application"
	appdetections "github.com/bryanwahyu/pestwatch/internal/application/detections"
	"github.com/bryanwahyu/pestwatch/internal/config"
	"github.com/bryanwahyu/pestwatch/internal/domain/detection"
	"github.com/bryanwahyu/pestwatch/internal/domain/pipelineerrors"
	"github.com/bryanwahyu/pestwatch/internal/domain/species"
	"github.com/bryanwahyu/pestwatch/internal/infra/ai/openai"
	"github.com/bryanwahyu/pestwatch/internal/infra/db"
	"github.com/bryanwahyu/pestwatch/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/pestwatch/internal/infra/db/mysql"
	pgp "github.com/bryanwahyu/pestwatch/internal/infra/db/postgres"
	"github.com/bryanwahyu/pestwatch/internal/infra/httpserver"
	"github.com/bryanwahyu/pestwatch/internal/infra/refimages"
	"github.com/bryanwahyu/pestwatch/internal/infra/speciesfile"
	minioStore "github.com/bryanwahyu/pestwatch/internal/infra/storage"
	"github.com/bryanwahyu/pestwatch/internal/logger"
	"github.com/bryanwahyu/pestwatch/internal/middleware"
)

// speciesStore is a species source that can also be written, i.e. a SQL table.
type speciesStore interface {
	species.Source
	Save(ctx context.Context, s *species.Species) error
}

type repositories struct {
	db         *sql.DB
	detections detection.Repository
	errors     pipelineerrors.Repository
	species    speciesStore
}

func main() {
	// load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", logger.Error(err))
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", logger.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx := context.Background()

	// init repo
	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return err
	}
	if repos.db != nil {
		defer repos.db.Close()
	}
	log.Info("database ready", logger.String("driver", cfg.Database.Driver))

	source, err := speciesSource(ctx, cfg, repos, log)
	if err != nil {
		return err
	}

	// init minio
	store, err := minioStore.New(ctx, minioStore.Config{
		Endpoint:  cfg.Minio.Endpoint,
		Region:    cfg.Minio.Region,
		Bucket:    cfg.Minio.BucketName,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		UseSSL:    cfg.Minio.UseSSL,
		URLExpiry: cfg.Minio.URLExpiry,
	})
	if err != nil {
		return fmt.Errorf("minio init: %w", err)
	}

	// init classifier
	classifier, err := openai.NewClient(openai.Config{
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		BaseURL: cfg.AI.BaseURL,
	})
	if err != nil {
		return err
	}

	health := map[string]middleware.HealthChecker{
		"storage": middleware.CheckFunc(store.Ping),
	}
	if repos.db != nil {
		health["database"] = &middleware.DatabaseHealthChecker{DB: repos.db}
	}

	// init reference catalogs
	var references detection.ReferenceFinder = refimages.NewAggregator(
		&refimages.INaturalist{BaseURL: cfg.Catalogs.INaturalistURL, Timeout: cfg.Timeouts.Catalog, Log: log},
		&refimages.Wikimedia{BaseURL: cfg.Catalogs.WikimediaURL, Timeout: cfg.Timeouts.Catalog},
		log,
	)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		references = refimages.NewCache(references, rdb, cfg.Redis.TTL, log)
		health["redis"] = middleware.CheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	metrics := middleware.NewMetrics()

	// init service
	svc := &appdetections.Service{
		Repo:       repos.detections,
		Errors:     repos.errors,
		Images:     store,
		Classifier: classifier,
		Species:    source,
		References: references,
		Clock:      application.SystemClock{},
		Log:        log,
		Metrics:    metrics,
		Options: appdetections.Options{
			ClassificationTimeout: cfg.Timeouts.Classification,
			EnrichmentTimeout:     cfg.Timeouts.Enrichment,
			MinImageBytes:         cfg.Images.MinBytes,
			MaxImageBytes:         cfg.Images.MaxBytes,
			AllowedImageHosts:     cfg.AllowedImageHosts,
		},
	}

	var draining atomic.Bool

	// init router
	handler := httpserver.NewRouter(svc, httpserver.Options{
		Log:            log,
		Metrics:        metrics,
		Health:         health,
		Ready:          func() bool { return !draining.Load() },
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitRPM:   cfg.Server.RateLimit.RequestsPerMinute,
		RateLimitBurst: cfg.Server.RateLimit.Burst,
		MaxImageBytes:  cfg.Images.MaxBytes,
		OperatorKeys:   cfg.OperatorKeys(),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := httpserver.NewServer(addr, handler, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	// run server
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", logger.String("addr", addr), logger.String("model", classifier.Model))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		log.Info("shutting down server", logger.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}
	draining.Store(true)

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("shutdown error", logger.Error(err))
	}

	// enrichment goroutines still hold database handles
	svc.Wait()
	log.Info("server stopped")
	return nil
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	pool := db.Pool{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}
	switch cfg.Database.Driver {
	case "mysql":
		conn, err := mysqlp.Connect(ctx, cfg.MySQLDSN(), pool)
		if err != nil {
			return nil, fmt.Errorf("mysql connect: %w", err)
		}
		return &repositories{
			db:         conn,
			detections: mysqlp.NewDetectionRepository(conn),
			errors:     mysqlp.NewPipelineErrorRepository(conn),
			species:    mysqlp.NewSpeciesRepository(conn),
		}, nil
	case "postgres":
		conn, err := pgp.Connect(ctx, cfg.PostgresDSN(), pool)
		if err != nil {
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		return &repositories{
			db:         conn,
			detections: pgp.NewDetectionRepository(conn),
			errors:     pgp.NewPipelineErrorRepository(conn),
			species:    pgp.NewSpeciesRepository(conn),
		}, nil
	default:
		return &repositories{
			detections: memory.NewDetectionRepository(),
			errors:     memory.NewPipelineErrorRepository(),
			species:    memory.NewSpeciesRepository(),
		}, nil
	}
}

// speciesSource returns where the active species are read from. A database
// source with an empty table is seeded once from the species file.
func speciesSource(ctx context.Context, cfg *config.Config, repos *repositories, log logger.Logger) (species.Source, error) {
	file := speciesfile.New(cfg.Species.File)
	if cfg.Species.Source == "file" {
		if _, err := file.List(ctx); err != nil {
			return nil, fmt.Errorf("species file: %w", err)
		}
		log.Info("species loaded from file", logger.String("path", cfg.Species.File))
		return file, nil
	}

	existing, err := repos.species.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list species: %w", err)
	}
	if len(existing) > 0 {
		return repos.species, nil
	}

	seed, err := file.List(ctx)
	if err != nil {
		log.Warn("species table empty and seed file unreadable", logger.Error(err))
		return repos.species, nil
	}
	for i := range seed {
		if err := repos.species.Save(ctx, &seed[i]); err != nil {
			return nil, fmt.Errorf("seed species %s: %w", seed[i].ID, err)
		}
	}
	log.Info("species table seeded", logger.Int("count", len(seed)), logger.String("path", cfg.Species.File))
	return repos.species, nil
}
