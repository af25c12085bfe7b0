package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kozaktomas/selfie-finder/internal/config"
	"github.com/kozaktomas/selfie-finder/internal/database"
	"github.com/kozaktomas/selfie-finder/internal/database/mariadb"
	"github.com/kozaktomas/selfie-finder/internal/database/memory"
	"github.com/kozaktomas/selfie-finder/internal/database/postgres"
	"github.com/kozaktomas/selfie-finder/internal/database/sqlite"
	"github.com/kozaktomas/selfie-finder/internal/engine"
	"github.com/kozaktomas/selfie-finder/internal/face"
	"github.com/kozaktomas/selfie-finder/internal/inference"
	"github.com/kozaktomas/selfie-finder/internal/inference/opencv"
	"github.com/kozaktomas/selfie-finder/internal/logging"
	"github.com/kozaktomas/selfie-finder/internal/metrics"
	"github.com/kozaktomas/selfie-finder/internal/notify"
	"github.com/kozaktomas/selfie-finder/internal/photostore"
	"github.com/kozaktomas/selfie-finder/internal/pipeline"
)

// backends holds everything a command needs to run the engine.
type backends struct {
	cfg       *config.Config
	log       *slog.Logger
	ictx      *inference.Context
	store     database.Store
	directory *mariadb.Pool
	publisher notify.Publisher
	metrics   *metrics.Prometheus
	pool      *pipeline.Pool
	engine    *engine.Engine
}

// loadConfig loads the configuration and builds the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level), nil
}

// openBackends connects storage, loads the models and builds the engine.
// Model load failures leave the engine disabled instead of failing.
func openBackends(ctx context.Context, cfg *config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{cfg: cfg, log: log, metrics: metrics.NewPrometheus()}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	b.store = store

	var lister database.PhotoLister
	if cfg.Database.DirectoryDSN != "" {
		dir, err := mariadb.NewPool(cfg.Database.DirectoryDSN)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect photo directory: %w", err)
		}
		b.directory = dir
		lister = mariadb.NewDirectory(dir)
		log.Info("using external photo directory")
	}

	photos, err := photostore.Open(ctx, cfg.Storage)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to open photo store: %w", err)
	}

	b.publisher, err = notify.Connect(cfg.MQTT, log)
	if err != nil {
		log.Warn("notifications disabled", "error", err)
		b.publisher = notify.Nop{}
	}

	b.ictx = loadModels(cfg, log)

	b.pool = pipeline.New(pipeline.Options{
		Workers:   cfg.PipelineWorkers(),
		QueueSize: cfg.Pipeline.QueueSize,
		Name:      "ingest",
		Logger:    log,
		Observer:  b.metrics,
	})

	extractor := face.NewExtractor(
		face.NewDetector(b.ictx, face.DetectorOptions{
			ScaleFactor:  cfg.Detection.ScaleFactor,
			MinNeighbors: cfg.Detection.MinNeighbors,
			MinSize:      cfg.Detection.MinSize,
		}, log),
		face.NewEmbedder(b.ictx, face.EmbedderOptions{
			CropSize:  cfg.Embedding.CropSize,
			Scale:     cfg.Embedding.Scale,
			Mean:      cfg.Embedding.Mean,
			SwapRB:    cfg.Embedding.SwapRB,
			Dimension: cfg.Embedding.Dimension,
		}, log),
		log,
	)
	extractor.SetMaxPixels(cfg.Detection.MaxPixels)

	b.engine, err = engine.New(engine.Options{
		Inference: b.ictx,
		Extractor: extractor,
		Store:     store,
		Lister:    lister,
		Threshold: cfg.Match.Threshold,
		Photos:    photos,
		Publisher: b.publisher,
		Observer:  b.metrics,
		Logger:    log,
	})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	return b, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (database.Store, error) {
	dim := cfg.Embedding.Dimension
	switch cfg.Database.Backend {
	case "postgres":
		pool, applied, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		for _, name := range applied {
			log.Info("applied migration", "name", name)
		}
		log.Info("using PostgreSQL encoding store")
		return postgres.NewStore(pool, dim), nil
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Database.SQLitePath, dim)
		if err != nil {
			return nil, err
		}
		log.Info("using SQLite encoding store", "path", cfg.Database.SQLitePath)
		return store, nil
	default:
		log.Warn("using in-memory encoding store, encodings are lost on exit")
		return memory.New(dim), nil
	}
}

func loadModels(cfg *config.Config, log *slog.Logger) *inference.Context {
	if cfg.Inference.Disabled {
		log.Warn("face recognition disabled by configuration")
		return inference.Disabled(nil)
	}
	ictx, err := inference.Load(inference.Config{
		DetectorPath: cfg.Inference.DetectorPath,
		EmbedderPath: cfg.Inference.EmbedderPath,
		Instances:    cfg.Inference.Instances,
	}, opencv.NewLoader())
	if err != nil {
		log.Error("face recognition unavailable, continuing without it", "error", err)
		return ictx
	}
	log.Info("face models loaded", "instances", ictx.Instances())
	return ictx
}

// Close drains the worker pool and releases every backend.
func (b *backends) Close() {
	if b.pool != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := b.pool.Close(ctx); err != nil {
			b.log.Warn("worker pool did not drain", "error", err)
		}
		cancel()
	}
	if b.publisher != nil {
		b.publisher.Close()
	}
	if err := b.ictx.Close(); err != nil {
		b.log.Warn("failed to release models", "error", err)
	}
	if b.directory != nil {
		if err := b.directory.Close(); err != nil {
			b.log.Warn("failed to close photo directory", "error", err)
		}
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			b.log.Warn("failed to close encoding store", "error", err)
		}
	}
}
