// Clipsearchd is the text-to-image search daemon.
//
// On startup it loads the image dataset, embeds it with a CLIP inference
// service, rebuilds the vector store collection, and then serves search
// queries over HTTP (HTML page with htmx fragments, plus a JSON API).
//
// Configuration is loaded from a YAML file and environment variables:
//
//	# Start with defaults (chromem in-memory store, dataset in ./dataset)
//	clipsearchd
//
//	# Configure via environment
//	DATASET_DIR=/data/flickr8k VECTORSTORE_PROVIDER=qdrant clipsearchd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clipsearch/internal/config"
	"github.com/fyrsmithlabs/clipsearch/internal/dataset"
	"github.com/fyrsmithlabs/clipsearch/internal/embeddings"
	"github.com/fyrsmithlabs/clipsearch/internal/httpapi"
	"github.com/fyrsmithlabs/clipsearch/internal/ingest"
	"github.com/fyrsmithlabs/clipsearch/internal/logging"
	"github.com/fyrsmithlabs/clipsearch/internal/search"
	"github.com/fyrsmithlabs/clipsearch/internal/telemetry"
	"github.com/fyrsmithlabs/clipsearch/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("clipsearchd %s (%s)\n", version, gitCommit)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("server error: %v", err)
	}

	log.Println("server shutdown complete")
}

// run starts the daemon and blocks until the context is canceled.
//
// Initialization order matters: the dataset is fully ingested before the
// HTTP server accepts its first query, so a query can never run against an
// incomplete collection. Any ingestion failure is fatal.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting clipsearchd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("model", cfg.Embeddings.Model),
	)

	tel, err := telemetry.New(ctx, &telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey.Value(),
		Timeout: cfg.Embeddings.Timeout.Duration(),
	})
	if err != nil {
		return fmt.Errorf("initializing embedder: %w", err)
	}
	defer func() {
		_ = embedder.Close()
	}()

	store, err := vectorstore.New(cfg.VectorStore, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("vector store close failed", zap.Error(err))
		}
	}()

	ds, err := dataset.Load(cfg.Dataset.Dir)
	if err != nil {
		return fmt.Errorf("loading dataset from %s: %w", cfg.Dataset.Dir, err)
	}
	logger.Info("dataset loaded",
		zap.String("dir", cfg.Dataset.Dir),
		zap.Int("items", ds.Len()),
	)

	pipeline, err := ingest.NewPipeline(embedder, store, logger, ingest.Config{
		Collection:  cfg.VectorStore.Collection,
		BatchSize:   cfg.Ingest.BatchSize,
		VectorsFile: cfg.Ingest.VectorsFile,
	})
	if err != nil {
		return fmt.Errorf("initializing ingestion pipeline: %w", err)
	}
	if _, err := pipeline.Run(ctx, ds); err != nil {
		return fmt.Errorf("ingesting dataset: %w", err)
	}

	searcher, err := search.NewService(embedder, store, ds, logger, search.Config{
		Collection:   cfg.VectorStore.Collection,
		DefaultLimit: cfg.Search.Limit,
	})
	if err != nil {
		return fmt.Errorf("initializing search service: %w", err)
	}

	server, err := httpapi.NewServer(searcher, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return nil
}
