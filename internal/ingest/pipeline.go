// Package ingest populates the vector store from an image dataset.
//
// Ingestion is a full rebuild: the target collection is recreated on every
// run and all items are re-embedded and re-upserted. Point ids are the
// items' positional indices in the dataset, which is what lets a search
// result be mapped back to its image.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/clipsearch/internal/dataset"
	"github.com/fyrsmithlabs/clipsearch/internal/embeddings"
	"github.com/fyrsmithlabs/clipsearch/internal/vectorstore"
	"go.uber.org/zap"
)

// Config holds ingestion settings.
type Config struct {
	// Collection is the target collection name.
	Collection string

	// BatchSize is the number of images embedded and upserted per batch.
	// Default: 16. The last batch may be shorter.
	BatchSize int

	// VectorsFile optionally receives the full embedding matrix as a
	// NumPy .npy file after ingestion, for offline inspection. Empty
	// disables the artifact. The vector store remains the system of
	// record either way.
	VectorsFile string
}

// Stats summarizes one ingestion run.
type Stats struct {
	Points   int
	Batches  int
	Duration time.Duration
}

// Pipeline embeds a dataset and upserts it into the vector store.
type Pipeline struct {
	embedder embeddings.Embedder
	store    vectorstore.Store
	logger   *zap.Logger
	config   Config
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(embedder embeddings.Embedder, store vectorstore.Store, logger *zap.Logger, cfg Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := vectorstore.ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 16
	}
	if cfg.BatchSize < 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		logger:   logger,
		config:   cfg,
	}, nil
}

// Run rebuilds the collection from the dataset.
//
// The collection is recreated first, so a failed run leaves an incomplete
// collection rather than a stale-but-plausible one; callers must treat any
// returned error as fatal for subsequent queries. An empty dataset yields a
// valid empty collection.
func (p *Pipeline) Run(ctx context.Context, ds *dataset.Dataset) (*Stats, error) {
	start := time.Now()
	dim := p.embedder.Dimension()

	p.logger.Info("starting ingestion",
		zap.String("collection", p.config.Collection),
		zap.Int("items", ds.Len()),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("vector_size", dim),
	)

	if err := p.store.RecreateCollection(ctx, p.config.Collection, dim); err != nil {
		return nil, fmt.Errorf("recreating collection %s: %w", p.config.Collection, err)
	}

	items := ds.Items()
	var matrix [][]float32
	if p.config.VectorsFile != "" {
		matrix = make([][]float32, 0, len(items))
	}

	batches := 0
	for lo := 0; lo < len(items); lo += p.config.BatchSize {
		hi := lo + p.config.BatchSize
		if hi > len(items) {
			hi = len(items)
		}
		batch := items[lo:hi]

		images := make([][]byte, len(batch))
		for i, item := range batch {
			images[i] = item.Data
		}

		vectors, err := p.embedder.EmbedImages(ctx, images)
		if err != nil {
			return nil, fmt.Errorf("embedding batch at offset %d: %w", lo, err)
		}

		ids := make([]uint64, len(batch))
		payloads := make([]map[string]any, len(batch))
		for i, item := range batch {
			ids[i] = uint64(lo + i)
			payloads[i] = map[string]any{
				"image_id": item.ImageID,
				"path":     item.Path,
			}
		}

		if err := p.store.Upsert(ctx, p.config.Collection, ids, vectors, payloads); err != nil {
			return nil, fmt.Errorf("upserting batch at offset %d: %w", lo, err)
		}

		if matrix != nil {
			matrix = append(matrix, vectors...)
		}

		batches++
		p.logger.Debug("ingested batch",
			zap.Int("offset", lo),
			zap.Int("size", len(batch)),
		)
	}

	if p.config.VectorsFile != "" {
		if err := WriteNPY(p.config.VectorsFile, matrix, dim); err != nil {
			return nil, fmt.Errorf("writing vectors file: %w", err)
		}
		p.logger.Info("wrote embedding matrix",
			zap.String("file", p.config.VectorsFile),
			zap.Int("rows", len(matrix)),
			zap.Int("cols", dim),
		)
	}

	stats := &Stats{
		Points:   len(items),
		Batches:  batches,
		Duration: time.Since(start),
	}

	p.logger.Info("ingestion complete",
		zap.Int("points", stats.Points),
		zap.Int("batches", stats.Batches),
		zap.Duration("duration", stats.Duration),
	)

	return stats, nil
}
