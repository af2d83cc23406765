package vectorstore

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("clipsearch.vectorstore.chromem")

// ChromemConfig holds configuration for the chromem-go embedded store.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means a purely
	// in-memory database, which suits the rebuild-on-startup workflow
	// since the external store is never the system of record here anyway.
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool
}

// ChromemStore implements the Store interface using chromem-go.
//
// chromem-go is an embeddable vector database in pure Go. All vectors are
// precomputed by the caller; the embedding callback chromem offers is never
// exercised.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// sizes tracks the configured vector width per collection.
	sizes sync.Map
}

// NewChromemStore creates a new ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(config.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", config.Path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("in_memory", config.Path == ""),
		zap.Bool("compress", config.Compress),
	)

	return &ChromemStore{
		db:     db,
		config: config,
		logger: logger,
	}, nil
}

// embeddingFunc satisfies chromem's collection constructor. Every document
// and query carries a precomputed vector, so this must never run.
func embeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("embedding delegated to caller; no vector provided for %q", text)
}

// RecreateCollection creates the named collection, discarding any existing
// data under that name.
func (s *ChromemStore) RecreateCollection(ctx context.Context, name string, vectorSize int) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.RecreateCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", name),
		attribute.Int("vector_size", vectorSize),
	)

	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if vectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive, got %d", ErrInvalidConfig, vectorSize)
	}

	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}
	if _, err := s.db.CreateCollection(name, nil, embeddingFunc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.sizes.Store(name, vectorSize)

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Upsert writes (id, vector, payload) triples into a collection.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, ids []uint64, vectors [][]float32, payloads []map[string]any) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("point_count", len(ids)),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return err
	}
	size := 0
	if v, ok := s.sizes.Load(collection); ok {
		size = v.(int)
	} else if len(vectors) > 0 {
		size = len(vectors[0])
	}
	if err := validateBatch(ids, vectors, payloads, size); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	col := s.db.GetCollection(collection, embeddingFunc)
	if col == nil {
		span.SetStatus(codes.Error, "collection not found")
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	docs := make([]chromem.Document, len(ids))
	for i := range ids {
		docs[i] = chromem.Document{
			ID:        strconv.FormatUint(ids[i], 10),
			Metadata:  stringifyPayload(payloads[i]),
			Embedding: vectors[i],
		}
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting %d points to collection %s: %w", len(docs), collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search returns up to limit results ordered by descending similarity.
func (s *ChromemStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("limit", limit),
	)

	if err := ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if size, ok := s.sizes.Load(collection); ok && len(vector) != size.(int) {
		return nil, fmt.Errorf("%w: query vector has dimension %d, collection %s expects %d",
			ErrDimensionMismatch, len(vector), collection, size.(int))
	}

	col := s.db.GetCollection(collection, embeddingFunc)
	if col == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	// chromem requires nResults <= document count.
	count := col.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if limit > count {
		limit = count
	}

	hits, err := col.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		id, err := strconv.ParseUint(hit.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing point id %q in collection %s: %w", hit.ID, collection, err)
		}
		results[i] = SearchResult{
			ID:      id,
			Score:   hit.Similarity,
			Payload: payloadFromStrings(hit.Metadata),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// CollectionInfo returns metadata about a collection.
func (s *ChromemStore) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	_, span := chromemTracer.Start(ctx, "ChromemStore.CollectionInfo")
	defer span.End()

	span.SetAttributes(attribute.String("collection", name))

	if err := ValidateCollectionName(name); err != nil {
		return nil, err
	}

	col := s.db.GetCollection(name, embeddingFunc)
	if col == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	size := 0
	if v, ok := s.sizes.Load(name); ok {
		size = v.(int)
	}

	info := &CollectionInfo{
		Name:       name,
		PointCount: col.Count(),
		VectorSize: size,
	}

	span.SetAttributes(attribute.Int("point_count", info.PointCount))
	span.SetStatus(codes.Ok, "success")
	return info, nil
}

// Close is a no-op; chromem persists synchronously on write.
func (s *ChromemStore) Close() error {
	return nil
}

// stringifyPayload converts a payload map to chromem's string metadata.
func stringifyPayload(payload map[string]any) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

// payloadFromStrings converts chromem metadata back to a payload map.
func payloadFromStrings(metadata map[string]string) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
