// Package search serves text-to-image similarity queries.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/clipsearch/internal/dataset"
	"github.com/fyrsmithlabs/clipsearch/internal/embeddings"
	"github.com/fyrsmithlabs/clipsearch/internal/vectorstore"
	"go.uber.org/zap"
)

var (
	// ErrEmptyQuery is returned for an empty query string.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrIndexMismatch is returned when a stored point does not line up
	// with the loaded dataset, i.e. the dataset changed or was reordered
	// since ingestion. Results would be silently wrong, so the query
	// fails instead.
	ErrIndexMismatch = errors.New("stored point does not match dataset item")
)

// Match is one query result: the dataset item that matched and its cosine
// similarity to the query. Ephemeral; built per query.
type Match struct {
	// Index is the item's positional index (the stored point id).
	Index int

	// ImageID is the item's derived identifier.
	ImageID string

	// Path is the item's source path relative to the dataset root.
	Path string

	// Score is the cosine similarity in [-1, 1], higher is better.
	Score float32

	// Image is the raw image content for display.
	Image []byte
}

// Config holds query settings.
type Config struct {
	// Collection is the collection to search.
	Collection string

	// DefaultLimit is the result count used when a query does not
	// specify one. Default: 2.
	DefaultLimit int
}

// Service runs a text query end-to-end: embed, search, resolve back to
// dataset images. No query caching; every call re-embeds and re-queries.
type Service struct {
	embedder embeddings.Embedder
	store    vectorstore.Store
	ds       *dataset.Dataset
	logger   *zap.Logger
	config   Config
}

// NewService creates a query service.
func NewService(embedder embeddings.Embedder, store vectorstore.Store, ds *dataset.Dataset, logger *zap.Logger, cfg Config) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if ds == nil {
		return nil, fmt.Errorf("dataset is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := vectorstore.ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}
	if cfg.DefaultLimit == 0 {
		cfg.DefaultLimit = 2
	}
	if cfg.DefaultLimit < 0 {
		return nil, fmt.Errorf("default limit must be positive, got %d", cfg.DefaultLimit)
	}

	return &Service{
		embedder: embedder,
		store:    store,
		ds:       ds,
		logger:   logger,
		config:   cfg,
	}, nil
}

// Search embeds the query text, runs a similarity search, and resolves the
// returned ids back to dataset items. Results are ordered best match first.
// A limit <= 0 uses the configured default.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.store.Search(ctx, s.config.Collection, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("searching collection %s: %w", s.config.Collection, err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		item, err := s.ds.Item(int(r.ID))
		if err != nil {
			return nil, fmt.Errorf("%w: point id %d: %v", ErrIndexMismatch, r.ID, err)
		}

		// The stored image_id must agree with the item at that index.
		// A disagreement means the dataset was reordered or replaced
		// since ingestion.
		if stored, ok := r.Payload["image_id"].(string); ok && stored != item.ImageID {
			return nil, fmt.Errorf("%w: point id %d stored image_id %q, dataset has %q",
				ErrIndexMismatch, r.ID, stored, item.ImageID)
		}

		matches = append(matches, Match{
			Index:   int(r.ID),
			ImageID: item.ImageID,
			Path:    item.Path,
			Score:   r.Score,
			Image:   item.Data,
		})
	}

	s.logger.Debug("query served",
		zap.String("query", query),
		zap.Int("limit", limit),
		zap.Int("matches", len(matches)),
	)

	return matches, nil
}
