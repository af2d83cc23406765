// Package main implements the clipsearch CLI for running ingestion and
// search without the daemon, and for checking the vector store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clipsearch/internal/config"
	"github.com/fyrsmithlabs/clipsearch/internal/dataset"
	"github.com/fyrsmithlabs/clipsearch/internal/embeddings"
	"github.com/fyrsmithlabs/clipsearch/internal/ingest"
	"github.com/fyrsmithlabs/clipsearch/internal/logging"
	"github.com/fyrsmithlabs/clipsearch/internal/search"
	"github.com/fyrsmithlabs/clipsearch/internal/vectorstore"
)

var (
	// configPath is the optional YAML config file
	configPath string
	// searchLimit caps the number of matches returned
	searchLimit int
	// saveDir, when set, receives the matched images as files
	saveDir string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clipsearch",
	Short: "CLI for text-to-image search",
	Long: `clipsearch embeds an image dataset with a CLIP model and searches it
with free-text queries. All commands run directly against the configured
vector store; no running clipsearchd is required.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(healthCmd)
}

// ingestCmd rebuilds the collection from the dataset directory
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed the dataset and rebuild the vector store collection",
	Long: `Embed every image under the dataset directory and rebuild the
collection from scratch.

Examples:
  # Ingest with defaults (./dataset into the chromem store)
  clipsearch ingest

  # Ingest against qdrant
  VECTORSTORE_PROVIDER=qdrant clipsearch ingest`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

// searchCmd runs one query and prints (or saves) the matches
var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Search the dataset with a free-text query",
	Long: `Embed a text query and print the closest images.

Examples:
  # Top matches for a query
  clipsearch search "two dogs playing in the snow"

  # Save the matched images, ranked, into a directory
  clipsearch search --limit 5 --save-dir ./matches "a red car"`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

// healthCmd checks vector store reachability and collection state
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check vector store reachability and collection state",
	Long: `Connect to the configured vector store and report the state of the
search collection.

Examples:
  # Check the configured store
  clipsearch health

  # Check a qdrant deployment
  VECTORSTORE_PROVIDER=qdrant clipsearch health`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum matches to return (0 uses the configured default)")
	searchCmd.Flags().StringVar(&saveDir, "save-dir", "", "directory to save matched images into")
}

// setup builds the shared pieces every local command needs.
func setup() (*config.Config, *zap.Logger, *embeddings.Service, vectorstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey.Value(),
		Timeout: cfg.Embeddings.Timeout.Duration(),
	})
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("initializing embedder: %w", err)
	}

	store, err := vectorstore.New(cfg.VectorStore, logger)
	if err != nil {
		_ = embedder.Close()
		return nil, nil, nil, nil, fmt.Errorf("initializing vector store: %w", err)
	}

	return cfg, logger, embedder, store, nil
}

// runIngest handles the ingest command
func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, embedder, store, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
		_ = embedder.Close()
		_ = logging.Sync(logger)
	}()

	ds, err := dataset.Load(cfg.Dataset.Dir)
	if err != nil {
		return fmt.Errorf("loading dataset from %s: %w", cfg.Dataset.Dir, err)
	}

	pipeline, err := ingest.NewPipeline(embedder, store, logger, ingest.Config{
		Collection:  cfg.VectorStore.Collection,
		BatchSize:   cfg.Ingest.BatchSize,
		VectorsFile: cfg.Ingest.VectorsFile,
	})
	if err != nil {
		return fmt.Errorf("initializing ingestion pipeline: %w", err)
	}

	stats, err := pipeline.Run(cmd.Context(), ds)
	if err != nil {
		return fmt.Errorf("ingesting dataset: %w", err)
	}

	fmt.Printf("Ingested %d images in %d batches (%s)\n", stats.Points, stats.Batches, stats.Duration.Round(time.Millisecond))
	return nil
}

// runSearch handles the search command
func runSearch(cmd *cobra.Command, args []string) error {
	cfg, logger, embedder, store, err := setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
		_ = embedder.Close()
		_ = logging.Sync(logger)
	}()

	ds, err := dataset.Load(cfg.Dataset.Dir)
	if err != nil {
		return fmt.Errorf("loading dataset from %s: %w", cfg.Dataset.Dir, err)
	}

	svc, err := search.NewService(embedder, store, ds, logger, search.Config{
		Collection:   cfg.VectorStore.Collection,
		DefaultLimit: cfg.Search.Limit,
	})
	if err != nil {
		return fmt.Errorf("initializing search service: %w", err)
	}

	matches, err := svc.Search(cmd.Context(), args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(matches) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for i, m := range matches {
		fmt.Printf("%d. %s  score=%.4f  %s\n", i+1, m.ImageID, m.Score, m.Path)
	}

	if saveDir != "" {
		if err := saveMatches(saveDir, matches); err != nil {
			return err
		}
		fmt.Printf("Saved %d images to %s\n", len(matches), saveDir)
	}

	return nil
}

// saveMatches writes each matched image as <rank>_<image_id><ext> so the
// files sort in result order.
func saveMatches(dir string, matches []search.Match) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating save directory %s: %w", dir, err)
	}
	for i, m := range matches {
		name := fmt.Sprintf("%d_%s%s", i+1, m.ImageID, filepath.Ext(m.Path))
		if err := os.WriteFile(filepath.Join(dir, name), m.Image, 0o644); err != nil {
			return fmt.Errorf("saving %s: %w", name, err)
		}
	}
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store, err := vectorstore.New(cfg.VectorStore, zap.NewNop())
	if err != nil {
		return fmt.Errorf("connecting to vector store: %w", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	info, err := store.CollectionInfo(ctx, cfg.VectorStore.Collection)
	if err != nil {
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			fmt.Printf("Store %s: reachable\n", cfg.VectorStore.Provider)
			fmt.Printf("Collection %s: not found (run `clipsearch ingest`)\n", cfg.VectorStore.Collection)
			return nil
		}
		return fmt.Errorf("checking collection %s: %w", cfg.VectorStore.Collection, err)
	}

	fmt.Printf("Store %s: reachable\n", cfg.VectorStore.Provider)
	fmt.Printf("Collection %s: %d points, %d dimensions\n", info.Name, info.PointCount, info.VectorSize)
	return nil
}
