package ingest_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clipsearch/internal/dataset"
	"github.com/fyrsmithlabs/clipsearch/internal/embeddings"
	"github.com/fyrsmithlabs/clipsearch/internal/ingest"
	"github.com/fyrsmithlabs/clipsearch/internal/vectorstore"
)

const testDim = 4

// fakeEmbedder maps image content and query text to fixed one-hot vectors,
// so similarity outcomes in tests are exact.
type fakeEmbedder struct {
	vectors map[string][]float32
	batches []int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: make(map[string][]float32)}
}

func (f *fakeEmbedder) set(content string, hot int) {
	v := make([]float32, testDim)
	v[hot] = 1
	f.vectors[content] = v
}

func (f *fakeEmbedder) EmbedImages(ctx context.Context, images [][]byte) ([][]float32, error) {
	f.batches = append(f.batches, len(images))

	out := make([][]float32, len(images))
	for i, img := range images {
		v, ok := f.vectors[string(img)]
		if !ok {
			return nil, fmt.Errorf("no vector registered for %q", img)
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no vector registered for %q", text)
	}
	return v, nil
}

func (f *fakeEmbedder) Dimension() int { return testDim }
func (f *fakeEmbedder) Close() error   { return nil }

var _ embeddings.Embedder = (*fakeEmbedder)(nil)

// recordingStore captures upsert calls for batch assertions.
type recordingStore struct {
	recreated  []string
	vectorSize int
	ids        []uint64
	payloads   []map[string]any
	upserts    int
}

func (r *recordingStore) RecreateCollection(ctx context.Context, name string, vectorSize int) error {
	r.recreated = append(r.recreated, name)
	r.vectorSize = vectorSize
	return nil
}

func (r *recordingStore) Upsert(ctx context.Context, collection string, ids []uint64, vectors [][]float32, payloads []map[string]any) error {
	r.upserts++
	r.ids = append(r.ids, ids...)
	r.payloads = append(r.payloads, payloads...)
	return nil
}

func (r *recordingStore) Search(ctx context.Context, collection string, vector []float32, limit int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (r *recordingStore) CollectionInfo(ctx context.Context, name string) (*vectorstore.CollectionInfo, error) {
	return nil, vectorstore.ErrCollectionNotFound
}

func (r *recordingStore) Close() error { return nil }

var _ vectorstore.Store = (*recordingStore)(nil)

// buildDataset writes image files and loads them as a dataset. Content of
// each file is its name, which the fake embedder keys on.
func buildDataset(t *testing.T, names ...string) *dataset.Dataset {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	}
	ds, err := dataset.Load(dir)
	require.NoError(t, err)
	return ds
}

func TestPipeline_IDsArePositionalIndices(t *testing.T) {
	ds := buildDataset(t, "a/1.jpg", "a/2.jpg", "b/3.jpg")

	embedder := newFakeEmbedder()
	embedder.set("a/1.jpg", 0)
	embedder.set("a/2.jpg", 1)
	embedder.set("b/3.jpg", 2)

	store := &recordingStore{}
	pipeline, err := ingest.NewPipeline(embedder, store, zap.NewNop(), ingest.Config{Collection: "images"})
	require.NoError(t, err)

	stats, err := pipeline.Run(context.Background(), ds)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Points)
	assert.Equal(t, 1, stats.Batches)
	assert.Equal(t, []string{"images"}, store.recreated)
	assert.Equal(t, testDim, store.vectorSize)
	assert.Equal(t, []uint64{0, 1, 2}, store.ids)

	require.Len(t, store.payloads, 3)
	assert.Equal(t, "1", store.payloads[0]["image_id"])
	assert.Equal(t, "a/1.jpg", store.payloads[0]["path"])
	assert.Equal(t, "3", store.payloads[2]["image_id"])
	assert.Equal(t, "b/3.jpg", store.payloads[2]["path"])
}

func TestPipeline_BatchPartitioning(t *testing.T) {
	names := make([]string, 5)
	embedder := newFakeEmbedder()
	for i := range names {
		names[i] = fmt.Sprintf("img%d.jpg", i)
		embedder.set(names[i], i%testDim)
	}
	ds := buildDataset(t, names...)

	store := &recordingStore{}
	pipeline, err := ingest.NewPipeline(embedder, store, zap.NewNop(), ingest.Config{
		Collection: "images",
		BatchSize:  2,
	})
	require.NoError(t, err)

	stats, err := pipeline.Run(context.Background(), ds)
	require.NoError(t, err)

	// 5 items in batches of 2: sizes 2, 2, 1.
	assert.Equal(t, 3, stats.Batches)
	assert.Equal(t, 3, store.upserts)
	assert.Equal(t, []int{2, 2, 1}, embedder.batches)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, store.ids)
}

func TestPipeline_EmptyDataset(t *testing.T) {
	ds := buildDataset(t)

	store := &recordingStore{}
	pipeline, err := ingest.NewPipeline(newFakeEmbedder(), store, zap.NewNop(), ingest.Config{Collection: "images"})
	require.NoError(t, err)

	stats, err := pipeline.Run(context.Background(), ds)
	require.NoError(t, err)

	// The collection is still recreated, just stays empty.
	assert.Equal(t, 0, stats.Points)
	assert.Equal(t, 0, stats.Batches)
	assert.Equal(t, []string{"images"}, store.recreated)
	assert.Equal(t, 0, store.upserts)
}

func TestPipeline_WritesVectorsFile(t *testing.T) {
	ds := buildDataset(t, "a.jpg", "b.jpg")

	embedder := newFakeEmbedder()
	embedder.set("a.jpg", 0)
	embedder.set("b.jpg", 1)

	vectorsFile := filepath.Join(t.TempDir(), "vectors.npy")
	pipeline, err := ingest.NewPipeline(embedder, &recordingStore{}, zap.NewNop(), ingest.Config{
		Collection:  "images",
		VectorsFile: vectorsFile,
	})
	require.NoError(t, err)

	_, err = pipeline.Run(context.Background(), ds)
	require.NoError(t, err)

	matrix, err := ingest.ReadNPY(vectorsFile)
	require.NoError(t, err)
	require.Len(t, matrix, 2)
	assert.Equal(t, []float32{1, 0, 0, 0}, matrix[0])
	assert.Equal(t, []float32{0, 1, 0, 0}, matrix[1])
}

func TestPipeline_EndToEndWithChromem(t *testing.T) {
	ds := buildDataset(t, "a/1.jpg", "a/2.jpg", "b/3.jpg")

	embedder := newFakeEmbedder()
	embedder.set("a/1.jpg", 0)
	embedder.set("a/2.jpg", 1)
	embedder.set("b/3.jpg", 2)
	// The query lands on the second image's vector.
	embedder.set("something like image two", 1)

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)

	pipeline, err := ingest.NewPipeline(embedder, store, zap.NewNop(), ingest.Config{Collection: "images"})
	require.NoError(t, err)
	_, err = pipeline.Run(context.Background(), ds)
	require.NoError(t, err)

	vector, err := embedder.EmbedText(context.Background(), "something like image two")
	require.NoError(t, err)

	results, err := store.Search(context.Background(), "images", vector, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, uint64(1), results[0].ID)
	assert.Equal(t, "2", results[0].Payload["image_id"])
}

func TestNewPipeline_Validation(t *testing.T) {
	embedder := newFakeEmbedder()
	store := &recordingStore{}

	_, err := ingest.NewPipeline(nil, store, zap.NewNop(), ingest.Config{Collection: "images"})
	assert.Error(t, err)

	_, err = ingest.NewPipeline(embedder, nil, zap.NewNop(), ingest.Config{Collection: "images"})
	assert.Error(t, err)

	_, err = ingest.NewPipeline(embedder, store, zap.NewNop(), ingest.Config{Collection: "Bad Name"})
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)

	_, err = ingest.NewPipeline(embedder, store, zap.NewNop(), ingest.Config{Collection: "images", BatchSize: -1})
	assert.Error(t, err)
}
