package vectorstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clipsearch/internal/config"
	"github.com/fyrsmithlabs/clipsearch/internal/vectorstore"
)

func TestNew_ChromemProvider(t *testing.T) {
	store, err := vectorstore.New(config.VectorStoreConfig{Provider: "chromem"}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &vectorstore.ChromemStore{}, store)
}

func TestNew_EmptyProviderDefaultsToChromem(t *testing.T) {
	store, err := vectorstore.New(config.VectorStoreConfig{}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &vectorstore.ChromemStore{}, store)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := vectorstore.New(config.VectorStoreConfig{Provider: "pinecone"}, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}
