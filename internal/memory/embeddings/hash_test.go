package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashEmbedderIsDeterministic(t *testing.T) {
	e := NewHashEmbedder(32)
	a, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestHashEmbedderDistinctTextsDiffer(t *testing.T) {
	e := NewHashEmbedder(32)
	a, err := e.Embed(context.Background(), "alpha")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "omega")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestHashEmbedderEmbedBatchMatchesSequential(t *testing.T) {
	e := NewHashEmbedder(16)
	texts := []string{"one", "two", "three"}
	batch, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))
	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Equal(t, single, batch[i])
	}
}

func TestHashEmbedderDimensions(t *testing.T) {
	e := NewHashEmbedder(48)
	require.Equal(t, 48, e.Dimensions())
	v, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	require.Len(t, v, 48)
}
