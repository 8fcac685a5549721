package vectorindex

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
	"github.com/DonISO100/classical-works-processor/internal/pipeline"
)

type fakeChunkStore struct {
	byJob     map[string][]pipeline.Chunk
	upsertErr error
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{byJob: make(map[string][]pipeline.Chunk)}
}

func (s *fakeChunkStore) UpsertIndexedChunks(_ context.Context, jobID string, chunks []pipeline.Chunk) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.byJob[jobID] = append([]pipeline.Chunk(nil), chunks...)
	return nil
}

func (s *fakeChunkStore) LoadIndexedChunks(_ context.Context, jobID string) ([]pipeline.Chunk, error) {
	return s.byJob[jobID], nil
}

func TestSQLiteIndexerStoresChunks(t *testing.T) {
	store := newFakeChunkStore()
	indexer := NewSQLiteIndexer(store)

	chunks := []pipeline.Chunk{
		{Content: "alpha", Metadata: []jobs.Paragraph{{Page: 1, Paragraph: 1, Text: "alpha"}}},
		{Content: "beta", Metadata: []jobs.Paragraph{{Page: 1, Paragraph: 2, Text: "beta"}}},
	}
	require.NoError(t, indexer.IndexChunks(context.Background(), "job-1", chunks))

	got, err := indexer.Search(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].Content)
}

func TestSQLiteIndexerReindexReplaces(t *testing.T) {
	store := newFakeChunkStore()
	indexer := NewSQLiteIndexer(store)
	ctx := context.Background()

	require.NoError(t, indexer.IndexChunks(ctx, "job-1", []pipeline.Chunk{{Content: "old"}}))
	require.NoError(t, indexer.IndexChunks(ctx, "job-1", []pipeline.Chunk{{Content: "new"}}))

	got, err := indexer.Search(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Content)
}

func TestSQLiteIndexerWrapsStoreFailure(t *testing.T) {
	store := newFakeChunkStore()
	store.upsertErr = errors.New("disk full")
	indexer := NewSQLiteIndexer(store)

	err := indexer.IndexChunks(context.Background(), "job-1", []pipeline.Chunk{{Content: "alpha"}})
	require.Error(t, err)
	assert.True(t, pipeline.IsErrorType(err, pipeline.ErrIndexing))
	assert.Contains(t, err.Error(), "disk full")
}
