// Package vectorindex stores chunk content for later retrieval. Two
// backends are available: sqlite (default, shares the job database)
// and redis.
package vectorindex

import (
	"context"

	"github.com/DonISO100/classical-works-processor/internal/pipeline"
	"github.com/DonISO100/classical-works-processor/pkg/log"
)

// ChunkStore is the persistence surface the sqlite backend writes to.
type ChunkStore interface {
	UpsertIndexedChunks(ctx context.Context, jobID string, chunks []pipeline.Chunk) error
	LoadIndexedChunks(ctx context.Context, jobID string) ([]pipeline.Chunk, error)
}

// SQLiteIndexer indexes chunks into the job database. Re-indexing a
// job replaces its previous chunks.
type SQLiteIndexer struct {
	store ChunkStore
}

func NewSQLiteIndexer(store ChunkStore) *SQLiteIndexer {
	return &SQLiteIndexer{store: store}
}

func (i *SQLiteIndexer) IndexChunks(ctx context.Context, jobID string, chunks []pipeline.Chunk) error {
	log.Info("Indexing %d chunks for job %s", len(chunks), jobID)
	if err := i.store.UpsertIndexedChunks(ctx, jobID, chunks); err != nil {
		return pipeline.NewErrorWithCause(pipeline.ErrIndexing, "failed to index chunks", err).
			WithContext("job_id", jobID)
	}
	return nil
}

// Search returns the indexed chunks of a job in index order.
func (i *SQLiteIndexer) Search(ctx context.Context, jobID string) ([]pipeline.Chunk, error) {
	chunks, err := i.store.LoadIndexedChunks(ctx, jobID)
	if err != nil {
		return nil, pipeline.NewErrorWithCause(pipeline.ErrIndexing, "failed to load indexed chunks", err).
			WithContext("job_id", jobID)
	}
	return chunks, nil
}
