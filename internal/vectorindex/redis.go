package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DonISO100/classical-works-processor/internal/pipeline"
	"github.com/DonISO100/classical-works-processor/pkg/log"
)

const chunkKeyPrefix = "workindex:"

// RedisIndexer indexes chunks into redis, one hash per chunk keyed by
// job and position. Entries expire together after ttl.
type RedisIndexer struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisIndexer(rdb *redis.Client, ttl time.Duration) *RedisIndexer {
	return &RedisIndexer{
		rdb: rdb,
		ttl: ttl,
	}
}

// NewRedisIndexerFromURL dials redis with a standard connection URL
// (redis://[user:pass@]host:port/db).
func NewRedisIndexerFromURL(redisURL string, ttl time.Duration) (*RedisIndexer, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return NewRedisIndexer(redis.NewClient(opt), ttl), nil
}

func (i *RedisIndexer) IndexChunks(ctx context.Context, jobID string, chunks []pipeline.Chunk) error {
	log.Info("Indexing %d chunks for job %s into redis", len(chunks), jobID)

	tx := i.rdb.TxPipeline()
	for position, chunk := range chunks {
		metadataJSON, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return pipeline.NewErrorWithCause(pipeline.ErrIndexing, "failed to encode chunk metadata", err).
				WithContext("job_id", jobID)
		}
		key := chunkKey(jobID, position)
		tx.HSet(ctx, key,
			"content", chunk.Content,
			"metadata", string(metadataJSON),
		)
		if i.ttl > 0 {
			tx.Expire(ctx, key, i.ttl)
		}
	}
	if _, err := tx.Exec(ctx); err != nil {
		return pipeline.NewErrorWithCause(pipeline.ErrIndexing, "redis indexing failed", err).
			WithContext("job_id", jobID)
	}
	return nil
}

func (i *RedisIndexer) Close() error {
	return i.rdb.Close()
}

func chunkKey(jobID string, position int) string {
	return fmt.Sprintf("%s%s:%d", chunkKeyPrefix, jobID, position)
}
