package vectorstore

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// MetadataCache is a Redis-backed side cache for entry metadata and namespace
// counts. It is best-effort: a cache miss or failure falls through to the
// underlying store.
type MetadataCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewMetadataCache connects to Redis and verifies the connection.
func NewMetadataCache(redisURL string, ttl time.Duration) (*MetadataCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MetadataCache{rdb: rdb, ttl: ttl}, nil
}

func (c *MetadataCache) metaKey(namespace, id string) string {
	return "vs:" + namespace + ":meta:" + id
}

func (c *MetadataCache) countKey(namespace string) string {
	return "vs:" + namespace + ":count"
}

func (c *MetadataCache) SetMetadata(ctx context.Context, namespace, id string, metadata map[string]interface{}) error {
	b, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.metaKey(namespace, id), b, c.ttl).Err()
}

func (c *MetadataCache) GetMetadata(ctx context.Context, namespace, id string) (map[string]interface{}, bool, error) {
	res, err := c.rdb.Get(ctx, c.metaKey(namespace, id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal(res, &metadata); err != nil {
		return nil, false, err
	}
	return metadata, true, nil
}

func (c *MetadataCache) Invalidate(ctx context.Context, namespace string, ids ...string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.metaKey(namespace, id)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *MetadataCache) SetCount(ctx context.Context, namespace string, count int64) error {
	return c.rdb.Set(ctx, c.countKey(namespace), count, c.ttl).Err()
}

func (c *MetadataCache) GetCount(ctx context.Context, namespace string) (int64, bool, error) {
	res, err := c.rdb.Get(ctx, c.countKey(namespace)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(res, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

func (c *MetadataCache) InvalidateCount(ctx context.Context, namespace string) error {
	return c.rdb.Del(ctx, c.countKey(namespace)).Err()
}

func (c *MetadataCache) Close() error {
	return c.rdb.Close()
}
