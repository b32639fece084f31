package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"

	"l2book/biz/dal/redis"
	"l2book/conf"
)

const snapshotKey = "l2book:snapshot"

// BookCache keeps the latest level-2 snapshot in redis so restarted or
// external readers can bootstrap without replaying the feed.
type BookCache struct {
	ttl time.Duration
}

// NewBookCache returns nil when redis is not configured.
func NewBookCache() *BookCache {
	if redis.Client == nil {
		return nil
	}
	ttl := time.Duration(conf.GetConf().Redis.SnapshotTTLMS) * time.Millisecond
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &BookCache{ttl: ttl}
}

// Store overwrites the cached snapshot. Best-effort; a failed write only
// logs.
func (c *BookCache) Store(snap BookSnapshot) {
	val, err := json.Marshal(snap)
	if err != nil {
		hlog.Errorf("[BookCache] marshal failed: %v", err)
		return
	}
	if err := redis.Client.Set(context.Background(), snapshotKey, val, c.ttl).Err(); err != nil {
		hlog.Errorf("[BookCache] redis set failed: %v", err)
	}
}

// Load reads the cached snapshot back, for the REST fallback path.
func (c *BookCache) Load(ctx context.Context) (BookSnapshot, error) {
	var snap BookSnapshot
	val, err := redis.Client.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		return snap, err
	}
	err = json.Unmarshal(val, &snap)
	return snap, err
}
