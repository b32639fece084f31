package redis

import (
	"context"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/redis/go-redis/v9"

	"l2book/conf"
)

var Client *redis.Client

// Init connects the snapshot cache. Skipped when no address is configured;
// Client stays nil and the cache sidecar is not started.
func Init() {
	redisConf := conf.GetConf().Redis
	if redisConf.Address == "" {
		hlog.Info("redis not configured, snapshot cache disabled")
		return
	}
	Client = redis.NewClient(&redis.Options{
		Addr:     redisConf.Address,
		Username: redisConf.Username,
		Password: redisConf.Password,
		DB:       redisConf.DB,
	})
	if err := Client.Ping(context.Background()).Err(); err != nil {
		panic(err)
	}
}
