package dal

import (
	"l2book/biz/dal/kafka"
	"l2book/biz/dal/pg"
	"l2book/biz/dal/redis"
)

// Init brings up whichever backing services are configured. Each sub-init is
// a no-op when its section of the config is empty; the book server runs fine
// as a pure in-memory process.
func Init() {
	pg.Init()
	redis.Init()
	kafka.Init()
}
