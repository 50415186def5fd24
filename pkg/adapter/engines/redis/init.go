package redis

import (
	"github.com/ajitpratap0/polystore/pkg/adapter/core"
	"github.com/ajitpratap0/polystore/pkg/adapter/registry"
)

func init() {
	// Register the Redis key-value adapter
	registry.Register(core.EngineRedis, New)
}
