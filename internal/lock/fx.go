package lock

import (
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(NewRedisClient),
	fx.Provide(New),
)

type Params struct {
	fx.In

	Redis *redis.Client `optional:"true"`
	Log   *zap.Logger
}

// New always serializes in process first; the Redis lock is layered on top when a
// client is configured so one replica does not hammer Redis with its own waiters.
func New(p Params) Locker {
	local := NewLocalLocker()
	if p.Redis == nil {
		p.Log.Named("lock").Info("using in-process locks")
		return local
	}
	return Chain{local, NewRedisLocker(p.Redis)}
}
