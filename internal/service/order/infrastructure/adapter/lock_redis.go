package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"orderhub/internal/pkg/logger"
	"orderhub/internal/pkg/redis"
)

const (
	unlockScriptName = "order_lock_release"
	renewScriptName  = "order_lock_renew"
	lockKeyPrefix    = "orderhub:lock:"
)

// 只有持有者 (token 一致) 才能释放/续期
var unlockScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`

var renewScript = `
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('pexpire', KEYS[1], ARGV[2])
end
return 0
`

// RedisLocker 基于 SET NX PX 的分布式锁，持有期间后台按 ttl/3 续期
type RedisLocker struct {
	redisClient   *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
}

func NewRedisLocker(redisClient *redis.Client, ttl, retryInterval time.Duration) (*RedisLocker, error) {
	if err := redisClient.LoadScriptFromContent(unlockScriptName, unlockScript); err != nil {
		return nil, err
	}
	if err := redisClient.LoadScriptFromContent(renewScriptName, renewScript); err != nil {
		return nil, err
	}
	return &RedisLocker{redisClient: redisClient, ttl: ttl, retryInterval: retryInterval}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.redisClient.SetNX(ctx, redisKey, token, l.ttl)
		if err != nil {
			return nil, errors.Wrapf(err, "acquire redis lock %s", key)
		}
		if ok {
			break
		}
		select {
		case <-time.After(l.retryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	stop := make(chan struct{})
	go l.keepAlive(redisKey, token, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if _, err := l.redisClient.RunScript(releaseCtx, unlockScriptName, []string{redisKey}, token); err != nil {
				// 释放失败时锁会在 ttl 后自动过期
				logger.Ctx(releaseCtx).Warn().Err(err).Str("lock", redisKey).Msg("failed to release redis lock")
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(redisKey, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			res, err := l.redisClient.RunScript(ctx, renewScriptName, []string{redisKey}, token, l.ttl.Milliseconds())
			cancel()
			if err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("lock", redisKey).Msg("failed to renew redis lock")
				continue
			}
			if n, ok := res.(int64); ok && n == 0 {
				logger.Ctx(ctx).Error().Str("lock", redisKey).Msg("redis lock lost before release")
				return
			}
		}
	}
}
