package adapter

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"orderhub/internal/pkg/logger"
	"orderhub/internal/zookeeper"
)

// ZookeeperLocker 基于临时顺序节点的分布式锁。会话断开时锁自动释放。
type ZookeeperLocker struct {
	conn *zookeeper.Conn
}

func NewZookeeperLocker(conn *zookeeper.Conn) *ZookeeperLocker {
	return &ZookeeperLocker{conn: conn}
}

func (l *ZookeeperLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := zookeeper.NewDistributedLock(l.conn, key)
	if err != nil {
		return nil, err
	}
	if err := lock.Lock(ctx); err != nil {
		return nil, errors.Wrapf(err, "acquire zookeeper lock %s", key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := lock.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("lock", key).Msg("failed to release zookeeper lock")
			}
		})
	}, nil
}
