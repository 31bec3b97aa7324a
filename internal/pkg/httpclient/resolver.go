package httpclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Resolver 把逻辑服务名解析成 base URL (scheme://host:port)
type Resolver interface {
	Resolve(ctx context.Context, serviceName string) (string, error)
}

// StaticResolver 使用配置中的固定地址
type StaticResolver map[string]string

func (r StaticResolver) Resolve(_ context.Context, serviceName string) (string, error) {
	base, ok := r[serviceName]
	if !ok || base == "" {
		return "", errors.Errorf("no base url configured for service %s", serviceName)
	}
	return strings.TrimRight(base, "/"), nil
}

// InstanceDiscoverer 由 nacos.Client 实现
type InstanceDiscoverer interface {
	DiscoverServiceInstance(serviceName string) (string, int, error)
}

// DiscoveryResolver 每次调用都从注册中心选一个健康实例，失败时回退到 fallback
type DiscoveryResolver struct {
	Discoverer InstanceDiscoverer
	Fallback   Resolver
}

func (r *DiscoveryResolver) Resolve(ctx context.Context, serviceName string) (string, error) {
	ip, port, err := r.Discoverer.DiscoverServiceInstance(serviceName)
	if err == nil {
		return fmt.Sprintf("http://%s:%d", ip, port), nil
	}
	if r.Fallback != nil {
		if base, ferr := r.Fallback.Resolve(ctx, serviceName); ferr == nil {
			return base, nil
		}
	}
	return "", errors.Wrapf(ErrTransport, "resolve %s: %v", serviceName, err)
}
