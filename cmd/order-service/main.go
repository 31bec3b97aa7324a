// cmd/order-service/main.go
package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"orderhub/internal/pkg/bootstrap"
	"orderhub/internal/pkg/httpclient"
	"orderhub/internal/pkg/logger"
	"orderhub/internal/pkg/metrics"
	"orderhub/internal/pkg/mq"
	"orderhub/internal/pkg/nacos"
	"orderhub/internal/pkg/redis"
	"orderhub/internal/service/order/application"
	"orderhub/internal/service/order/domain"
	"orderhub/internal/service/order/domain/port"
	"orderhub/internal/service/order/infrastructure"
	"orderhub/internal/service/order/infrastructure/adapter"
	"orderhub/internal/service/order/interfaces"
	"orderhub/internal/zookeeper"
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	if err := bootstrap.Init(); err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg := bootstrap.GetCurrentConfig()
	logger.Init(cfg.App.Name, cfg.App.LogLevel)
	ctx := context.Background()

	// 1. 存储与锁
	repo, closeStore, err := buildRepository(cfg.Infra.Store)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Str("driver", cfg.Infra.Store.Driver).Msg("failed to initialize order store")
	}
	locker, closeLocker, err := buildLocker(cfg)
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Str("backend", cfg.Infra.Lock.Backend).Msg("failed to initialize order locker")
	}

	// 2. 事件发布: 主题 + 死信主题
	brokers := cfg.Infra.Kafka.Brokers
	eventWriter := mq.NewKafkaWriter(brokers, cfg.Events.Topic)
	dltWriter := mq.NewKafkaWriter(brokers, cfg.Events.DeadLetterTopic)
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	publisher := adapter.NewEventPublisher(
		adapter.NewKafkaEventBus(eventWriter),
		adapter.NewKafkaDeadLetterSink(dltWriter, cfg.Events.Topic),
		orderMetrics,
		adapter.PublisherConfig{
			MaxAttempts:    cfg.Events.MaxAttempts,
			InitialBackoff: cfg.Events.InitialBackoff,
			MaxBackoff:     cfg.Events.MaxBackoff,
			AttemptTimeout: cfg.Events.AttemptTimeout,
		},
	)

	tracer := otel.Tracer(cfg.App.Name)
	httpClient := httpclient.NewClient(tracer)

	err = bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.App.Name,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) []bootstrap.Runner {
			resolver := buildResolver(cfg, appCtx.Nacos)
			svc := application.NewOrderApplicationService(
				repo,
				adapter.NewInventoryHTTPAdapter(httpClient, resolver, cfg.Services.Inventory.Name),
				adapter.NewPaymentHTTPAdapter(httpClient, resolver, cfg.Services.Payment.Name),
				publisher,
				locker,
				tracer,
				orderMetrics,
				application.Config{
					CallTimeout:        cfg.Order.CallTimeout,
					StatusQueryBackoff: cfg.Order.StatusQueryBackoff,
					MaxStatusQueries:   cfg.Order.MaxStatusQueries,
					MaxChargeAttempts:  cfg.Order.MaxChargeAttempts,
					MaxConflictRetries: cfg.Order.MaxConflictRetries,
				},
			)
			interfaces.NewOrderHandler(svc, promhttp.Handler()).RegisterRoutes(appCtx.Mux)

			var runners []bootstrap.Runner
			if cfg.Events.MonitorDeadLetters {
				reader := mq.NewKafkaReader(brokers, cfg.Events.DeadLetterTopic, cfg.Events.DeadLetterGroupID)
				runners = append(runners, interfaces.NewDltConsumerAdapter(reader, cfg.Events.DeadLetterTopic))
			}
			return runners
		},
		OnShutdown: func(ctx context.Context) {
			if err := eventWriter.Close(); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Error closing event writer")
			}
			if err := dltWriter.Close(); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Error closing dead letter writer")
			}
			closeLocker()
			closeStore()
		},
	})
	if err != nil {
		logger.Ctx(ctx).Fatal().Err(err).Msg("order service exited with error")
	}
}

func buildRepository(cfg bootstrap.StoreConfig) (domain.OrderRepository, func(), error) {
	if cfg.Driver == "memory" {
		return infrastructure.NewMemoryOrderRepository(), func() {}, nil
	}
	db, err := infrastructure.OpenDatabase(cfg.Driver, cfg.DSN, cfg.MaxOpenConns, cfg.AutoMigrate)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return infrastructure.NewGormOrderRepository(db), closeDB, nil
}

// buildLocker local 只在单实例内互斥; 多实例部署使用 redis 或 zookeeper
func buildLocker(cfg *bootstrap.Config) (port.OrderLocker, func(), error) {
	switch cfg.Infra.Lock.Backend {
	case "redis":
		client, err := redis.NewClient(cfg.Infra.Redis.Addrs)
		if err != nil {
			return nil, nil, err
		}
		locker, err := adapter.NewRedisLocker(client, cfg.Infra.Lock.TTL, cfg.Infra.Lock.RetryInterval)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return locker, func() { _ = client.Close() }, nil
	case "zookeeper":
		conn, err := zookeeper.Connect(cfg.Infra.ZooKeeper.Servers, cfg.Infra.ZooKeeper.SessionTimeout)
		if err != nil {
			return nil, nil, err
		}
		return adapter.NewZookeeperLocker(conn), conn.Close, nil
	default:
		return adapter.NewLocalLocker(), func() {}, nil
	}
}

// buildResolver 启用 Nacos 时优先服务发现, 配置的 baseUrl 作为回退
func buildResolver(cfg *bootstrap.Config, naming *nacos.Client) httpclient.Resolver {
	static := httpclient.StaticResolver{
		cfg.Services.Inventory.Name: cfg.Services.Inventory.BaseURL,
		cfg.Services.Payment.Name:   cfg.Services.Payment.BaseURL,
	}
	if naming == nil {
		return static
	}
	return &httpclient.DiscoveryResolver{Discoverer: naming, Fallback: static}
}
