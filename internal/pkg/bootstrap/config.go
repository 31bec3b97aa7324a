// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是订单服务的完整配置。先读 YAML，再用环境变量覆盖部署相关的项。
type Config struct {
	App      AppConfig      `yaml:"app"`
	Order    OrderConfig    `yaml:"order"`
	Events   EventsConfig   `yaml:"events"`
	Infra    InfraConfig    `yaml:"infra"`
	Services ServicesConfig `yaml:"services"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
}

// OrderConfig 协调器的超时与重试预算
type OrderConfig struct {
	CallTimeout        time.Duration `yaml:"callTimeout"`
	StatusQueryBackoff time.Duration `yaml:"statusQueryBackoff"`
	MaxStatusQueries   int           `yaml:"maxStatusQueries"`
	MaxChargeAttempts  int           `yaml:"maxChargeAttempts"`
	MaxConflictRetries int           `yaml:"maxConflictRetries"`
}

// EventsConfig 事件发布与死信
type EventsConfig struct {
	Topic              string        `yaml:"topic"`
	DeadLetterTopic    string        `yaml:"deadLetterTopic"`
	DeadLetterGroupID  string        `yaml:"deadLetterGroupId"`
	MonitorDeadLetters bool          `yaml:"monitorDeadLetters"`
	MaxAttempts        int           `yaml:"maxAttempts"`
	InitialBackoff     time.Duration `yaml:"initialBackoff"`
	MaxBackoff         time.Duration `yaml:"maxBackoff"`
	AttemptTimeout     time.Duration `yaml:"attemptTimeout"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	ZooKeeper ZooKeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
	Lock      LockConfig      `yaml:"lock"`
}

type JaegerConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// StoreConfig Driver 取值 mysql / sqlite / memory
type StoreConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	AutoMigrate  bool   `yaml:"autoMigrate"`
}

type RedisConfig struct {
	Addrs string `yaml:"addrs"`
}

type ZooKeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

type NacosConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

// LockConfig Backend 取值 local / redis / zookeeper
type LockConfig struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	RetryInterval time.Duration `yaml:"retryInterval"`
}

type ServicesConfig struct {
	Inventory DownstreamConfig `yaml:"inventory"`
	Payment   DownstreamConfig `yaml:"payment"`
}

// DownstreamConfig Name 用于注册中心发现，BaseURL 为静态地址/回退地址
type DownstreamConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"baseUrl"`
}

var (
	currentConfig *Config
	configMu      sync.RWMutex
)

// Init 加载 CONFIG_FILE (默认 configs/order-service.yaml) 并设置为当前配置
func Init() error {
	cfg, err := Load(getEnv("CONFIG_FILE", "configs/order-service.yaml"))
	if err != nil {
		return err
	}
	configMu.Lock()
	currentConfig = cfg
	configMu.Unlock()
	return nil
}

// GetCurrentConfig 返回 Init 加载的配置，未初始化时返回默认配置
func GetCurrentConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	if currentConfig == nil {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}
	return currentConfig
}

// Load 读取 YAML 文件。文件不存在时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.App.Port = getEnvInt("PORT", c.App.Port)
	c.App.LogLevel = getEnv("LOG_LEVEL", c.App.LogLevel)
	c.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", c.Infra.Jaeger.Endpoint)
	c.Infra.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Infra.Kafka.Brokers)
	c.Infra.Store.Driver = getEnv("STORE_DRIVER", c.Infra.Store.Driver)
	c.Infra.Store.DSN = getEnv("MYSQL_DSN", c.Infra.Store.DSN)
	c.Infra.Redis.Addrs = getEnv("REDIS_ADDRS", c.Infra.Redis.Addrs)
	c.Infra.ZooKeeper.Servers = getEnvList("ZK_SERVERS", c.Infra.ZooKeeper.Servers)
	c.Infra.Lock.Backend = getEnv("LOCK_BACKEND", c.Infra.Lock.Backend)
	c.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", c.Infra.Nacos.ServerAddrs)
	c.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", c.Infra.Nacos.Namespace)
	c.Infra.Nacos.Group = getEnv("NACOS_GROUP", c.Infra.Nacos.Group)
	if v, ok := os.LookupEnv("NACOS_ENABLED"); ok {
		c.Infra.Nacos.Enabled, _ = strconv.ParseBool(v)
	}
	c.Services.Inventory.BaseURL = getEnv("INVENTORY_BASE_URL", c.Services.Inventory.BaseURL)
	c.Services.Payment.BaseURL = getEnv("PAYMENT_BASE_URL", c.Services.Payment.BaseURL)
}

func (c *Config) applyDefaults() {
	setDefault(&c.App.Name, "order-service")
	setDefault(&c.App.Port, 8080)
	setDefault(&c.App.LogLevel, "info")

	setDefault(&c.Order.CallTimeout, 3*time.Second)
	setDefault(&c.Order.StatusQueryBackoff, 200*time.Millisecond)
	setDefault(&c.Order.MaxStatusQueries, 5)
	setDefault(&c.Order.MaxChargeAttempts, 2)
	setDefault(&c.Order.MaxConflictRetries, 3)

	setDefault(&c.Events.Topic, "order-events")
	setDefault(&c.Events.DeadLetterTopic, "order-events-dlt")
	setDefault(&c.Events.DeadLetterGroupID, "order-events-dlt-monitor")
	setDefault(&c.Events.MaxAttempts, 3)
	setDefault(&c.Events.InitialBackoff, 50*time.Millisecond)
	setDefault(&c.Events.MaxBackoff, time.Second)
	setDefault(&c.Events.AttemptTimeout, 2*time.Second)

	setDefault(&c.Infra.Jaeger.Endpoint, "http://localhost:14268/api/traces")
	if len(c.Infra.Kafka.Brokers) == 0 {
		c.Infra.Kafka.Brokers = []string{"localhost:9092"}
	}
	setDefault(&c.Infra.Store.Driver, "mysql")
	setDefault(&c.Infra.Store.DSN, "root:root@tcp(localhost:3306)/orders?charset=utf8mb4&parseTime=True&loc=UTC")
	setDefault(&c.Infra.Store.MaxOpenConns, 20)
	setDefault(&c.Infra.Redis.Addrs, "localhost:6379")
	if len(c.Infra.ZooKeeper.Servers) == 0 {
		c.Infra.ZooKeeper.Servers = []string{"localhost:2181"}
	}
	setDefault(&c.Infra.ZooKeeper.SessionTimeout, 10*time.Second)
	setDefault(&c.Infra.Nacos.ServerAddrs, "localhost:8848")
	setDefault(&c.Infra.Nacos.Group, "DEFAULT_GROUP")
	setDefault(&c.Infra.Lock.Backend, "local")
	setDefault(&c.Infra.Lock.TTL, 30*time.Second)
	setDefault(&c.Infra.Lock.RetryInterval, 50*time.Millisecond)

	setDefault(&c.Services.Inventory.Name, "inventory-service")
	setDefault(&c.Services.Payment.Name, "payment-service")
}

// Validate 拒绝不可能的配置
func (c *Config) Validate() error {
	switch c.Infra.Store.Driver {
	case "mysql", "sqlite", "memory":
	default:
		return errors.Errorf("unknown store driver %q", c.Infra.Store.Driver)
	}
	switch c.Infra.Lock.Backend {
	case "local", "redis", "zookeeper":
	default:
		return errors.Errorf("unknown lock backend %q", c.Infra.Lock.Backend)
	}
	if c.Order.CallTimeout <= 0 || c.Events.AttemptTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.Order.MaxChargeAttempts < 1 || c.Events.MaxAttempts < 1 {
		return errors.New("attempt budgets must be at least 1")
	}
	if c.Infra.Lock.Backend == "redis" && c.Infra.Lock.TTL <= c.Order.CallTimeout {
		return errors.New("lock ttl must exceed the call timeout")
	}
	return nil
}

// setDefault 为零值字段填充默认值
func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
