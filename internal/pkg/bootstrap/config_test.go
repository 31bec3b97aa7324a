package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadYAMLWithDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9090
order:
  callTimeout: 1500ms
  maxStatusQueries: 7
events:
  maxAttempts: 4
infra:
  kafka:
    brokers: ["k1:9092", "k2:9092"]
  store:
    driver: sqlite
    dsn: "file::memory:"
  lock:
    backend: zookeeper
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "order-service", cfg.App.Name)
	assert.Equal(t, 1500*time.Millisecond, cfg.Order.CallTimeout)
	assert.Equal(t, 7, cfg.Order.MaxStatusQueries)
	assert.Equal(t, 2, cfg.Order.MaxChargeAttempts)
	assert.Equal(t, 4, cfg.Events.MaxAttempts)
	assert.Equal(t, "order-events", cfg.Events.Topic)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "sqlite", cfg.Infra.Store.Driver)
	assert.Equal(t, "zookeeper", cfg.Infra.Lock.Backend)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "app:\n  port: 9090\n")
	t.Setenv("PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "a:1, b:2")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.App.Port)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "redis", cfg.Infra.Lock.Backend)
	assert.Equal(t, "memory", cfg.Infra.Store.Driver)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "local", cfg.Infra.Lock.Backend)
	assert.Equal(t, 3, cfg.Events.MaxAttempts)
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	_, err := Load(writeConfig(t, "infra:\n  lock:\n    backend: etcd\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "infra:\n  store:\n    driver: postgres\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "order:\n  callTimeout: 5s\ninfra:\n  lock:\n    backend: redis\n    ttl: 2s\n"))
	assert.Error(t, err)
}

func TestGetCurrentConfigDefaults(t *testing.T) {
	cfg := GetCurrentConfig()
	assert.Equal(t, "order-service", cfg.App.Name)
	assert.Equal(t, 3*time.Second, cfg.Order.CallTimeout)
}
