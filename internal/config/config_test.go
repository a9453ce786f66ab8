package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestConfigLoader_Load(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "localhost"
  port: 9090
database:
  driver: "sqlite"
  path: "/tmp/tunecrate-test.db"
storage:
  root: "/srv/tunecrate"
  max_base_name_length: 40
redis:
  enabled: true
  address: "cache:6379"
maintenance:
  sweep_schedule: "*/15 * * * *"
  grace_period: "2h"
`)

	loader := NewConfigLoader()
	loader.SetConfigFile(path)

	config, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, DriverSQLite, config.Database.Driver)
	assert.Equal(t, "/tmp/tunecrate-test.db", config.Database.Path)
	assert.Equal(t, 40, config.Storage.MaxBaseNameLength)
	assert.True(t, config.Storage.VerifyStructure, "default must survive partial storage section")
	assert.Equal(t, "/srv/tunecrate/audio", config.Storage.AudioRoot())
	assert.Equal(t, "/srv/tunecrate/image", config.Storage.ImageRoot())
	assert.Equal(t, "/srv/tunecrate/playlist_orders", config.Storage.OrderRoot())
	assert.Equal(t, "cache:6379", config.Redis.Address)
	assert.Equal(t, 2*time.Hour, config.Maintenance.GracePeriod)
}

func TestConfigLoader_EnvironmentOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "localhost"
  port: 8888
database:
  host: "yaml-db"
`)

	t.Setenv("TUNECRATE_SERVER_HOST", "env-host")
	t.Setenv("TUNECRATE_DATABASE_HOST", "override-db")

	loader := NewConfigLoader()
	loader.SetConfigFile(path)

	config, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "env-host", config.Server.Host)
	assert.Equal(t, 8888, config.Server.Port)
	assert.Equal(t, "override-db", config.Database.Host)
}

func validConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Driver: DriverPostgres,
			Host:   "localhost",
			DBName: "tunecrate",
		},
		Storage: StorageConfig{
			Root:              "/data",
			AudioDir:          "audio",
			ImageDir:          "image",
			OrderDir:          "playlist_orders",
			MaxAudioBytes:     1 << 20,
			MaxImageBytes:     1 << 20,
			MaxBaseNameLength: 64,
		},
		Maintenance: MaintenanceConfig{
			SweepSchedule: "0 * * * *",
			GracePeriod:   time.Hour,
			DeleteRate:    10,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, validateConfig(validConfig()))

	cases := []struct {
		name    string
		mutate  func(c *AppConfig)
		message string
	}{
		{"invalid port", func(c *AppConfig) { c.Server.Port = 70000 }, "server.port must be between 1 and 65535"},
		{"unknown driver", func(c *AppConfig) { c.Database.Driver = "mysql" }, "database.driver must be"},
		{"missing db host", func(c *AppConfig) { c.Database.Host = "" }, "database.host cannot be empty"},
		{"sqlite without path", func(c *AppConfig) { c.Database.Driver = DriverSQLite }, "database.path cannot be empty"},
		{"missing storage root", func(c *AppConfig) { c.Storage.Root = " " }, "storage.root cannot be empty"},
		{"shared roots", func(c *AppConfig) { c.Storage.ImageDir = "audio" }, "must not share a directory"},
		{"non positive size", func(c *AppConfig) { c.Storage.MaxImageBytes = 0 }, "max upload sizes must be positive"},
		{"short base name", func(c *AppConfig) { c.Storage.MaxBaseNameLength = 3 }, "max_base_name_length must be at least 8"},
		{"redis without address", func(c *AppConfig) { c.Redis.Enabled = true }, "redis.address cannot be empty"},
		{"bad cron", func(c *AppConfig) { c.Maintenance.SweepSchedule = "every day" }, "not a valid cron spec"},
		{"negative grace", func(c *AppConfig) { c.Maintenance.GracePeriod = -time.Second }, "grace_period cannot be negative"},
		{"zero rate", func(c *AppConfig) { c.Maintenance.DeleteRate = 0 }, "delete_rate must be positive"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
		})
	}
}

func TestDatabaseConfig_ApplyPoolDefaults(t *testing.T) {
	cfg := DatabaseConfig{MaxOpenConns: 5}
	cfg.ApplyPoolDefaults()

	assert.Equal(t, 5, cfg.MaxOpenConns)
	assert.Equal(t, DefaultMaxIdleConns, cfg.MaxIdleConns)
	assert.Equal(t, DefaultConnMaxLifetime, cfg.ConnMaxLifetime)
	assert.Equal(t, DefaultConnMaxIdleTime, cfg.ConnMaxIdleTime)
}
