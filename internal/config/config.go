package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// AppConfig represents the main application configuration
type AppConfig struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// StorageConfig describes the file roots of the content and order stores
type StorageConfig struct {
	Root              string `mapstructure:"root"`
	AudioDir          string `mapstructure:"audio_dir"`
	ImageDir          string `mapstructure:"image_dir"`
	OrderDir          string `mapstructure:"order_dir"`
	MaxAudioBytes     int64  `mapstructure:"max_audio_bytes"`
	MaxImageBytes     int64  `mapstructure:"max_image_bytes"`
	MaxBaseNameLength int    `mapstructure:"max_base_name_length"`
	VerifyStructure   bool   `mapstructure:"verify_structure"`
	MaxImageWidth     int    `mapstructure:"max_image_width"`
	MaxImageHeight    int    `mapstructure:"max_image_height"`
	MaxImagePixels    int    `mapstructure:"max_image_pixels"`
}

// AudioRoot returns the absolute or root-relative audio directory
func (s StorageConfig) AudioRoot() string { return s.resolve(s.AudioDir) }

// ImageRoot returns the absolute or root-relative image directory
func (s StorageConfig) ImageRoot() string { return s.resolve(s.ImageDir) }

// OrderRoot returns the absolute or root-relative playlist order directory
func (s StorageConfig) OrderRoot() string { return s.resolve(s.OrderDir) }

func (s StorageConfig) resolve(dir string) string {
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(s.Root, dir)
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Address       string        `mapstructure:"address"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	PoolSize      int           `mapstructure:"pool_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	OrderCacheTTL time.Duration `mapstructure:"order_cache_ttl"`
}

// LoggingConfig controls the global zerolog logger
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// TracingConfig controls OpenTelemetry export
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	UseOTLP     bool   `mapstructure:"use_otlp"`
}

// MaintenanceConfig controls the orphan sweeper
type MaintenanceConfig struct {
	SweepSchedule string        `mapstructure:"sweep_schedule"` // standard 5-field cron spec
	GracePeriod   time.Duration `mapstructure:"grace_period"`
	DeleteRate    float64       `mapstructure:"delete_rate"` // deletions per second
	Queue         string        `mapstructure:"queue"`
}

// ConfigLoader loads configuration through its own viper instance
type ConfigLoader struct {
	viper *viper.Viper
}

// NewConfigLoader creates a loader with defaults, search paths and env binding applied
func NewConfigLoader() *ConfigLoader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("TUNECRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	return &ConfigLoader{viper: v}
}

// SetConfigFile points the loader at an explicit config file
func (l *ConfigLoader) SetConfigFile(path string) {
	l.viper.SetConfigFile(path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "tunecrate")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "tunecrate.db")
	v.SetDefault("database.max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", DefaultConnMaxIdleTime)

	v.SetDefault("storage.root", "./data")
	v.SetDefault("storage.audio_dir", "audio")
	v.SetDefault("storage.image_dir", "image")
	v.SetDefault("storage.order_dir", "playlist_orders")
	v.SetDefault("storage.max_audio_bytes", 100*1024*1024) // 100MB
	v.SetDefault("storage.max_image_bytes", 10*1024*1024)  // 10MB
	v.SetDefault("storage.max_base_name_length", 64)
	v.SetDefault("storage.verify_structure", true)
	v.SetDefault("storage.max_image_width", 4096)
	v.SetDefault("storage.max_image_height", 4096)
	v.SetDefault("storage.max_image_pixels", 16*1024*1024)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", 5*time.Second)
	v.SetDefault("redis.order_cache_ttl", 10*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "tunecrate")
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.use_otlp", false)

	v.SetDefault("maintenance.sweep_schedule", "0 */6 * * *")
	v.SetDefault("maintenance.grace_period", 24*time.Hour)
	v.SetDefault("maintenance.delete_rate", 50.0)
	v.SetDefault("maintenance.queue", "maintenance")
}

// Load reads the config file (if any), applies env overrides and validates the result
func (l *ConfigLoader) Load() (*AppConfig, error) {
	if err := l.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	var config AppConfig
	if err := l.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// LoadConfig loads application configuration from the default locations
func LoadConfig() (*AppConfig, error) {
	return NewConfigLoader().Load()
}

// validateConfig validates the configuration values
func validateConfig(config *AppConfig) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if err := validateDatabaseConfig(&config.Database); err != nil {
		return err
	}

	s := config.Storage
	if strings.TrimSpace(s.Root) == "" {
		return fmt.Errorf("storage.root cannot be empty")
	}
	roots := map[string]string{
		"storage.audio_dir": s.AudioRoot(),
		"storage.image_dir": s.ImageRoot(),
		"storage.order_dir": s.OrderRoot(),
	}
	seen := make(map[string]string, len(roots))
	for key, root := range roots {
		if other, dup := seen[root]; dup {
			return fmt.Errorf("%s and %s must not share a directory", other, key)
		}
		seen[root] = key
	}
	if s.MaxAudioBytes <= 0 || s.MaxImageBytes <= 0 {
		return fmt.Errorf("storage max upload sizes must be positive")
	}
	if s.MaxBaseNameLength < 8 {
		return fmt.Errorf("storage.max_base_name_length must be at least 8")
	}

	if config.Redis.Enabled && config.Redis.Address == "" {
		return fmt.Errorf("redis.address cannot be empty when redis is enabled")
	}

	if _, err := cron.ParseStandard(config.Maintenance.SweepSchedule); err != nil {
		return fmt.Errorf("maintenance.sweep_schedule is not a valid cron spec: %w", err)
	}
	if config.Maintenance.GracePeriod < 0 {
		return fmt.Errorf("maintenance.grace_period cannot be negative")
	}
	if config.Maintenance.DeleteRate <= 0 {
		return fmt.Errorf("maintenance.delete_rate must be positive")
	}

	return nil
}
