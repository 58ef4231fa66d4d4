package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/valter-silva-au/knc/pkg/models"
)

// ConfigFileName is the name of the tool's own configuration file.
const ConfigFileName = ".kncconfig"

// ConfigurationManager loads and validates the tool's configuration from
// .kncconfig, KNC_* environment variables, and defaults.
type ConfigurationManager interface {
	LoadConfig() (*models.AppConfig, error)
	ValidateConfig(cfg *models.AppConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading YAML configuration files.
type viperConfigManager struct {
	// basePath is the root directory where .kncconfig resides.
	basePath string
}

// NewConfigurationManager creates a new ConfigurationManager that reads
// configuration files relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultAppConfig returns an AppConfig populated with defaults.
func DefaultAppConfig() *models.AppConfig {
	return &models.AppConfig{
		Storage: models.StorageConfig{
			Backend: "file",
			Dir:     ".knc",
			Redis:   models.RedisConfig{Addr: "localhost:6379", Prefix: "knc:"},
			SQL:     models.SQLConfig{Driver: "sqlite", DSN: ".knc/knc.db"},
		},
		Platform: models.PlatformConfig{
			BaseURL:        "http://localhost:8080",
			TimeoutSeconds: int(DefaultProbeTimeout.Seconds()),
		},
		Host: models.HostConfig{
			AccessTokenEnv:  "KN_HOST_ACCESS_TOKEN",
			RefreshTokenEnv: "KN_HOST_REFRESH_TOKEN",
		},
		Log:          models.LogConfig{Level: "info", Format: "text"},
		ServerAddr:   ":8088",
		SeedDefaults: true,
		EventLogPath: ".knc_events.jsonl",
	}
}

// LoadConfig reads .kncconfig from the base path using Viper. A missing file
// yields defaults; KNC_* environment variables override both, for example
// KNC_STORAGE_BACKEND=redis.
func (cm *viperConfigManager) LoadConfig() (*models.AppConfig, error) {
	cfg := DefaultAppConfig()

	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)
	v.SetEnvPrefix("KNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.dir", cfg.Storage.Dir)
	v.SetDefault("storage.redis.addr", cfg.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", cfg.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", cfg.Storage.Redis.DB)
	v.SetDefault("storage.redis.prefix", cfg.Storage.Redis.Prefix)
	v.SetDefault("storage.sql.driver", cfg.Storage.SQL.Driver)
	v.SetDefault("storage.sql.dsn", cfg.Storage.SQL.DSN)
	v.SetDefault("platform.base_url", cfg.Platform.BaseURL)
	v.SetDefault("platform.timeout", cfg.Platform.TimeoutSeconds)
	v.SetDefault("host.access_token_env", cfg.Host.AccessTokenEnv)
	v.SetDefault("host.refresh_token_env", cfg.Host.RefreshTokenEnv)
	v.SetDefault("host.token_file", cfg.Host.TokenFile)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("server.addr", cfg.ServerAddr)
	v.SetDefault("notifications.slack_webhook", cfg.SlackWebhook)
	v.SetDefault("seed_defaults", cfg.SeedDefaults)
	v.SetDefault("events.path", cfg.EventLogPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	cfg.Storage.Backend = v.GetString("storage.backend")
	cfg.Storage.Dir = v.GetString("storage.dir")
	cfg.Storage.Redis.Addr = v.GetString("storage.redis.addr")
	cfg.Storage.Redis.Password = v.GetString("storage.redis.password")
	cfg.Storage.Redis.DB = v.GetInt("storage.redis.db")
	cfg.Storage.Redis.Prefix = v.GetString("storage.redis.prefix")
	cfg.Storage.SQL.Driver = v.GetString("storage.sql.driver")
	cfg.Storage.SQL.DSN = v.GetString("storage.sql.dsn")
	cfg.Platform.BaseURL = v.GetString("platform.base_url")
	cfg.Platform.TimeoutSeconds = v.GetInt("platform.timeout")
	cfg.Host.AccessTokenEnv = v.GetString("host.access_token_env")
	cfg.Host.RefreshTokenEnv = v.GetString("host.refresh_token_env")
	cfg.Host.TokenFile = v.GetString("host.token_file")
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	cfg.ServerAddr = v.GetString("server.addr")
	cfg.SlackWebhook = v.GetString("notifications.slack_webhook")
	cfg.SeedDefaults = v.GetBool("seed_defaults")
	cfg.EventLogPath = v.GetString("events.path")

	return cfg, nil
}

var (
	validBackends   = map[string]bool{"file": true, "redis": true, "sql": true, "memory": true}
	validSQLDrivers = map[string]bool{"sqlite": true, "postgres": true}
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

// ValidateConfig checks cfg for invalid values and reports every problem
// found in one error.
func (cm *viperConfigManager) ValidateConfig(cfg *models.AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	if !validBackends[cfg.Storage.Backend] {
		errs = append(errs, fmt.Sprintf(
			"storage.backend %q is invalid, must be one of: file, redis, sql, memory",
			cfg.Storage.Backend,
		))
	}
	switch cfg.Storage.Backend {
	case "file":
		if cfg.Storage.Dir == "" {
			errs = append(errs, "storage.dir must not be empty for the file backend")
		}
	case "redis":
		if cfg.Storage.Redis.Addr == "" {
			errs = append(errs, "storage.redis.addr must not be empty for the redis backend")
		}
		if cfg.Storage.Redis.DB < 0 {
			errs = append(errs, fmt.Sprintf("storage.redis.db must be non-negative, got %d", cfg.Storage.Redis.DB))
		}
	case "sql":
		if !validSQLDrivers[cfg.Storage.SQL.Driver] {
			errs = append(errs, fmt.Sprintf(
				"storage.sql.driver %q is invalid, must be one of: sqlite, postgres",
				cfg.Storage.SQL.Driver,
			))
		}
		if cfg.Storage.SQL.DSN == "" {
			errs = append(errs, "storage.sql.dsn must not be empty for the sql backend")
		}
	}

	if cfg.Platform.BaseURL == "" {
		errs = append(errs, "platform.base_url must not be empty")
	} else if !strings.HasPrefix(cfg.Platform.BaseURL, "http://") && !strings.HasPrefix(cfg.Platform.BaseURL, "https://") {
		errs = append(errs, fmt.Sprintf("platform.base_url %q must start with http:// or https://", cfg.Platform.BaseURL))
	}
	if cfg.Platform.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("platform.timeout must be positive, got %d", cfg.Platform.TimeoutSeconds))
	}

	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		errs = append(errs, fmt.Sprintf(
			"log.level %q is invalid, must be one of: debug, info, warn, error",
			cfg.Log.Level,
		))
	}
	if !validLogFormats[cfg.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format %q is invalid, must be one of: text, json", cfg.Log.Format))
	}

	if cfg.SlackWebhook != "" && !strings.HasPrefix(cfg.SlackWebhook, "https://") {
		errs = append(errs, "notifications.slack_webhook must be an https URL")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
