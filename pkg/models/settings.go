package models

// GlobalSettings holds operator-level settings persisted next to the
// configuration collection under their own storage key.
type GlobalSettings struct {
	KnowledgeNetworkID  string `yaml:"knowledge_network_id" json:"knowledgeNetworkId" mapstructure:"knowledge_network_id"`
	AuthToken           string `yaml:"auth_token,omitempty" json:"authToken,omitempty" mapstructure:"auth_token"`
	UserID              string `yaml:"user_id,omitempty" json:"userId,omitempty" mapstructure:"user_id"`
	ProbeTimeoutSeconds int    `yaml:"probe_timeout_seconds,omitempty" json:"probeTimeoutSeconds,omitempty" mapstructure:"probe_timeout_seconds"`
}

// Redacted returns a copy safe for display, with the auth token masked.
func (s GlobalSettings) Redacted() GlobalSettings {
	if s.AuthToken == "" {
		return s
	}
	if len(s.AuthToken) <= 8 {
		s.AuthToken = "********"
		return s
	}
	s.AuthToken = s.AuthToken[:4] + "..." + s.AuthToken[len(s.AuthToken)-4:]
	return s
}

// StorageConfig selects and configures the durable key-value backend.
type StorageConfig struct {
	Backend string      `yaml:"backend" mapstructure:"backend"` // file, redis, sql, memory
	Dir     string      `yaml:"dir" mapstructure:"dir"`
	Redis   RedisConfig `yaml:"redis" mapstructure:"redis"`
	SQL     SQLConfig   `yaml:"sql" mapstructure:"sql"`
}

// RedisConfig configures the redis storage backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// SQLConfig configures the SQL storage backend.
type SQLConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn" mapstructure:"dsn"`
}

// PlatformConfig describes how to reach the knowledge network platform.
type PlatformConfig struct {
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSeconds int    `yaml:"timeout" mapstructure:"timeout"`
}

// HostConfig names where an embedding host hands over its tokens.
type HostConfig struct {
	AccessTokenEnv  string `yaml:"access_token_env" mapstructure:"access_token_env"`
	RefreshTokenEnv string `yaml:"refresh_token_env" mapstructure:"refresh_token_env"`
	TokenFile       string `yaml:"token_file,omitempty" mapstructure:"token_file"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// AppConfig holds the tool's own settings read from .kncconfig via Viper.
type AppConfig struct {
	Storage      StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Platform     PlatformConfig `yaml:"platform" mapstructure:"platform"`
	Host         HostConfig     `yaml:"host" mapstructure:"host"`
	Log          LogConfig      `yaml:"log" mapstructure:"log"`
	ServerAddr   string         `yaml:"server_addr" mapstructure:"server_addr"`
	SlackWebhook string         `yaml:"slack_webhook,omitempty" mapstructure:"slack_webhook"`
	SeedDefaults bool           `yaml:"seed_defaults" mapstructure:"seed_defaults"`
	EventLogPath string         `yaml:"event_log" mapstructure:"event_log"`
}
