package config

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds all configuration for the indexing service.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" json:"server"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch" json:"elasticsearch"`
	Auth          AuthConfig          `mapstructure:"auth" json:"auth"`
	Logging       LoggingConfig       `mapstructure:"logging" json:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host" json:"host"`
	Port         int           `mapstructure:"port" json:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
}

// ElasticsearchConfig holds Elasticsearch-specific configuration.
// IndexRead and IndexWrite are the index base names: all query operations
// target {index_read}_{type}, all write operations {index_write}_{type},
// so aliases can point the two bases at different physical indices.
type ElasticsearchConfig struct {
	Host       string `mapstructure:"host" json:"host"`
	Username   string `mapstructure:"username" json:"username"`
	Password   string `mapstructure:"password" json:"password"`
	IndexRead  string `mapstructure:"index_read" json:"index_read"`
	IndexWrite string `mapstructure:"index_write" json:"index_write"`
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Static API key auth.
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	APIKey  string `mapstructure:"api_key" json:"api_key"`

	// JWT auth (takes precedence over the API key when enabled).
	UseJWT         bool   `mapstructure:"use_jwt" json:"use_jwt"`
	Issuer         string `mapstructure:"issuer" json:"issuer"`
	Audience       string `mapstructure:"audience" json:"audience"`
	PublicKeyPath  string `mapstructure:"public_key_path" json:"public_key_path"`
	PrivateKeyPath string `mapstructure:"private_key_path" json:"private_key_path"`
	TokenTTL       int    `mapstructure:"token_ttl" json:"token_ttl"` // seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"` // json or text
}

// Load loads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)

		if strings.HasSuffix(configPath, ".json") {
			v.SetConfigType("json")
		} else if strings.HasSuffix(configPath, ".yaml") || strings.HasSuffix(configPath, ".yml") {
			v.SetConfigType("yaml")
		}

		if err := v.ReadInConfig(); err != nil {
			log.WithError(err).Warn("Failed to read config file, using defaults")
		} else {
			log.WithField("file", configPath).Info("Loaded configuration file")
		}
	}

	// Environment variables override, e.g. BRIDGE_ELASTICSEARCH_INDEX_WRITE.
	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	configureLogging(&cfg.Logging)

	log.WithFields(log.Fields{
		"host":          cfg.Server.Host,
		"port":          cfg.Server.Port,
		"elasticsearch": cfg.Elasticsearch.Host,
	}).Info("Configuration loaded")

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Elasticsearch defaults
	v.SetDefault("elasticsearch.host", "http://elasticsearch:9200")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_read", "")
	v.SetDefault("elasticsearch.index_write", "")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("auth.use_jwt", false)
	v.SetDefault("auth.issuer", "indexbridge")
	v.SetDefault("auth.audience", "internal")
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.token_ttl", 300)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Elasticsearch.Host == "" {
		return fmt.Errorf("elasticsearch host is required")
	}

	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("API key is required when auth is enabled")
	}

	if c.Auth.UseJWT {
		if c.Auth.Issuer == "" {
			return fmt.Errorf("JWT issuer is required when JWT auth is enabled")
		}
		if c.Auth.Audience == "" {
			return fmt.Errorf("JWT audience is required when JWT auth is enabled")
		}
		if c.Auth.PublicKeyPath == "" {
			return fmt.Errorf("JWT public key path is required when JWT auth is enabled")
		}
	}

	return nil
}

// configureLogging configures the logging system.
func configureLogging(cfg *LoggingConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warn("Invalid log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
}
