package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for signalhub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Logging   LoggingConfig       `yaml:"logging"`
	API       APIConfig           `yaml:"api"`
	WebSocket WebSocketConfig     `yaml:"websocket"`
	Store     StoreConfig         `yaml:"store"`
	Lifecycle LifecycleConfig     `yaml:"lifecycle"`
	Adapters  []AdapterConfig     `yaml:"adapters"`
	MQTT      MQTTPublisherConfig `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig      `yaml:"influxdb"`
	Database  DatabaseConfig      `yaml:"database"`
	History   HistoryConfig       `yaml:"history"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// It is shared by the state republisher and MQTT adapters.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// MQTTPublisherConfig configures the MQTT state republisher sink.
type MQTTPublisherConfig struct {
	Enabled    bool `yaml:"enabled"`
	MQTTConfig `yaml:",inline"`

	// TopicPrefix is the root of republished state topics.
	// Default: "signalhub"
	TopicPrefix string `yaml:"topic_prefix"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// StoreConfig contains Signal Store settings.
type StoreConfig struct {
	// SubscriberBuffer is the bounded notification buffer per subscriber.
	// On overflow the oldest pending notification is dropped.
	// Default: 256
	SubscriberBuffer int `yaml:"subscriber_buffer"`
}

// LifecycleConfig contains the default retry policy and timeouts applied
// to every adapter lifecycle manager.
type LifecycleConfig struct {
	// InitialRetryDelay is the first backoff interval. Default: 5s
	InitialRetryDelay time.Duration `yaml:"initial_retry_delay"`

	// MaxRetryDelay caps the backoff interval. Default: 300s
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`

	// RetryBackoffFactor multiplies the delay after each failure. Default: 2.0
	RetryBackoffFactor float64 `yaml:"retry_backoff_factor"`

	// OperationTimeout bounds each adapter I/O call (snapshot, stream open,
	// close). Default: 30s
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	// ProbeInterval is how often IsConnected is polled while streaming.
	// Default: 30s
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// ShutdownTimeout bounds supervisor shutdown. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RetryConfig holds optional per-adapter retry overrides.
// Zero values inherit from LifecycleConfig.
type RetryConfig struct {
	InitialRetryDelay  time.Duration `yaml:"initial_retry_delay"`
	MaxRetryDelay      time.Duration `yaml:"max_retry_delay"`
	RetryBackoffFactor float64       `yaml:"retry_backoff_factor"`
}

// AdapterConfig describes one configured upstream platform.
type AdapterConfig struct {
	// Name is unique across all adapters and becomes each signal's source.
	Name string `yaml:"name"`

	// Type selects the adapter implementation: openhab, homeassistant, mqtt.
	Type string `yaml:"type"`

	// Prefix namespaces signal ids, e.g. "oh" gives "oh:Kitchen_Light".
	Prefix string `yaml:"prefix"`

	// Enabled defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	Retry RetryConfig `yaml:"retry"`

	OpenHAB       OpenHABConfig       `yaml:"openhab"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	MQTT          MQTTAdapterConfig   `yaml:"mqtt"`
}

// IsEnabled reports whether the adapter should be started.
func (a AdapterConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// EffectiveRetry merges the adapter's overrides onto the lifecycle defaults.
func (a AdapterConfig) EffectiveRetry(defaults LifecycleConfig) RetryConfig {
	out := RetryConfig{
		InitialRetryDelay:  defaults.InitialRetryDelay,
		MaxRetryDelay:      defaults.MaxRetryDelay,
		RetryBackoffFactor: defaults.RetryBackoffFactor,
	}
	if a.Retry.InitialRetryDelay != 0 {
		out.InitialRetryDelay = a.Retry.InitialRetryDelay
	}
	if a.Retry.MaxRetryDelay != 0 {
		out.MaxRetryDelay = a.Retry.MaxRetryDelay
	}
	if a.Retry.RetryBackoffFactor != 0 {
		out.RetryBackoffFactor = a.Retry.RetryBackoffFactor
	}
	return out
}

// OpenHABConfig contains openHAB REST connection settings.
type OpenHABConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// HomeAssistantConfig contains Home Assistant connection settings.
type HomeAssistantConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// MQTTAdapterConfig contains settings for an MQTT-sourced adapter.
type MQTTAdapterConfig struct {
	MQTTConfig `yaml:",inline"`

	// Topic is the subscription filter, e.g. "sensors/#".
	Topic string `yaml:"topic"`

	// SettleTime is how long retained messages are collected for a snapshot.
	// Default: 2s
	SettleTime time.Duration `yaml:"settle_time"`

	// BufferSize bounds queued live messages; overflow ends the stream.
	// Default: 1024
	BufferSize int `yaml:"buffer_size"`
}

// HistoryConfig contains signal history settings.
type HistoryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Retention is how long history rows are kept. Default: 168h
	Retention time.Duration `yaml:"retention"`

	// PruneInterval is how often old rows are deleted. Default: 1h
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SIGNALHUB_SECTION_KEY
// For example: SIGNALHUB_DATABASE_PATH, SIGNALHUB_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Store: StoreConfig{
			SubscriberBuffer: 256,
		},
		Lifecycle: LifecycleConfig{
			InitialRetryDelay:  5 * time.Second,
			MaxRetryDelay:      300 * time.Second,
			RetryBackoffFactor: 2.0,
			OperationTimeout:   30 * time.Second,
			ProbeInterval:      30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
		},
		MQTT: MQTTPublisherConfig{
			MQTTConfig: MQTTConfig{
				Broker: MQTTBrokerConfig{
					Host:     "localhost",
					Port:     1883,
					ClientID: "signalhub",
				},
				QoS: 1,
				Reconnect: MQTTReconnectConfig{
					InitialDelay: 1,
					MaxDelay:     60,
				},
			},
			TopicPrefix: "signalhub",
		},
		Database: DatabaseConfig{
			Path:        "./data/signalhub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		History: HistoryConfig{
			Retention:     7 * 24 * time.Hour,
			PruneInterval: time.Hour,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SIGNALHUB_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Logging
	if v := os.Getenv("SIGNALHUB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// API
	if v := os.Getenv("SIGNALHUB_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SIGNALHUB_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Database
	if v := os.Getenv("SIGNALHUB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SIGNALHUB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SIGNALHUB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SIGNALHUB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("SIGNALHUB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
// Every problem is collected so operators can fix them in one pass.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Lifecycle validation
	errs = append(errs, validateRetry("lifecycle", RetryConfig{
		InitialRetryDelay:  c.Lifecycle.InitialRetryDelay,
		MaxRetryDelay:      c.Lifecycle.MaxRetryDelay,
		RetryBackoffFactor: c.Lifecycle.RetryBackoffFactor,
	})...)
	if c.Lifecycle.OperationTimeout <= 0 {
		errs = append(errs, "lifecycle.operation_timeout must be positive")
	}
	if c.Lifecycle.ProbeInterval < 0 {
		errs = append(errs, "lifecycle.probe_interval must not be negative")
	}

	// Adapter validation
	errs = append(errs, c.validateAdapters()...)

	// MQTT validation
	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// History validation
	if c.History.Enabled {
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required when history is enabled")
		}
		if c.History.Retention <= 0 {
			errs = append(errs, "history.retention must be positive")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateAdapters checks adapter identity and retry overrides.
// Unknown types are left to the adapter registry.
func (c *Config) validateAdapters() []string {
	var errs []string
	names := make(map[string]bool, len(c.Adapters))
	prefixes := make(map[string]bool, len(c.Adapters))

	for i, a := range c.Adapters {
		field := fmt.Sprintf("adapters[%d]", i)
		if a.Name != "" {
			field = fmt.Sprintf("adapters[%s]", a.Name)
		}

		switch {
		case a.Name == "":
			errs = append(errs, field+".name is required")
		case names[a.Name]:
			errs = append(errs, field+".name is duplicated")
		default:
			names[a.Name] = true
		}

		if a.Type == "" {
			errs = append(errs, field+".type is required")
		}

		switch {
		case a.Prefix == "":
			errs = append(errs, field+".prefix is required")
		case strings.Contains(a.Prefix, ":"):
			errs = append(errs, field+".prefix must not contain ':'")
		case prefixes[a.Prefix]:
			errs = append(errs, field+".prefix is duplicated")
		default:
			prefixes[a.Prefix] = true
		}

		errs = append(errs, validateRetry(field+".retry", a.EffectiveRetry(c.Lifecycle))...)
	}
	return errs
}

func validateRetry(field string, r RetryConfig) []string {
	var errs []string
	if r.InitialRetryDelay <= 0 {
		errs = append(errs, field+".initial_retry_delay must be positive")
	}
	if r.MaxRetryDelay < r.InitialRetryDelay {
		errs = append(errs, field+".max_retry_delay must be >= initial_retry_delay")
	}
	if r.RetryBackoffFactor < 1 {
		errs = append(errs, field+".retry_backoff_factor must be >= 1")
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// EnabledAdapters returns the adapters that should be started, in config order.
func (c *Config) EnabledAdapters() []AdapterConfig {
	out := make([]AdapterConfig, 0, len(c.Adapters))
	for _, a := range c.Adapters {
		if a.IsEnabled() {
			out = append(out, a)
		}
	}
	return out
}
