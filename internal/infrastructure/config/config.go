package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the gateway.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Scanner   ScannerConfig   `yaml:"scanner"`
	GSM       GSMConfig       `yaml:"gsm"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Links     []LinkConfig    `yaml:"links"`
	Slaves    []SlaveConfig   `yaml:"slaves"`
	Shutdown  ShutdownConfig  `yaml:"shutdown"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DatabaseConfig contains SQLite database settings.
// The database is only opened when discovery.store is "sqlite".
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
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
}

// WebSocketConfig contains subscriber channel settings.
type WebSocketConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	// PingInterval is the idle time in seconds before a keep-alive ping is
	// broadcast. Zero or negative disables keep-alive pings.
	PingInterval int `yaml:"ping_interval"`
	WriteTimeout int `yaml:"write_timeout"`
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ScannerConfig describes where radio scan events are read from.
type ScannerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Topic   string `yaml:"topic"`
}

// GSMConfig contains the GSM upload endpoint and its report cache.
type GSMConfig struct {
	Enabled    bool           `yaml:"enabled"`
	UploadPath string         `yaml:"upload_path"`
	Cache      GSMCacheConfig `yaml:"cache"`
	Redis      RedisConfig    `yaml:"redis"`
}

// GSMCacheConfig selects where recently received GSM reports are kept.
type GSMCacheConfig struct {
	// Store is "file", "redis" or empty to disable the cache.
	Store string `yaml:"store"`
	Path  string `yaml:"path"`
	// RestoreMinutes is the retention window applied on restore.
	RestoreMinutes int `yaml:"restore_minutes"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// DiscoveryConfig controls automatic admission of unknown devices.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Remember persists admitted devices to the device record store.
	Remember bool `yaml:"remember"`
	// Store is "file" (rewrite the devices list of this config file) or "sqlite".
	Store         string        `yaml:"store"`
	SaveDelay     time.Duration `yaml:"save_delay"`
	DeviceTimeout time.Duration `yaml:"device_timeout"`
}

// DeviceConfig is a static device record.
type DeviceConfig struct {
	ID      string         `yaml:"id,omitempty"`
	Enabled *bool          `yaml:"enabled,omitempty"`
	Address string         `yaml:"address"`
	Unit    int            `yaml:"unit"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// LinkConfig describes an outbound bus link.
type LinkConfig struct {
	ID                string        `yaml:"id"`
	Enabled           *bool         `yaml:"enabled,omitempty"`
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// SlaveConfig describes a bus-slave listener.
type SlaveConfig struct {
	ID                 string        `yaml:"id"`
	Enabled            *bool         `yaml:"enabled,omitempty"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	MaxBufferOverflows OverflowLimit `yaml:"max_buffer_overflows"`
	BanDuration        time.Duration `yaml:"ban_duration"`
}

// ShutdownConfig bounds how long cleanup may run after a signal.
type ShutdownConfig struct {
	Grace time.Duration `yaml:"grace"`
}

// IsEnabled reports whether the record is enabled. A missing flag means enabled.
func (d DeviceConfig) IsEnabled() bool { return enabledOrDefault(d.Enabled) }

// IsEnabled reports whether the link is enabled. A missing flag means enabled.
func (l LinkConfig) IsEnabled() bool { return enabledOrDefault(l.Enabled) }

// IsEnabled reports whether the listener is enabled. A missing flag means enabled.
func (s SlaveConfig) IsEnabled() bool { return enabledOrDefault(s.Enabled) }

func enabledOrDefault(v *bool) bool {
	return v == nil || *v
}

// OverflowLimit is the number of buffer overflows a peer may cause before it
// is banned. Zero means unbounded.
//
// It accepts integers or numeric strings; anything else, and any value
// that is not positive, decodes to unbounded.
type OverflowLimit int

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *OverflowLimit) UnmarshalYAML(value *yaml.Node) error {
	*o = 0
	if value.Kind != yaml.ScalarNode {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value.Value))
	if err != nil || n <= 0 {
		return nil
	}
	*o = OverflowLimit(n)
	return nil
}

// Unbounded reports whether banning is disabled.
func (o OverflowLimit) Unbounded() bool {
	return o <= 0
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FIELDGATE_SECTION_KEY
// For example: FIELDGATE_DATABASE_PATH, FIELDGATE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

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
		Database: DatabaseConfig{
			Path:        "./data/fieldgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fieldgate",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
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
			Enabled:        true,
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			WriteTimeout:   10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Scanner: ScannerConfig{
			Topic: "fieldgate/scan/+",
		},
		GSM: GSMConfig{
			UploadPath: "/gsm",
			Cache: GSMCacheConfig{
				Path:           "./data/gsm-reports.json",
				RestoreMinutes: 720,
			},
			Redis: RedisConfig{
				Addr: "localhost:6379",
				Key:  "fieldgate:gsm-reports",
			},
		},
		Discovery: DiscoveryConfig{
			Store:         "file",
			SaveDelay:     500 * time.Millisecond,
			DeviceTimeout: 30 * time.Minute,
		},
		Shutdown: ShutdownConfig{
			Grace: 333 * time.Millisecond,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FIELDGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("FIELDGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FIELDGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FIELDGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("FIELDGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("FIELDGATE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("FIELDGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("FIELDGATE_REDIS_ADDR"); v != "" {
		cfg.GSM.Redis.Addr = v
	}
	if v := os.Getenv("FIELDGATE_REDIS_PASSWORD"); v != "" {
		cfg.GSM.Redis.Password = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.WebSocket.Enabled && !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, "websocket.path must start with /")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}

	if c.Scanner.Enabled {
		if !c.MQTT.Enabled {
			errs = append(errs, "scanner requires mqtt.enabled")
		}
		if c.Scanner.Topic == "" {
			errs = append(errs, "scanner.topic is required")
		}
	}

	if c.GSM.Enabled && !strings.HasPrefix(c.GSM.UploadPath, "/") {
		errs = append(errs, "gsm.upload_path must start with /")
	}
	switch c.GSM.Cache.Store {
	case "":
	case "file":
		if c.GSM.Cache.Path == "" {
			errs = append(errs, "gsm.cache.path is required for the file store")
		}
	case "redis":
		if c.GSM.Redis.Addr == "" {
			errs = append(errs, "gsm.redis.addr is required for the redis store")
		}
	default:
		errs = append(errs, fmt.Sprintf("gsm.cache.store %q is not one of file, redis", c.GSM.Cache.Store))
	}

	switch c.Discovery.Store {
	case "file":
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite store")
		}
	default:
		errs = append(errs, fmt.Sprintf("discovery.store %q is not one of file, sqlite", c.Discovery.Store))
	}

	for i, d := range c.Devices {
		if d.Address == "" {
			errs = append(errs, fmt.Sprintf("devices[%d].address is required", i))
		}
		if d.Unit < 1 || d.Unit > 255 {
			errs = append(errs, fmt.Sprintf("devices[%d].unit must be between 1 and 255", i))
		}
	}

	for i, l := range c.Links {
		if l.Host == "" {
			errs = append(errs, fmt.Sprintf("links[%d].host is required", i))
		}
		if l.Port < 1 || l.Port > 65535 {
			errs = append(errs, fmt.Sprintf("links[%d].port must be between 1 and 65535", i))
		}
	}

	for i, s := range c.Slaves {
		if s.Port < 0 || s.Port > 65535 {
			errs = append(errs, fmt.Sprintf("slaves[%d].port must be between 0 and 65535", i))
		}
	}

	if c.Shutdown.Grace <= 0 {
		errs = append(errs, "shutdown.grace must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}

// RestoreWindow returns the GSM report retention window.
func (c *Config) RestoreWindow() time.Duration {
	return time.Duration(c.GSM.Cache.RestoreMinutes) * time.Minute
}
