package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic Tuya service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Tuya      TuyaConfig      `yaml:"tuya"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
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

// APITimeoutConfig contains HTTP timeout settings.
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
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT verification settings.
// Tokens are minted by Gray Logic Core; this service only verifies them.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// TuyaConfig contains Tuya cloud pairing settings.
type TuyaConfig struct {
	// ClientID identifies this integration to the Tuya QR login gateway.
	ClientID string `yaml:"client_id"`

	// Schema is the authorisation schema sent with the QR code request.
	Schema string `yaml:"schema"`

	// AuthURL is the QR code token endpoint. The artifact is appended as a
	// path segment when polling.
	AuthURL string `yaml:"auth_url"`

	// APIURL is the cloud endpoint used when an issued token carries none.
	APIURL string `yaml:"api_url"`

	// ConfigID is the OAuth2 configuration identifier stored with each client.
	ConfigID string `yaml:"config_id"`

	// PollInterval is the token polling cadence (seconds). Default: 1
	PollInterval int `yaml:"poll_interval"`

	// RequestTimeout bounds every outbound request (seconds). Default: 10
	RequestTimeout int `yaml:"request_timeout"`

	// DiscoveryConcurrency bounds parallel per-device enrichment requests.
	// Default: 4
	DiscoveryConcurrency int `yaml:"discovery_concurrency"`

	// Drivers lists the device families that can be paired.
	Drivers []TuyaDriverConfig `yaml:"drivers"`
}

// TuyaDriverConfig describes one pairing driver.
type TuyaDriverConfig struct {
	// Name is used in API paths (e.g. /api/v1/pairing/socket/sessions).
	Name string `yaml:"name"`

	// Family selects the property mapper: "generic", "socket" or "light".
	Family string `yaml:"family"`

	// Categories overrides the family's built-in category allow-list.
	// Required for the generic family.
	Categories []string `yaml:"categories"`
}

// Known Tuya mapper families.
var tuyaFamilies = map[string]bool{
	"generic": true,
	"socket":  true,
	"light":   true,
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_TUYA_CLIENT_ID
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
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-tuya.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-tuya",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Tuya: TuyaConfig{
			ClientID:             "HA_3y9q4ak7g4ephrvke",
			Schema:               "haauthorize",
			AuthURL:              "https://apigw.iotbing.com/v1.0/m/life/home-assistant/qrcode/tokens",
			APIURL:               "https://apigw.iotbing.com",
			ConfigID:             "default",
			PollInterval:         1,
			RequestTimeout:       10,
			DiscoveryConcurrency: 4,
			Drivers: []TuyaDriverConfig{
				{Name: "socket", Family: "socket"},
				{Name: "light", Family: "light"},
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Tuya
	if v := os.Getenv("GRAYLOGIC_TUYA_CLIENT_ID"); v != "" {
		cfg.Tuya.ClientID = v
	}
	if v := os.Getenv("GRAYLOGIC_TUYA_AUTH_URL"); v != "" {
		cfg.Tuya.AuthURL = v
	}
	if v := os.Getenv("GRAYLOGIC_TUYA_API_URL"); v != "" {
		cfg.Tuya.APIURL = v
	}

	// Security - JWT secret shared with Gray Logic Core
	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// The pairing API hands out control of cloud accounts, so an empty or
	// weak secret is never acceptable.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	errs = append(errs, c.Tuya.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate returns the problems found in the tuya section.
func (t *TuyaConfig) validate() []string {
	var errs []string

	if t.ClientID == "" {
		errs = append(errs, "tuya.client_id is required")
	}
	if t.Schema == "" {
		errs = append(errs, "tuya.schema is required")
	}
	if t.AuthURL == "" {
		errs = append(errs, "tuya.auth_url is required")
	}
	if t.PollInterval < 1 {
		errs = append(errs, "tuya.poll_interval must be at least 1 second")
	}
	if t.RequestTimeout < 1 {
		errs = append(errs, "tuya.request_timeout must be at least 1 second")
	}
	if t.DiscoveryConcurrency < 1 {
		errs = append(errs, "tuya.discovery_concurrency must be at least 1")
	}
	if len(t.Drivers) == 0 {
		errs = append(errs, "tuya.drivers must list at least one driver")
	}

	seen := make(map[string]bool, len(t.Drivers))
	for i, d := range t.Drivers {
		switch {
		case d.Name == "":
			errs = append(errs, fmt.Sprintf("tuya.drivers[%d].name is required", i))
		case seen[d.Name]:
			errs = append(errs, fmt.Sprintf("tuya.drivers[%d].name %q is duplicated", i, d.Name))
		}
		seen[d.Name] = true

		if !tuyaFamilies[d.Family] {
			errs = append(errs, fmt.Sprintf("tuya.drivers[%d].family %q is not one of generic, socket, light", i, d.Family))
		}
		if d.Family == "generic" && len(d.Categories) == 0 {
			errs = append(errs, fmt.Sprintf("tuya.drivers[%d].categories is required for the generic family", i))
		}
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

// GetPollInterval returns the Tuya token polling cadence as a Duration.
func (t TuyaConfig) GetPollInterval() time.Duration {
	return time.Duration(t.PollInterval) * time.Second
}

// GetRequestTimeout returns the outbound request timeout as a Duration.
func (t TuyaConfig) GetRequestTimeout() time.Duration {
	return time.Duration(t.RequestTimeout) * time.Second
}
