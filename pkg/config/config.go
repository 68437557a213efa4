package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Generator modes understood by the sensor package
const (
	GeneratorModeSine  = "sine"
	GeneratorModeSolar = "solar"
)

// Config holds the configuration for the sensor publisher agent
type Config struct {
	// MQTT configuration
	MQTTBroker      string
	MQTTPort        int
	MQTTUseTLS      bool
	MQTTTLSInsecure bool
	MQTTTopic       string
	MQTTQoS         int
	MQTTClientID    string

	// Publish configuration
	PublishPeriodSec int

	// Sensor identity embedded in every payload
	SensorName string
	SensorSite string

	// Reading generator configuration
	GeneratorMode string
	Latitude      float64
	Longitude     float64

	// Redis status mirror (disabled when RedisHost is empty)
	RedisHost      string
	RedisPort      int
	RedisPassword  string
	RedisDB        int
	RedisStatusTTL int

	// Service configuration
	ServiceName string
	HealthPort  int
	LogLevel    string
	ConfigFile  string
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:       "localhost",
		MQTTPort:         1883,
		MQTTUseTLS:       false,
		MQTTTopic:        "lab/temperature",
		MQTTQoS:          0,
		PublishPeriodSec: 5,
		SensorName:       "sensor-01",
		SensorSite:       "lab",
		GeneratorMode:    GeneratorModeSine,
		// Helsinki coordinates
		Latitude:       60.1695,
		Longitude:      24.9354,
		RedisPort:      6379,
		RedisStatusTTL: 60,
		ServiceName:    "sensor-publisher",
		HealthPort:     0,
		LogLevel:       "info",
	}
}

// fileConfig mirrors the YAML layout, grouped the same way as the
// Mqtt/Publish/Sensor option sections. Pointers distinguish "unset" from
// zero values so a partial file only overrides what it names.
type fileConfig struct {
	Mqtt struct {
		Host        *string `yaml:"host"`
		Port        *int    `yaml:"port"`
		UseTLS      *bool   `yaml:"use_tls"`
		TLSInsecure *bool   `yaml:"tls_insecure"`
		Topic       *string `yaml:"topic"`
		QoS         *int    `yaml:"qos"`
		ClientID    *string `yaml:"client_id"`
	} `yaml:"mqtt"`
	Publish struct {
		PeriodSeconds *int `yaml:"period_seconds"`
	} `yaml:"publish"`
	Sensor struct {
		Name *string `yaml:"name"`
		Site *string `yaml:"site"`
	} `yaml:"sensor"`
	Generator struct {
		Mode      *string  `yaml:"mode"`
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
	} `yaml:"generator"`
	Redis struct {
		Host      *string `yaml:"host"`
		Port      *int    `yaml:"port"`
		Password  *string `yaml:"password"`
		DB        *int    `yaml:"db"`
		StatusTTL *int    `yaml:"status_ttl_seconds"`
	} `yaml:"redis"`
	ServiceName *string `yaml:"service_name"`
	HealthPort  *int    `yaml:"health_port"`
	LogLevel    *string `yaml:"log_level"`
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	setString(&c.MQTTBroker, fc.Mqtt.Host)
	setInt(&c.MQTTPort, fc.Mqtt.Port)
	setBool(&c.MQTTUseTLS, fc.Mqtt.UseTLS)
	setBool(&c.MQTTTLSInsecure, fc.Mqtt.TLSInsecure)
	setString(&c.MQTTTopic, fc.Mqtt.Topic)
	setInt(&c.MQTTQoS, fc.Mqtt.QoS)
	setString(&c.MQTTClientID, fc.Mqtt.ClientID)

	setInt(&c.PublishPeriodSec, fc.Publish.PeriodSeconds)

	setString(&c.SensorName, fc.Sensor.Name)
	setString(&c.SensorSite, fc.Sensor.Site)

	setString(&c.GeneratorMode, fc.Generator.Mode)
	setFloat(&c.Latitude, fc.Generator.Latitude)
	setFloat(&c.Longitude, fc.Generator.Longitude)

	setString(&c.RedisHost, fc.Redis.Host)
	setInt(&c.RedisPort, fc.Redis.Port)
	setString(&c.RedisPassword, fc.Redis.Password)
	setInt(&c.RedisDB, fc.Redis.DB)
	setInt(&c.RedisStatusTTL, fc.Redis.StatusTTL)

	setString(&c.ServiceName, fc.ServiceName)
	setInt(&c.HealthPort, fc.HealthPort)
	setString(&c.LogLevel, fc.LogLevel)

	c.ConfigFile = path
	return nil
}

// lookupEnv returns the first non-empty value among the given variable names
func lookupEnv(names ...string) (string, bool) {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v, true
		}
	}
	return "", false
}

// LoadFromEnv loads configuration from environment variables with JEEVES_ prefix.
// Section-style names (Mqtt__Host, Publish__PeriodSeconds, ...) are accepted
// as fallbacks so existing deployments keep working.
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	if v, ok := lookupEnv("JEEVES_MQTT_BROKER", "Mqtt__Host"); ok {
		c.MQTTBroker = v
	}
	if v, ok := lookupEnv("JEEVES_MQTT_PORT", "Mqtt__Port"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = port
		}
	}
	if v, ok := lookupEnv("JEEVES_MQTT_USE_TLS", "Mqtt__UseTls"); ok {
		if useTLS, err := strconv.ParseBool(v); err == nil {
			c.MQTTUseTLS = useTLS
		}
	}
	if v, ok := lookupEnv("JEEVES_MQTT_TLS_INSECURE"); ok {
		if insecure, err := strconv.ParseBool(v); err == nil {
			c.MQTTTLSInsecure = insecure
		}
	}
	if v, ok := lookupEnv("JEEVES_MQTT_TOPIC", "Mqtt__Topic"); ok {
		c.MQTTTopic = v
	}
	if v, ok := lookupEnv("JEEVES_MQTT_QOS"); ok {
		if qos, err := strconv.Atoi(v); err == nil {
			c.MQTTQoS = qos
		}
	}
	if v, ok := lookupEnv("JEEVES_MQTT_CLIENT_ID"); ok {
		c.MQTTClientID = v
	}

	// Publish configuration
	if v, ok := lookupEnv("JEEVES_PUBLISH_PERIOD_SEC", "Publish__PeriodSeconds"); ok {
		if period, err := strconv.Atoi(v); err == nil {
			c.PublishPeriodSec = period
		}
	}

	// Sensor identity
	if v, ok := lookupEnv("JEEVES_SENSOR_NAME", "Sensor__Name"); ok {
		c.SensorName = v
	}
	if v, ok := lookupEnv("JEEVES_SENSOR_SITE", "Sensor__Site"); ok {
		c.SensorSite = v
	}

	// Generator configuration
	if v, ok := lookupEnv("JEEVES_GENERATOR_MODE"); ok {
		c.GeneratorMode = v
	}
	if v, ok := lookupEnv("JEEVES_LATITUDE"); ok {
		if lat, err := strconv.ParseFloat(v, 64); err == nil {
			c.Latitude = lat
		}
	}
	if v, ok := lookupEnv("JEEVES_LONGITUDE"); ok {
		if lon, err := strconv.ParseFloat(v, 64); err == nil {
			c.Longitude = lon
		}
	}

	// Redis configuration
	if v, ok := lookupEnv("JEEVES_REDIS_HOST"); ok {
		c.RedisHost = v
	}
	if v, ok := lookupEnv("JEEVES_REDIS_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v, ok := lookupEnv("JEEVES_REDIS_PASSWORD"); ok {
		c.RedisPassword = v
	}
	if v, ok := lookupEnv("JEEVES_REDIS_DB"); ok {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}
	if v, ok := lookupEnv("JEEVES_REDIS_STATUS_TTL_SEC"); ok {
		if ttl, err := strconv.Atoi(v); err == nil {
			c.RedisStatusTTL = ttl
		}
	}

	// Service configuration
	if v, ok := lookupEnv("JEEVES_SERVICE_NAME"); ok {
		c.ServiceName = v
	}
	if v, ok := lookupEnv("JEEVES_HEALTH_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v, ok := lookupEnv("JEEVES_LOG_LEVEL"); ok {
		c.LogLevel = v
	}
}

// newFlagSet binds every option to a flag whose default is the current value
func (c *Config) newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(c.ServiceName, pflag.ContinueOnError)

	// MQTT flags
	fs.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	fs.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	fs.BoolVar(&c.MQTTUseTLS, "mqtt-use-tls", c.MQTTUseTLS, "Use TLS for the broker connection")
	fs.BoolVar(&c.MQTTTLSInsecure, "mqtt-tls-insecure", c.MQTTTLSInsecure, "Skip broker certificate verification")
	fs.StringVar(&c.MQTTTopic, "mqtt-topic", c.MQTTTopic, "Topic readings are published to")
	fs.IntVar(&c.MQTTQoS, "mqtt-qos", c.MQTTQoS, "QoS level for published readings (0-2)")
	fs.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID (generated when empty)")

	// Publish and sensor flags
	fs.IntVar(&c.PublishPeriodSec, "publish-period", c.PublishPeriodSec, "Publish period in seconds")
	fs.StringVar(&c.SensorName, "sensor-name", c.SensorName, "Sensor name embedded in payloads")
	fs.StringVar(&c.SensorSite, "sensor-site", c.SensorSite, "Site name embedded in payloads")

	// Generator flags
	fs.StringVar(&c.GeneratorMode, "generator-mode", c.GeneratorMode, "Reading generator (sine, solar)")
	fs.Float64Var(&c.Latitude, "latitude", c.Latitude, "Geographic latitude for the solar generator")
	fs.Float64Var(&c.Longitude, "longitude", c.Longitude, "Geographic longitude for the solar generator")

	// Redis flags
	fs.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname for the status mirror (disabled when empty)")
	fs.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	fs.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")
	fs.IntVar(&c.RedisStatusTTL, "redis-status-ttl", c.RedisStatusTTL, "TTL of mirrored status keys in seconds")

	// Service flags
	fs.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	fs.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port (0 disables)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "Path to a YAML config file")

	return fs
}

// LoadFromArgs parses command-line flags and overrides config values.
// Only flags present in args change the config.
func (c *Config) LoadFromArgs(args []string) error {
	if err := c.newFlagSet().Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	return nil
}

// configFileFromArgs extracts --config without touching any other option
func configFileFromArgs(args []string) string {
	fs := pflag.NewFlagSet("config-file", pflag.ContinueOnError)
	fs.ParseErrorsAllowlist.UnknownFlags = true
	fs.Usage = func() {}
	path := fs.String("config", "", "")
	_ = fs.Parse(args)
	return *path
}

// Load builds the configuration with hierarchy: defaults → file → env → flags
func Load(args []string) (*Config, error) {
	cfg := NewConfig()

	path := configFileFromArgs(args)
	if path == "" {
		path = os.Getenv("JEEVES_CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	cfg.LoadFromEnv()

	if err := cfg.LoadFromArgs(args); err != nil {
		return nil, err
	}

	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = NewClientID()
	}

	return cfg, nil
}

// NewClientID returns a client identifier that is unique per process run
func NewClientID() string {
	return "sensor-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.MQTTTopic == "" {
		return fmt.Errorf("MQTT topic is required")
	}
	if strings.ContainsAny(c.MQTTTopic, "+#") {
		return fmt.Errorf("MQTT topic %q must not contain wildcards", c.MQTTTopic)
	}
	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		return fmt.Errorf("MQTT QoS must be 0, 1 or 2")
	}
	if c.PublishPeriodSec <= 0 {
		return fmt.Errorf("publish period must be positive")
	}
	if c.SensorName == "" {
		return fmt.Errorf("sensor name is required")
	}
	if c.SensorSite == "" {
		return fmt.Errorf("sensor site is required")
	}
	if c.GeneratorMode != GeneratorModeSine && c.GeneratorMode != GeneratorModeSolar {
		return fmt.Errorf("invalid generator mode: %s (must be sine or solar)", c.GeneratorMode)
	}
	if c.HealthPort < 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 0 and 65535")
	}
	if c.RedisEnabled() {
		if c.RedisPort <= 0 || c.RedisPort > 65535 {
			return fmt.Errorf("Redis port must be between 1 and 65535")
		}
		if c.RedisStatusTTL <= 0 {
			return fmt.Errorf("Redis status TTL must be positive")
		}
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	scheme := "tcp"
	if c.MQTTUseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.MQTTBroker, c.MQTTPort)
}

// RedisEnabled reports whether the Redis status mirror is configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
