package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "localhost", cfg.MQTTBroker)
	assert.Equal(t, 1883, cfg.MQTTPort)
	assert.False(t, cfg.MQTTUseTLS)
	assert.Equal(t, "lab/temperature", cfg.MQTTTopic)
	assert.Equal(t, 5, cfg.PublishPeriodSec)
	assert.Equal(t, GeneratorModeSine, cfg.GeneratorMode)
	assert.False(t, cfg.RedisEnabled())
	assert.NoError(t, cfg.Validate())
}

func TestMQTTAddress(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTAddress())

	cfg.MQTTBroker = "broker.example.com"
	cfg.MQTTPort = 8883
	cfg.MQTTUseTLS = true
	assert.Equal(t, "ssl://broker.example.com:8883", cfg.MQTTAddress())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JEEVES_MQTT_BROKER", "mqtt.internal")
	t.Setenv("JEEVES_MQTT_PORT", "8883")
	t.Setenv("JEEVES_MQTT_USE_TLS", "true")
	t.Setenv("JEEVES_PUBLISH_PERIOD_SEC", "10")
	t.Setenv("JEEVES_SENSOR_NAME", "s1")
	t.Setenv("JEEVES_SENSOR_SITE", "A")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "mqtt.internal", cfg.MQTTBroker)
	assert.Equal(t, 8883, cfg.MQTTPort)
	assert.True(t, cfg.MQTTUseTLS)
	assert.Equal(t, 10, cfg.PublishPeriodSec)
	assert.Equal(t, "s1", cfg.SensorName)
	assert.Equal(t, "A", cfg.SensorSite)
}

func TestLoadFromEnvSectionAliases(t *testing.T) {
	t.Setenv("Mqtt__Host", "legacy-host")
	t.Setenv("Mqtt__Topic", "legacy/topic")
	t.Setenv("Publish__PeriodSeconds", "7")
	t.Setenv("Sensor__Site", "B")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "legacy-host", cfg.MQTTBroker)
	assert.Equal(t, "legacy/topic", cfg.MQTTTopic)
	assert.Equal(t, 7, cfg.PublishPeriodSec)
	assert.Equal(t, "B", cfg.SensorSite)
}

func TestLoadFromEnvPrefixWinsOverAlias(t *testing.T) {
	t.Setenv("JEEVES_MQTT_BROKER", "primary")
	t.Setenv("Mqtt__Host", "alias")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "primary", cfg.MQTTBroker)
}

func TestLoadFromEnvIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("JEEVES_MQTT_PORT", "not-a-port")

	cfg := NewConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, 1883, cfg.MQTTPort)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publisher.yaml")
	content := `
mqtt:
  host: broker.lan
  port: 8883
  use_tls: true
  topic: plant/temperature
publish:
  period_seconds: 2
sensor:
  name: s1
  site: A
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "broker.lan", cfg.MQTTBroker)
	assert.Equal(t, 8883, cfg.MQTTPort)
	assert.True(t, cfg.MQTTUseTLS)
	assert.Equal(t, "plant/temperature", cfg.MQTTTopic)
	assert.Equal(t, 2, cfg.PublishPeriodSec)
	assert.Equal(t, "s1", cfg.SensorName)
	assert.Equal(t, "A", cfg.SensorSite)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Options the file does not name keep their defaults
	assert.Equal(t, GeneratorModeSine, cfg.GeneratorMode)
	assert.Equal(t, "sensor-publisher", cfg.ServiceName)
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")))

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt: [unclosed"), 0o600))
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestLoadFromArgs(t *testing.T) {
	cfg := NewConfig()
	cfg.MQTTBroker = "from-env"

	err := cfg.LoadFromArgs([]string{"--mqtt-topic", "lab/humidity", "--publish-period=3", "--mqtt-use-tls"})
	require.NoError(t, err)

	assert.Equal(t, "lab/humidity", cfg.MQTTTopic)
	assert.Equal(t, 3, cfg.PublishPeriodSec)
	assert.True(t, cfg.MQTTUseTLS)
	// Untouched flags keep the previously loaded value
	assert.Equal(t, "from-env", cfg.MQTTBroker)
}

func TestLoadFromArgsUnknownFlag(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, cfg.LoadFromArgs([]string{"--no-such-flag"}))
}

func TestLoadHierarchy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publisher.yaml")
	content := `
mqtt:
  host: file-host
  topic: file/topic
sensor:
  name: file-sensor
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("JEEVES_MQTT_TOPIC", "env/topic")
	t.Setenv("JEEVES_SENSOR_NAME", "env-sensor")

	cfg, err := Load([]string{"--config", path, "--sensor-name", "flag-sensor"})
	require.NoError(t, err)

	assert.Equal(t, "file-host", cfg.MQTTBroker, "file overrides default")
	assert.Equal(t, "env/topic", cfg.MQTTTopic, "env overrides file")
	assert.Equal(t, "flag-sensor", cfg.SensorName, "flag overrides env")
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestLoadGeneratesClientID(t *testing.T) {
	first, err := Load(nil)
	require.NoError(t, err)
	second, err := Load(nil)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.MQTTClientID, "sensor-"))
	assert.NotContains(t, strings.TrimPrefix(first.MQTTClientID, "sensor-"), "-")
	assert.NotEqual(t, first.MQTTClientID, second.MQTTClientID)
}

func TestLoadKeepsExplicitClientID(t *testing.T) {
	cfg, err := Load([]string{"--mqtt-client-id", "fixed-id"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", cfg.MQTTClientID)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults are valid", func(c *Config) {}, ""},
		{"empty broker", func(c *Config) { c.MQTTBroker = "" }, "broker"},
		{"port too high", func(c *Config) { c.MQTTPort = 70000 }, "port"},
		{"port zero", func(c *Config) { c.MQTTPort = 0 }, "port"},
		{"empty topic", func(c *Config) { c.MQTTTopic = "" }, "topic"},
		{"wildcard topic", func(c *Config) { c.MQTTTopic = "lab/+" }, "wildcards"},
		{"multi-level wildcard", func(c *Config) { c.MQTTTopic = "lab/#" }, "wildcards"},
		{"bad qos", func(c *Config) { c.MQTTQoS = 3 }, "QoS"},
		{"zero period", func(c *Config) { c.PublishPeriodSec = 0 }, "period"},
		{"empty sensor name", func(c *Config) { c.SensorName = "" }, "sensor name"},
		{"empty site", func(c *Config) { c.SensorSite = "" }, "site"},
		{"unknown generator", func(c *Config) { c.GeneratorMode = "square" }, "generator"},
		{"bad health port", func(c *Config) { c.HealthPort = -1 }, "Health port"},
		{"bad redis port", func(c *Config) { c.RedisHost = "redis"; c.RedisPort = 0 }, "Redis port"},
		{"bad redis ttl", func(c *Config) { c.RedisHost = "redis"; c.RedisStatusTTL = 0 }, "TTL"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
