package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type DMServerConfig struct {
	HTTPAddr        string        `env:"DM_HTTP_ADDR" envDefault:":9020"`
	DBDSN           string        `env:"DB_DSN"`
	MQTTEnabled     bool          `env:"MQTT_ENABLED" envDefault:"true"`
	MQTTBrokerURL   string        `env:"MQTT_BROKER_URL" envDefault:"tcp://localhost:1883"`
	MQTTClientID    string        `env:"DM_MQTT_CLIENT_ID" envDefault:"dm-server"`
	MQTTUsername    string        `env:"MQTT_USERNAME"`
	MQTTPassword    string        `env:"MQTT_PASSWORD"`
	MQTTTopicPrefix string        `env:"MQTT_TOPIC_PREFIX" envDefault:"sds"`
	DMType          string        `env:"DM_TYPE" envDefault:"rule"`
	MainLoopSleep   time.Duration `env:"DM_MAIN_LOOP_SLEEP" envDefault:"50ms"`
	SessionBuffer   int           `env:"DM_SESSION_BUFFER" envDefault:"64"`
	Debug           bool          `env:"DM_DEBUG" envDefault:"false"`
}

type ConsoleConfig struct {
	MQTTBrokerURL   string        `env:"MQTT_BROKER_URL" envDefault:"tcp://localhost:1883"`
	MQTTUsername    string        `env:"MQTT_USERNAME"`
	MQTTPassword    string        `env:"MQTT_PASSWORD"`
	MQTTTopicPrefix string        `env:"MQTT_TOPIC_PREFIX" envDefault:"sds"`
	DMType          string        `env:"DM_TYPE" envDefault:"rule"`
	MainLoopSleep   time.Duration `env:"DM_MAIN_LOOP_SLEEP" envDefault:"50ms"`
	Debug           bool          `env:"DM_DEBUG" envDefault:"false"`
}

func LoadDMServerConfig() (DMServerConfig, error) {
	var cfg DMServerConfig
	if err := env.Parse(&cfg); err != nil {
		return DMServerConfig{}, err
	}
	cfg.MQTTTopicPrefix = strings.Trim(cfg.MQTTTopicPrefix, "/")

	if cfg.MainLoopSleep <= 0 {
		return DMServerConfig{}, fmt.Errorf("DM_MAIN_LOOP_SLEEP must be positive, got %s", cfg.MainLoopSleep)
	}
	if cfg.SessionBuffer <= 0 {
		return DMServerConfig{}, fmt.Errorf("DM_SESSION_BUFFER must be positive, got %d", cfg.SessionBuffer)
	}
	if strings.TrimSpace(cfg.DMType) == "" {
		return DMServerConfig{}, fmt.Errorf("DM_TYPE is required")
	}
	if cfg.MQTTEnabled && strings.TrimSpace(cfg.MQTTBrokerURL) == "" {
		return DMServerConfig{}, fmt.Errorf("MQTT_BROKER_URL is required when MQTT_ENABLED=true")
	}
	if cfg.MQTTEnabled && cfg.MQTTTopicPrefix == "" {
		return DMServerConfig{}, fmt.Errorf("MQTT_TOPIC_PREFIX is required when MQTT_ENABLED=true")
	}
	return cfg, nil
}

func LoadConsoleConfig() (ConsoleConfig, error) {
	var cfg ConsoleConfig
	if err := env.Parse(&cfg); err != nil {
		return ConsoleConfig{}, err
	}
	cfg.MQTTTopicPrefix = strings.Trim(cfg.MQTTTopicPrefix, "/")
	if cfg.MainLoopSleep <= 0 {
		return ConsoleConfig{}, fmt.Errorf("DM_MAIN_LOOP_SLEEP must be positive, got %s", cfg.MainLoopSleep)
	}
	return cfg, nil
}
