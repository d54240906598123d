// Package config loads groundctl's startup configuration: HTTP bind
// address, external bus URL, serial link definitions, simulator tick
// rate, and log level. Grounded on the env-var-with-defaults shape of
// internal/platform/db/config.go's LoadConfig, rebuilt on top of
// github.com/spf13/viper (a dependency the teacher's go.mod declares but
// never imports) so environment variables, a config file, and explicit
// defaults compose the way spec §9's "ambient configuration" note
// expects.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// SerialLinkConfig describes one physical airframe's serial connection.
type SerialLinkConfig struct {
	AircraftID string
	Port       string
	BaudRate   int
}

// Config is groundctl's full startup configuration.
type Config struct {
	HTTPAddr      string
	LogLevel      string
	NATSURL       string // empty disables the external bus bridge
	QueueCapacity int
	TickRateHz    float64
	SerialLinks   []SerialLinkConfig

	// AllowInject gates POST /inject/{topicSuffix}, the operator-facing
	// test bypass spec §6 describes: disabled by default since it lets a
	// caller publish arbitrary payloads onto any topic.
	AllowInject bool
}

// Load reads configuration from (in ascending priority) built-in
// defaults, an optional config file, and GROUNDCTL_-prefixed environment
// variables, matching the override order
// internal/platform/db/config.go's getEnv helper applies manually.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("nats_url", "")
	v.SetDefault("queue_capacity", 1024)
	v.SetDefault("tick_rate_hz", 50.0)
	v.SetDefault("operator.allow_inject", false)

	v.SetEnvPrefix("GROUNDCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", configFile, err)
		}
	}

	var links []SerialLinkConfig
	if err := v.UnmarshalKey("serial_links", &links); err != nil {
		return nil, fmt.Errorf("config: decoding serial_links: %w", err)
	}

	cfg := &Config{
		HTTPAddr:      v.GetString("http_addr"),
		LogLevel:      v.GetString("log_level"),
		NATSURL:       v.GetString("nats_url"),
		QueueCapacity: v.GetInt("queue_capacity"),
		TickRateHz:    v.GetFloat64("tick_rate_hz"),
		SerialLinks:   links,
		AllowInject:   v.GetBool("operator.allow_inject"),
	}

	if cfg.QueueCapacity <= 0 {
		return nil, fmt.Errorf("config: queue_capacity must be positive, got %d", cfg.QueueCapacity)
	}
	if cfg.TickRateHz <= 0 {
		return nil, fmt.Errorf("config: tick_rate_hz must be positive, got %f", cfg.TickRateHz)
	}

	return cfg, nil
}
