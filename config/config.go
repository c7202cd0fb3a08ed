// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the request exerciser.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Driver    DriverConfig    `yaml:"driver"`
	Large     LargeConfig     `yaml:"large"`
	Transport TransportConfig `yaml:"transport"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Observer  ObserverConfig  `yaml:"observer"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// DriverConfig controls how modes are turned into sends.
type DriverConfig struct {
	// Print status, headers and body of every response.
	Debug bool `yaml:"debug"`

	// Looped notify settings.
	Runs     int           `yaml:"runs"`
	Interval time.Duration `yaml:"interval"`

	// Pause between steps of the "all" sequence.
	StepDelay time.Duration `yaml:"step_delay"`

	NotifyMessage string `yaml:"notify_message"`

	// Address (host:port) the broker should call back. Prompted when empty.
	WANAddr string `yaml:"wan_addr"`
	// Send the register PublisherReference as http://host:port instead of the bare host:port.
	PublisherURL bool `yaml:"publisher_url"`

	EscapeValues    bool `yaml:"escape_values"`
	ContinueOnError bool `yaml:"continue_on_error"`
}

// LargeConfig controls the large notify payload.
type LargeConfig struct {
	AssetFile       string `yaml:"asset_file"`       // base64 filler, optionally gzip compressed (.gz)
	SynthesizeBytes int    `yaml:"synthesize_bytes"` // used when asset_file is empty
	ChunkLines      int    `yaml:"chunk_lines"`
	Stream          bool   `yaml:"stream"`
}

// TransportConfig holds HTTP client settings.
type TransportConfig struct {
	ContentType    string               `yaml:"content_type"`
	UserAgent      string               `yaml:"user_agent"`
	Timeout        time.Duration        `yaml:"timeout"` // 0 keeps the client default (none)
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// ConsumerConfig holds the local notification consumer listener settings.
type ConsumerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ObserverConfig holds the MQTT side-channel observer settings.
type ObserverConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MQTTAddr       string        `yaml:"mqtt_addr"`
	ClientID       string        `yaml:"client_id"`
	Topic          string        `yaml:"topic"` // defaults to the CLI topic
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Endpoint        string  `yaml:"endpoint"`
	ServiceName     string  `yaml:"service_name"`
	ServiceVersion  string  `yaml:"service_version"`
	TracesEnabled   bool    `yaml:"traces_enabled"`
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"` // 0.0 to 1.0
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Driver: DriverConfig{
			Debug:         true,
			Runs:          1000,
			Interval:      time.Millisecond,
			StepDelay:     2 * time.Second,
			NotifyMessage: "derp",
		},
		Large: LargeConfig{
			AssetFile:       "",
			SynthesizeBytes: 9 * 1024 * 1024,
			ChunkLines:      100,
			Stream:          true,
		},
		Transport: TransportConfig{
			ContentType: "application/soap+xml;charset=utf-8",
			UserAgent:   "bullrider/1.0",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Consumer: ConsumerConfig{
			Enabled:         false,
			Addr:            ":8000",
			MaxBodyBytes:    16 * 1024 * 1024,
			ShutdownTimeout: 5 * time.Second,
		},
		Observer: ObserverConfig{
			Enabled:        false,
			MQTTAddr:       "localhost:1883",
			ClientID:       "bullrider-observer",
			QoS:            0,
			ConnectTimeout: 5 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Endpoint:        "localhost:4317",
			ServiceName:     "bullrider",
			ServiceVersion:  "1.0.0",
			TracesEnabled:   false,
			MetricsEnabled:  false,
			TraceSampleRate: 1.0,
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	if c.Driver.Runs < 1 {
		return fmt.Errorf("driver.runs must be at least 1")
	}
	if c.Driver.Interval < 0 {
		return fmt.Errorf("driver.interval cannot be negative")
	}
	if c.Driver.StepDelay < 0 {
		return fmt.Errorf("driver.step_delay cannot be negative")
	}

	if c.Large.AssetFile == "" && c.Large.SynthesizeBytes < 1 {
		return fmt.Errorf("large.synthesize_bytes must be positive when large.asset_file is empty")
	}
	if c.Large.ChunkLines < 1 {
		return fmt.Errorf("large.chunk_lines must be at least 1")
	}

	if c.Transport.ContentType == "" {
		return fmt.Errorf("transport.content_type cannot be empty")
	}
	if c.Transport.Timeout < 0 {
		return fmt.Errorf("transport.timeout cannot be negative")
	}
	if c.Transport.CircuitBreaker.Enabled && c.Transport.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("transport.circuit_breaker.failure_threshold must be at least 1")
	}

	if c.Consumer.Enabled {
		if c.Consumer.Addr == "" {
			return fmt.Errorf("consumer.addr required when consumer is enabled")
		}
		if c.Consumer.MaxBodyBytes < 1 {
			return fmt.Errorf("consumer.max_body_bytes must be positive")
		}
	}

	if c.Observer.Enabled {
		if c.Observer.MQTTAddr == "" {
			return fmt.Errorf("observer.mqtt_addr required when observer is enabled")
		}
		if c.Observer.QoS > 2 {
			return fmt.Errorf("observer.qos must be 0, 1, or 2")
		}
	}

	if c.Telemetry.TracesEnabled || c.Telemetry.MetricsEnabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint required when telemetry is enabled")
		}
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("telemetry.service_name cannot be empty when telemetry is enabled")
		}
		if c.Telemetry.TraceSampleRate < 0.0 || c.Telemetry.TraceSampleRate > 1.0 {
			return fmt.Errorf("telemetry.trace_sample_rate must be between 0.0 and 1.0")
		}
	}

	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
