// Package config loads the runtime defaults for the tabwire client.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Target TargetConfig `yaml:"target"`
	Client ClientConfig `yaml:"client"`
	Wait   WaitConfig   `yaml:"wait"`
}

// TargetConfig identifies the websocket endpoint to drive. The URL is
// handed to us by whatever discovered the target; there is no bootstrap
// logic here.
type TargetConfig struct {
	URL string `yaml:"url"`
}

// ClientConfig tunes the transport and command handling.
type ClientConfig struct {
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
}

// WaitConfig tunes the coordination primitives.
type WaitConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	IdleWindow   time.Duration `yaml:"idle_window"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

func defaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			DialTimeout:    10 * time.Second,
			CommandTimeout: 30 * time.Second,
			WriteTimeout:   10 * time.Second,
			PingInterval:   30 * time.Second,
			PongTimeout:    60 * time.Second,
		},
		Wait: WaitConfig{
			PollInterval: 100 * time.Millisecond,
			IdleWindow:   500 * time.Millisecond,
			IdleTimeout:  30 * time.Second,
		},
	}
}

// Default returns the built-in configuration, used when no file is given.
func Default() *Config {
	return defaultConfig()
}

// Load reads path and unmarshals it over the defaults, so unspecified
// fields keep their built-in values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
