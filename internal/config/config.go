// Package config holds the runtime configuration for the notelock core.
//
// Configuration is viper-backed: defaults first, then an optional YAML file.
// The only key mutated at runtime is api.endpoint (via the
// app:api:set-endpoint command); a Set persists back to the file when one
// was loaded.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Keys used throughout the core.
const (
	KeyMessagingChannel = "messaging.reqres"
	KeyMessagingEvents  = "messaging.events"
	KeyAPIEndpoint      = "api.endpoint"
	KeyDBPath           = "db.path"
	KeyOutgoingDelayMS  = "sync.outgoing_delay_ms"
	KeyIncomingDelayMS  = "sync.incoming_delay_ms"
	KeyGatewayPort      = "gateway.port"
	KeyLogLevel         = "log.level"
	KeyLogFile          = "log.file"
)

// Config is a concurrency-safe view over the loaded settings.
type Config struct {
	mu   sync.RWMutex
	v    *viper.Viper
	path string
}

func defaults(v *viper.Viper) {
	v.SetDefault(KeyMessagingChannel, "inproc://notelock")
	v.SetDefault(KeyMessagingEvents, "inproc://notelock-events")
	v.SetDefault(KeyAPIEndpoint, "https://api.notelock.io/v2")
	v.SetDefault(KeyDBPath, filepath.Join(".notelock", "core.db"))
	v.SetDefault(KeyOutgoingDelayMS, 1000)
	v.SetDefault(KeyIncomingDelayMS, 5000)
	v.SetDefault(KeyGatewayPort, 7472)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
}

// New returns a config holding only the built-in defaults.
func New() *Config {
	v := viper.New()
	defaults(v)
	return &Config{v: v}
}

// Load reads the YAML file at path on top of the defaults. A missing file is
// not an error; the defaults stand.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	return &Config{v: v, path: path}, nil
}

// Path returns the config file path, "" when running on defaults only.
func (c *Config) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// GetString returns the string value for key.
func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetString(key)
}

// GetInt returns the integer value for key.
func (c *Config) GetInt(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetInt(key)
}

// Set updates a key in memory and, when a file is attached, persists it.
func (c *Config) Set(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.v.Set(key, value)
	if c.path == "" {
		return nil
	}
	if err := c.v.WriteConfigAs(c.path); err != nil {
		return fmt.Errorf("failed to persist config: %w", err)
	}
	return nil
}

// Reload re-reads the attached file, picking up external edits. No-op when
// running on defaults only.
func (c *Config) Reload() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return nil
	}
	if err := c.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	return nil
}

// bootstrap is the shape written by WriteDefault. Kept flat on purpose: the
// file is meant to be hand-edited.
type bootstrap struct {
	Messaging struct {
		Reqres string `yaml:"reqres"`
		Events string `yaml:"events"`
	} `yaml:"messaging"`
	API struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"api"`
	DB struct {
		Path string `yaml:"path"`
	} `yaml:"db"`
	Sync struct {
		OutgoingDelayMS int `yaml:"outgoing_delay_ms"`
		IncomingDelayMS int `yaml:"incoming_delay_ms"`
	} `yaml:"sync"`
	Gateway struct {
		Port int `yaml:"port"`
	} `yaml:"gateway"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

// WriteDefault writes a commented-free starter config to path. Refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	var b bootstrap
	v := viper.New()
	defaults(v)
	b.Messaging.Reqres = v.GetString(KeyMessagingChannel)
	b.Messaging.Events = v.GetString(KeyMessagingEvents)
	b.API.Endpoint = v.GetString(KeyAPIEndpoint)
	b.DB.Path = v.GetString(KeyDBPath)
	b.Sync.OutgoingDelayMS = v.GetInt(KeyOutgoingDelayMS)
	b.Sync.IncomingDelayMS = v.GetInt(KeyIncomingDelayMS)
	b.Gateway.Port = v.GetInt(KeyGatewayPort)
	b.Log.Level = v.GetString(KeyLogLevel)
	b.Log.File = v.GetString(KeyLogFile)

	data, err := yaml.Marshal(&b)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
