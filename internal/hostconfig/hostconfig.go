// Package hostconfig reads the plugifyd entrypoint's own settings from
// a YAML file: nothing here is plugin/module manifest configuration
// (that remains the embedder's ManifestSource to supply, per spec
// Non-goals) — this is only the host process's own wiring: where its
// backing services live, which platform it runs on, how often it
// ticks. Grounded on the teacher's cmd/main.go environment-variable
// config block, generalized from os.Getenv reads to a single YAML
// document so the growing list of backing-service settings does not
// turn into forty individual env vars.
package hostconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full plugifyd host configuration.
type Config struct {
	Platform     string        `yaml:"platform"`
	TickInterval time.Duration `yaml:"tickInterval"`

	Paths    PathsConfig    `yaml:"paths"`
	AdminAPI AdminAPIConfig `yaml:"adminApi"`
	Events   EventsConfig   `yaml:"events"`
	Cache    CacheConfig    `yaml:"cache"`
	Reports  ReportsConfig  `yaml:"reports"`
}

// PathsConfig is the host's own notion of its base/config/data/log
// directories, handed to the core as provider.HostConfig (spec §6).
// The core never reads these paths itself; it only ever returns them
// back to a language module that asks.
type PathsConfig struct {
	Base    string `yaml:"base"`
	Configs string `yaml:"configs"`
	Data    string `yaml:"data"`
	Logs    string `yaml:"logs"`
}

// AdminAPIConfig configures the read-only operational HTTP surface.
type AdminAPIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// EventsConfig configures the optional NATS event bus.
type EventsConfig struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// CacheConfig configures the optional Redis resolver-report cache.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ReportsConfig configures the optional Postgres startup-report store.
type ReportsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbName"`
	SSLMode  string `yaml:"sslMode"`
}

// Default returns the configuration used when no file is supplied: the
// admin API on localhost only, every optional backing service
// disabled, a one-second tick.
func Default() Config {
	return Config{
		Platform:     "linux",
		TickInterval: time.Second,
		AdminAPI:     AdminAPIConfig{Enabled: true, Addr: "127.0.0.1:8090"},
	}
}

// Load reads and parses a YAML config file, filling in Default()'s
// values for anything the file leaves zero.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("hostconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("hostconfig: parse %s: %w", path, err)
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.AdminAPI.Addr == "" {
		cfg.AdminAPI.Addr = "127.0.0.1:8090"
	}
	return cfg, nil
}
