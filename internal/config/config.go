package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/handover/internal/env"
	"github.com/loykin/handover/internal/logger"
	"github.com/loykin/handover/internal/sched"
	"github.com/spf13/viper"
)

// Defaults applied by Validate when sections leave fields empty.
const (
	DefaultServerListen  = "127.0.0.1:8080"
	DefaultMetricsListen = "127.0.0.1:9090"
	DefaultEchoPort      = 8443
	DefaultEchoMaxGen    = 4
)

// Config represents the top-level TOML structure for the handover daemon.
//
// env, env_files and use_os_env compose extra environment for the next
// generation, on top of what a respawn inherits anyway.
type Config struct {
	Env      []string       `toml:"env" mapstructure:"env"`
	EnvFiles []string       `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv bool           `toml:"use_os_env" mapstructure:"use_os_env"`
	Log      *logger.Config `toml:"log" mapstructure:"log"`
	Restart  RestartConfig  `toml:"restart" mapstructure:"restart"`
	Server   ServerConfig   `toml:"server" mapstructure:"server"`
	Metrics  MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	History  HistoryConfig  `toml:"history" mapstructure:"history"`
	Echo     EchoConfig     `toml:"echo" mapstructure:"echo"`
}

// RestartConfig drives the coordination endpoint and restart policy.
type RestartConfig struct {
	// Enabled defaults to true when absent.
	Enabled      *bool         `toml:"enabled" mapstructure:"enabled"`
	Socket       string        `toml:"socket" mapstructure:"socket"`
	ReadyTimeout time.Duration `toml:"ready_timeout" mapstructure:"ready_timeout"`
	Schedule     string        `toml:"schedule" mapstructure:"schedule"`
}

// EndpointEnabled resolves the optional flag with its default.
func (r RestartConfig) EndpointEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// ServerConfig drives the admin HTTP plane.
type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	// AuthTokenHash is a bcrypt hash; requests must carry the matching
	// bearer token. Empty disables auth.
	AuthTokenHash string     `toml:"auth_token_hash" mapstructure:"auth_token_hash"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig enables TLS on the admin listener. Certificates come either
// from explicit cert/key files or from Dir; with AutoGenerate a
// self-signed pair (plus CA) is written to Dir when missing.
type TLSConfig struct {
	Enabled      bool   `toml:"enabled" mapstructure:"enabled"`
	CertFile     string `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string `toml:"key_file" mapstructure:"key_file"`
	Dir          string `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool   `toml:"auto_generate" mapstructure:"auto_generate"`
	// MinVersion/MaxVersion accept "1.2" or "1.3"; both default to 1.3.
	MinVersion string `toml:"min_version" mapstructure:"min_version"`
	MaxVersion string `toml:"max_version" mapstructure:"max_version"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig selects a restart event sink by DSN. Empty disables
// history export.
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// EchoConfig drives the built-in demo service: a TCP greeter whose
// listening port advances with each generation.
type EchoConfig struct {
	Port           int    `toml:"port" mapstructure:"port"`
	MaxGenerations int    `toml:"max_generations" mapstructure:"max_generations"`
	Greeting       string `toml:"greeting" mapstructure:"greeting"`
}

// LoadConfig reads a TOML file, expands ${VAR} references in path-like
// fields and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}

	c.Restart.Socket = env.Expand(c.Restart.Socket)
	c.History.DSN = env.Expand(c.History.DSN)
	if c.Log != nil {
		c.Log.Path = env.Expand(c.Log.Path)
	}
	if t := c.Server.TLS; t != nil {
		t.CertFile = env.Expand(t.CertFile)
		t.KeyFile = env.Expand(t.KeyFile)
		t.Dir = env.Expand(t.Dir)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate applies defaults and rejects inconsistent sections.
func (c *Config) Validate() error {
	if c.Restart.ReadyTimeout < 0 {
		return fmt.Errorf("restart.ready_timeout must not be negative")
	}
	if c.Restart.Schedule != "" {
		if _, err := sched.ParseEvery(c.Restart.Schedule); err != nil {
			return fmt.Errorf("restart.schedule: %w", err)
		}
	}
	if c.Server.Enabled && c.Server.Listen == "" {
		c.Server.Listen = DefaultServerListen
	}
	if t := c.Server.TLS; t != nil && t.Enabled {
		hasFiles := t.CertFile != "" && t.KeyFile != ""
		if !hasFiles && t.Dir == "" {
			return fmt.Errorf("server.tls: set cert_file and key_file, or dir")
		}
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = DefaultMetricsListen
	}
	if c.Echo.Port == 0 {
		c.Echo.Port = DefaultEchoPort
	}
	if c.Echo.Port < 1 || c.Echo.Port > 65535 {
		return fmt.Errorf("echo.port %d out of range", c.Echo.Port)
	}
	if c.Echo.MaxGenerations == 0 {
		c.Echo.MaxGenerations = DefaultEchoMaxGen
	}
	if c.Echo.MaxGenerations < 1 {
		return fmt.Errorf("echo.max_generations must be >= 1")
	}
	return nil
}

// LoadGlobalEnv merges env from config: env_files contents, the
// top-level env list, and optionally the OS env when use_os_env is set.
// Precedence: OS env (when enabled) provides base; then file vars; then
// the env list overrides last.
func LoadGlobalEnv(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	m := make(map[string]string)
	if c.UseOSEnv {
		for _, kv := range os.Environ() {
			if i := strings.IndexByte(kv, '='); i >= 0 {
				m[kv[:i]] = kv[i+1:]
			}
		}
	}
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return nil, err
		}
		for k, val := range pairs {
			m[k] = val
		}
	}
	for _, kv := range c.Env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	out := make([]string, 0, len(m))
	for k, val := range m {
		out = append(out, k+"="+val)
	}
	return out, nil
}

// LoadEnvFile parses a simple .env file and returns "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses KEY=VALUE lines (no export, no quotes). Lines
// starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
