package template

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
)

// ProfileType selects which starter configuration to generate
type ProfileType string

const (
	TypeMinimal   ProfileType = "minimal"
	TypeBasic     ProfileType = "basic"
	TypeDaemon    ProfileType = "daemon"
	TypeService   ProfileType = "service"
	TypeScheduled ProfileType = "scheduled"
	TypeCron      ProfileType = "cron"
	TypeFull      ProfileType = "full"
	TypeAll       ProfileType = "all"
)

// ConfigTemplate is a starter daemon configuration. Durations are TOML
// strings so the generated file stays human-editable.
type ConfigTemplate struct {
	Log     *LogConfig     `toml:"log,omitempty"`
	Restart *RestartConfig `toml:"restart,omitempty"`
	Server  *ServerConfig  `toml:"server,omitempty"`
	Metrics *MetricsConfig `toml:"metrics,omitempty"`
	History *HistoryConfig `toml:"history,omitempty"`
	Echo    *EchoConfig    `toml:"echo,omitempty"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `toml:"level"`
	Path       string `toml:"path,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb,omitempty"`
	MaxBackups int    `toml:"max_backups,omitempty"`
	Color      bool   `toml:"color,omitempty"`
}

// RestartConfig represents the coordination endpoint configuration
type RestartConfig struct {
	Enabled      bool   `toml:"enabled"`
	Socket       string `toml:"socket"`
	ReadyTimeout string `toml:"ready_timeout,omitempty"`
	Schedule     string `toml:"schedule,omitempty"`
}

// ServerConfig represents the admin HTTP API configuration
type ServerConfig struct {
	Enabled  bool       `toml:"enabled"`
	Listen   string     `toml:"listen"`
	BasePath string     `toml:"base_path,omitempty"`
	TLS      *TLSConfig `toml:"tls,omitempty"`
}

// TLSConfig represents TLS settings for the admin listener
type TLSConfig struct {
	Enabled      bool   `toml:"enabled"`
	Dir          string `toml:"dir"`
	AutoGenerate bool   `toml:"auto_generate"`
}

// MetricsConfig represents the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// HistoryConfig represents restart-history persistence configuration
type HistoryConfig struct {
	DSN string `toml:"dsn"`
}

// EchoConfig represents the built-in demo echo service configuration
type EchoConfig struct {
	Port           int    `toml:"port"`
	MaxGenerations int    `toml:"max_generations,omitempty"`
	Greeting       string `toml:"greeting,omitempty"`
}

// Generator provides template generation functionality
type Generator struct{}

// NewGenerator creates a new template generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a configuration template for the given profile. The
// name seeds socket paths, log directories and database files.
func (g *Generator) Generate(profile ProfileType, name string) (*ConfigTemplate, error) {
	switch profile {
	case TypeMinimal, TypeBasic:
		return g.generateMinimalTemplate(name), nil
	case TypeDaemon, TypeService:
		return g.generateDaemonTemplate(name), nil
	case TypeScheduled, TypeCron:
		return g.generateScheduledTemplate(name), nil
	case TypeFull, TypeAll:
		return g.generateFullTemplate(name), nil
	default:
		return nil, fmt.Errorf("unknown template type: %s (supported: minimal, daemon, scheduled, full)", profile)
	}
}

// GenerateTOML renders the template as a TOML document.
func (g *Generator) GenerateTOML(profile ProfileType, name string) ([]byte, error) {
	template, err := g.Generate(profile, name)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(template); err != nil {
		return nil, fmt.Errorf("failed to marshal template: %w", err)
	}
	return buf.Bytes(), nil
}

// GetSupportedTypes returns a list of all supported template types
func (g *Generator) GetSupportedTypes() []string {
	return []string{
		string(TypeMinimal),
		string(TypeDaemon),
		string(TypeScheduled),
		string(TypeFull),
	}
}

// Helper functions to create specific templates

func (g *Generator) generateMinimalTemplate(name string) *ConfigTemplate {
	return &ConfigTemplate{
		Restart: &RestartConfig{
			Enabled: true,
			Socket:  "/tmp/" + name + ".sock",
		},
	}
}

func (g *Generator) generateDaemonTemplate(name string) *ConfigTemplate {
	return &ConfigTemplate{
		Log: &LogConfig{
			Level:      "info",
			Path:       "/var/log/" + name + "/" + name + ".log",
			MaxSizeMB:  50,
			MaxBackups: 5,
		},
		Restart: &RestartConfig{
			Enabled:      true,
			Socket:       "/tmp/" + name + ".sock",
			ReadyTimeout: "30s",
		},
		Server: &ServerConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8080",
		},
		Metrics: &MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9090",
		},
	}
}

func (g *Generator) generateScheduledTemplate(name string) *ConfigTemplate {
	t := g.generateDaemonTemplate(name)
	t.Restart.Schedule = "@every 24h"
	return t
}

func (g *Generator) generateFullTemplate(name string) *ConfigTemplate {
	t := g.generateDaemonTemplate(name)
	t.Server.TLS = &TLSConfig{
		Enabled:      false,
		Dir:          "/var/lib/" + name + "/tls",
		AutoGenerate: true,
	}
	t.History = &HistoryConfig{
		DSN: "/var/lib/" + name + "/history.db",
	}
	t.Echo = &EchoConfig{
		Port:           8443,
		MaxGenerations: 4,
		Greeting:       "hello from " + name,
	}
	return t
}
