// Package config loads settings from defaults, an optional YAML file and the
// environment, in that order of precedence (environment wins).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const PathEnvVar = "CONFIG_PATH"

var DefaultPaths = []string{"config.yaml", "config.yml", "/etc/cinegate/config.yaml"}

const (
	DriverScylla   = "scylla"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Auth     AuthConfig     `koanf:"auth"`
	Store    StoreConfig    `koanf:"store"`
	Scylla   ScyllaConfig   `koanf:"scylla"`
	Postgres PostgresConfig `koanf:"postgres"`
	Workflow WorkflowConfig `koanf:"workflow"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Port            string        `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit"`
	RateWindow      time.Duration `koanf:"rate_window"`
}

type AuthConfig struct {
	AppSecret     string        `koanf:"app_secret"`
	AdminEmail    string        `koanf:"admin_email"`
	AdminPassword string        `koanf:"admin_password"`
	OpsToken      string        `koanf:"ops_token"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
}

type StoreConfig struct {
	Driver string `koanf:"driver"`
}

type ScyllaConfig struct {
	Hosts       []string `koanf:"hosts"`
	Port        int      `koanf:"port"`
	Keyspace    string   `koanf:"keyspace"`
	Consistency string   `koanf:"consistency"`
	Replication int      `koanf:"rf"`
}

type PostgresConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
}

type WorkflowConfig struct {
	EntitlementRetries int           `koanf:"entitlement_retries"`
	RetryInterval      time.Duration `koanf:"retry_interval"`
	ReconcileInterval  time.Duration `koanf:"reconcile_interval"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       30,
			RateWindow:      time.Minute,
		},
		Auth: AuthConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Store: StoreConfig{Driver: DriverScylla},
		Scylla: ScyllaConfig{
			Port:        9042,
			Keyspace:    "cinegate",
			Consistency: "QUORUM",
			Replication: 3,
		},
		Postgres: PostgresConfig{MaxConns: 10},
		Workflow: WorkflowConfig{
			EntitlementRetries: 4,
			RetryInterval:      100 * time.Millisecond,
			ReconcileInterval:  10 * time.Minute,
		},
		Log: LogConfig{Level: "info", Pretty: true},
	}
}

// envKeys maps the environment names used by the deployment files to koanf
// paths. Anything not listed falls through to the generic SECTION_KEY form;
// other variables are skipped.
var envKeys = map[string]string{
	"port":               "server.port",
	"api_port":           "server.port",
	"app_secret":         "auth.app_secret",
	"admin_email":        "auth.admin_email",
	"admin_password":     "auth.admin_password",
	"api_token":          "auth.ops_token",
	"store_driver":       "store.driver",
	"scylla_hosts":       "scylla.hosts",
	"scylla_port":        "scylla.port",
	"scylla_keyspace":    "scylla.keyspace",
	"scylla_consistency": "scylla.consistency",
	"scylla_rf":          "scylla.rf",
	"db_url":             "postgres.url",
	"log_level":          "log.level",
	"log_pretty":         "log.pretty",
}

var sections = []string{"server", "auth", "store", "scylla", "postgres", "workflow", "log"}

func envTransform(key string) string {
	key = strings.ToLower(key)
	if mapped, ok := envKeys[key]; ok {
		return mapped
	}
	for _, sec := range sections {
		if strings.HasPrefix(key, sec+"_") {
			return sec + "." + strings.TrimPrefix(key, sec+"_")
		}
	}
	return ""
}

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path := findFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	cfg.Scylla.Hosts = splitCSV(cfg.Scylla.Hosts)
	cfg.Server.CORSOrigins = splitCSV(cfg.Server.CORSOrigins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.AppSecret) == "" {
		return fmt.Errorf("APP_SECRET is required")
	}
	switch c.Store.Driver {
	case DriverScylla:
		if len(c.Scylla.Hosts) == 0 {
			return fmt.Errorf("SCYLLA_HOSTS is required for the scylla store")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("DB_URL is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// splitCSV flattens entries that still carry commas, as a list read from a
// single environment variable does.
func splitCSV(in []string) []string {
	out := make([]string, 0, len(in))
	for _, raw := range in {
		for _, p := range strings.Split(raw, ",") {
			if v := strings.TrimSpace(p); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
