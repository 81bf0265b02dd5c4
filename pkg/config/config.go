// Package config loads proximl client settings from the environment and the
// files under the config directory.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/rmax-ai/proximl/pkg/auth"
	"github.com/rmax-ai/proximl/pkg/client"
)

const (
	DefaultDomainSuffix = "proximl.ai"
	defaultConfigDir    = "~/.proximl"

	environmentFile = "environment.json"
	configFile      = "config.json"
	credentialsFile = "credentials.json"
)

// Config holds all client settings. Environment variables win over file values.
type Config struct {
	ConfigDir string `envconfig:"PROXIML_CONFIG_DIR"`

	// Endpoints
	DomainSuffix string `envconfig:"PROXIML_DOMAIN_SUFFIX"`
	APIURL       string `envconfig:"PROXIML_API_URL"`
	WSURL        string `envconfig:"PROXIML_WS_URL"`

	// Project is the active project scope.
	Project string `envconfig:"PROXIML_PROJECT"`

	// Credentials
	User     string `envconfig:"PROXIML_USER"`
	Key      string `envconfig:"PROXIML_KEY"`
	Region   string `envconfig:"PROXIML_REGION"`
	ClientID string `envconfig:"PROXIML_CLIENT_ID"`
	PoolID   string `envconfig:"PROXIML_POOL_ID"`
	IDToken  string `envconfig:"PROXIML_ID_TOKEN"`

	// Dispatcher
	MaxRetries    int     `envconfig:"PROXIML_MAX_RETRIES" default:"3"`
	BackoffFactor float64 `envconfig:"PROXIML_BACKOFF_FACTOR" default:"0.5"`

	// Shared token cache, e.g. redis://localhost:6379/0
	RedisURL string `envconfig:"PROXIML_REDIS_URL"`
	// LogArchive is the SQLite file subscription frames are archived to.
	LogArchive string `envconfig:"PROXIML_LOG_ARCHIVE"`

	LogLevel string `envconfig:"PROXIML_LOG_LEVEL" default:"warn"`
}

type environmentJSON struct {
	DomainSuffix string `json:"domain_suffix"`
	APIURL       string `json:"api_url"`
	WSURL        string `json:"ws_url"`
}

type configJSON struct {
	Project string `json:"project"`
}

type credentialsJSON struct {
	User string `json:"user"`
	Key  string `json:"key"`
}

// Load reads the config directory files, applies PROXIML_* environment
// overrides and fills defaults.
func Load() (*Config, error) {
	dir := os.Getenv("PROXIML_CONFIG_DIR")
	if dir == "" {
		dir = defaultConfigDir
	}
	dir, err := expandHome(dir)
	if err != nil {
		return nil, err
	}

	c := &Config{ConfigDir: dir}

	var env environmentJSON
	if err := readJSON(filepath.Join(dir, environmentFile), &env); err != nil {
		return nil, err
	}
	c.DomainSuffix, c.APIURL, c.WSURL = env.DomainSuffix, env.APIURL, env.WSURL

	var cfg configJSON
	if err := readJSON(filepath.Join(dir, configFile), &cfg); err != nil {
		return nil, err
	}
	c.Project = cfg.Project

	var creds credentialsJSON
	if err := readJSON(filepath.Join(dir, credentialsFile), &creds); err != nil {
		return nil, err
	}
	c.User, c.Key = creds.User, creds.Key

	if err := envconfig.Process("", c); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if c.ConfigDir, err = expandHome(c.ConfigDir); err != nil {
		return nil, err
	}

	if c.DomainSuffix == "" {
		c.DomainSuffix = DefaultDomainSuffix
	}
	if c.APIURL == "" {
		c.APIURL = "api." + c.DomainSuffix
	}
	if c.WSURL == "" {
		c.WSURL = "api-ws." + c.DomainSuffix
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return nil, err
	}
	return c, nil
}

// Client returns the dispatcher settings.
func (c *Config) Client(logger *slog.Logger) client.Config {
	return client.Config{
		APIURL:        c.APIURL,
		WSURL:         c.WSURL,
		Project:       c.Project,
		MaxRetries:    c.MaxRetries,
		BackoffFactor: c.BackoffFactor,
		Logger:        logger,
	}
}

// AuthConfigURL is where the identity pool settings are published.
func (c *Config) AuthConfigURL() string {
	return "https://auth." + c.DomainSuffix + "/prod/configuration"
}

// TokenProvider builds the authentication collaborator. A static id token
// wins; otherwise user/key are exchanged through the identity pool, which is
// discovered when not configured. cache and lock may be nil.
func (c *Config) TokenProvider(ctx context.Context, cache auth.Cache, lock auth.Locker, logger *slog.Logger) (client.TokenProvider, error) {
	if c.IDToken != "" {
		return auth.Static{IDToken: c.IDToken}, nil
	}
	pool := auth.PoolConfig{Region: c.Region, ClientID: c.ClientID, PoolID: c.PoolID}
	if pool.Region == "" || pool.ClientID == "" {
		discovered, err := auth.DiscoverPool(ctx, nil, c.AuthConfigURL())
		if err != nil {
			return nil, err
		}
		if pool.Region == "" {
			pool.Region = discovered.Region
		}
		if pool.ClientID == "" {
			pool.ClientID = discovered.ClientID
		}
		if pool.PoolID == "" {
			pool.PoolID = discovered.PoolID
		}
	}
	return &auth.Cognito{
		Username: c.User,
		Password: c.Key,
		Pool:     pool,
		Cache:    cache,
		Lock:     lock,
		Logger:   logger,
	}, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}

// readJSON decodes path into v. A missing file leaves v untouched.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
