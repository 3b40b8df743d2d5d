package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Workspace WorkspaceConfig `koanf:"workspace"`
	State     StateConfig     `koanf:"state"`
	Scope     ScopeConfig     `koanf:"scope"`
	Sync      SyncConfig      `koanf:"sync"`
	Policies  PoliciesConfig  `koanf:"policies"`
}

type ServerConfig struct {
	BaseURL  string `koanf:"base_url"`
	Timeout  string `koanf:"timeout"`
	LogLevel string `koanf:"log_level"`
}

type WorkspaceConfig struct {
	ID       string `koanf:"id"`
	Provider string `koanf:"provider"`
}

type StateConfig struct {
	Dir          string `koanf:"dir"`
	LockTimeout  string `koanf:"lock_timeout"`
	LockRetry    string `koanf:"lock_retry"`
	LockMaxRetry int    `koanf:"lock_max_retry"`
}

type ScopeConfig struct {
	TTL                  string `koanf:"ttl"`
	ProductsTTL          string `koanf:"products_ttl"`
	ProductsPollInterval string `koanf:"products_poll_interval"`
}

type SyncConfig struct {
	InitialDelay     string `koanf:"initial_delay"`
	PollInterval     string `koanf:"poll_interval"`
	WallClockTimeout string `koanf:"wall_clock_timeout"`
}

type PoliciesConfig struct {
	PageSize int    `koanf:"page_size"`
	Sort     string `koanf:"sort"`
}

const (
	DefaultServerBaseURL        = "http://localhost:8080/api/v1"
	DefaultServerTimeout        = "30s"
	DefaultServerLogLevel       = "info"
	DefaultWorkspaceProvider    = "tiktok-business"
	DefaultStateLockTimeout     = "30s"
	DefaultStateLockRetry       = "100ms"
	DefaultStateLockMaxRetry    = 300
	DefaultScopeTTL             = "24h"
	DefaultScopeProductsTTL     = "10m"
	DefaultProductsPollInterval = "30s"
	DefaultSyncInitialDelay     = "1200ms"
	DefaultSyncPollInterval     = "2s"
	DefaultSyncWallClockTimeout = "3m"
	DefaultPoliciesPageSize     = 20
	DefaultPoliciesSort         = "-updated_at"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.base_url":              DefaultServerBaseURL,
		"server.timeout":               DefaultServerTimeout,
		"server.log_level":             DefaultServerLogLevel,
		"workspace.provider":           DefaultWorkspaceProvider,
		"state.dir":                    filepath.Join(os.Getenv("HOME"), ".gmvctl", "state"),
		"state.lock_timeout":           DefaultStateLockTimeout,
		"state.lock_retry":             DefaultStateLockRetry,
		"state.lock_max_retry":         DefaultStateLockMaxRetry,
		"scope.ttl":                    DefaultScopeTTL,
		"scope.products_ttl":           DefaultScopeProductsTTL,
		"scope.products_poll_interval": DefaultProductsPollInterval,
		"sync.initial_delay":           DefaultSyncInitialDelay,
		"sync.poll_interval":           DefaultSyncPollInterval,
		"sync.wall_clock_timeout":      DefaultSyncWallClockTimeout,
		"policies.page_size":           DefaultPoliciesPageSize,
		"policies.sort":                DefaultPoliciesSort,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".gmvctl", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables
	k.Load(env.Provider("GMVCTL_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GMVCTL_")), "_", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	stateDir, err := expandConfiguredPath(cfg.State.Dir)
	if err != nil {
		return nil, err
	}
	if stateDir != "" {
		cfg.State.Dir = stateDir
	}

	return &cfg, nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}

	expanded := os.ExpandEnv(trimmed)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if expanded == "~" {
			expanded = home
		} else {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~/"))
		}
	}

	return filepath.Clean(expanded), nil
}
