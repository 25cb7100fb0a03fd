// internal/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	BackendGitHub = "github"
	BackendLocal  = "local"
)

type Config struct {
	GitHub struct {
		BaseURL        string `json:"base_url"`
		User           string `json:"user"`
		Token          string `json:"token"`
		TimeoutSeconds int    `json:"timeout_seconds"`
		ReposPerPage   int    `json:"repos_per_page"`
	} `json:"github"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	Cache struct {
		Size int `json:"size"`
	} `json:"cache"`

	Commit struct {
		DefaultBranch   string `json:"default_branch"`
		RetryOnConflict bool   `json:"retry_on_conflict"`
		VerifyBase      bool   `json:"verify_base"`
	} `json:"commit"`

	Backend string `json:"backend"` // github, local
	Local   struct {
		Root string `json:"root"`
	} `json:"local"`

	LogLevel string `json:"log_level"` // debug, info, warn, error
}

// Default returns a configuration usable without any file on disk.
func Default() *Config {
	var cfg Config
	cfg.GitHub.BaseURL = "https://api.github.com"
	cfg.GitHub.TimeoutSeconds = 10
	cfg.GitHub.ReposPerPage = 100
	cfg.Database.Path = filepath.Join(stateDir(), "db")
	cfg.Cache.Size = 512
	cfg.Commit.DefaultBranch = "main"
	cfg.Backend = BackendGitHub
	cfg.Local.Root = filepath.Join(stateDir(), "repos")
	cfg.LogLevel = "warn"
	return &cfg
}

// DefaultPath is where Load looks when no explicit path is given.
func DefaultPath() string {
	if p := os.Getenv("GHOS_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(stateDir(), "config.json")
}

func stateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "ghos")
	}
	return ".ghos"
}

// Load reads path over the defaults. A missing file is not an error.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	config := Default()

	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
	}

	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GHOS_USER"); v != "" {
		c.GitHub.User = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("GHOS_TOKEN"); v != "" {
		c.GitHub.Token = v
	}
	if v := os.Getenv("GHOS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGitHub, BackendLocal:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.GitHub.TimeoutSeconds <= 0 {
		return fmt.Errorf("github.timeout_seconds must be positive")
	}
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache.size must be positive")
	}
	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.GitHub.TimeoutSeconds) * time.Second
}
