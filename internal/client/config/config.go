package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/stellarkeeper/internal/filex"
)

// Config holds walletctl settings.
type Config struct {
	ServerEndpointAddr string
	RequestTimeout     time.Duration
	// SessionFile keeps the token pair between invocations. Empty means
	// ~/.stellarkeeper/session.json.
	SessionFile string
}

var userHomeDir = os.UserHomeDir

// LoadDefaults populates c with local development defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.RequestTimeout = 90 * time.Second
}

// SessionPath returns the file holding the token pair. Without an explicit
// SessionFile it creates ~/.stellarkeeper and points inside it.
func (c *Config) SessionPath() (string, error) {
	if c.SessionFile != "" {
		return c.SessionFile, nil
	}
	home, err := userHomeDir()
	if err != nil {
		return "", err
	}
	dir, err := filex.EnsureSubdDir(home, ".stellarkeeper")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "session.json"), nil
}

// LoadConfig applies defaults and then the JSON file at path, if any.
// Command-line flags are applied by the caller on top.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJSON(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}
