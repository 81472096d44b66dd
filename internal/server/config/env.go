package config

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/stellarkeeper/internal/flagx"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// parseEnv loads the optional -env file into the process environment
// (existing variables win) and then decodes STELLAR_* variables into cfg.
// Unset variables leave the current value alone.
func parseEnv(cfg *Config, args []string) error {
	if path := flagx.EnvFilePath(args); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("decode environment: %w", err)
	}
	return nil
}
