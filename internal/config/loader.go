package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "STOREGATE_"

// Load builds the configuration with strict priority: environment variables
// over an optional YAML file over built-in defaults. Passing an empty path
// looks for config.yaml in the working directory.
func Load(configFile string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if configFile == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			configFile = "config.yaml"
		}
	}
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", configFile, err)
		}
	}

	// Double underscore separates nesting levels so leaf keys keep their
	// single underscores: STOREGATE_AUTH__SIGNING_SECRET -> auth.signing_secret.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.ListenAddr == "" {
		return errors.New("config: server.listen_addr is required")
	}
	if strings.TrimSpace(cfg.Auth.SigningSecret) == "" {
		return errors.New("config: auth.signing_secret is required")
	}
	if cfg.Auth.AccessTTL <= 0 || cfg.Auth.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if cfg.Storage.DSN == "" {
		return errors.New("config: storage.dsn is required")
	}
	return nil
}
