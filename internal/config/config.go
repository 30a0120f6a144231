// Package config loads and validates process configuration. The resulting
// Config is constructed once in main and passed to its consumers; no package
// reads the environment on its own.
package config

import "time"

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Auth    AuthConfig    `koanf:"auth"`
	Storage StorageConfig `koanf:"storage"`
	Log     LogConfig     `koanf:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	ListenAddr        string        `koanf:"listen_addr"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
	RateLimitPerSec   int           `koanf:"rate_limit_per_sec"`
	RateLimitBurst    int           `koanf:"rate_limit_burst"`
}

// AuthConfig holds token issuance settings. The signing secret is shared by
// the whole trust domain and is read-only after startup.
type AuthConfig struct {
	SigningSecret string        `koanf:"signing_secret"`
	Issuer        string        `koanf:"issuer"`
	AccessTTL     time.Duration `koanf:"access_ttl"`
	RefreshTTL    time.Duration `koanf:"refresh_ttl"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	DSN           string `koanf:"dsn"`
	MigrationsDir string `koanf:"migrations_dir"`
	SeedsDir      string `koanf:"seeds_dir"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration baseline overridden by file and
// environment sources.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:        ":8080",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxBodyBytes:      1 << 20,
			RateLimitPerSec:   50,
			RateLimitBurst:    100,
		},
		Auth: AuthConfig{
			Issuer:     "storegate",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Storage: StorageConfig{
			MigrationsDir: "migrations",
			SeedsDir:      "seeds",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
