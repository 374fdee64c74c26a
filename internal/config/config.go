package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the client-side settings for talking to the ShopSphere
// authentication API. All values come from the environment; defaults match the
// hosted deployment.
type Config struct {
	APIBaseURL      string        `env:"SHOPAUTH_API_URL" envDefault:"http://localhost:5000"`
	TokenFile       string        `env:"SHOPAUTH_TOKEN_FILE" envDefault:"~/.shopauth/token"`
	RefreshInterval time.Duration `env:"SHOPAUTH_REFRESH_INTERVAL" envDefault:"10m"`
	HTTPTimeout     time.Duration `env:"SHOPAUTH_HTTP_TIMEOUT" envDefault:"15s"`
	ApexDomain      string        `env:"SHOPAUTH_APEX_DOMAIN" envDefault:"shop-sphere-auth-hub.vercel.app"`
}

// Load parses the configuration from environment variables and expands the
// token file path to an absolute location.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if strings.HasPrefix(cfg.TokenFile, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("config.Load: resolving home dir: %w", err)
		}
		cfg.TokenFile = filepath.Join(home, cfg.TokenFile[2:])
	}
	return &cfg, nil
}
