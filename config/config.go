// Package config assembles the service configuration from defaults, an
// optional YAML file, and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigFile        = "BACON_CONFIG"
	envListenAddr        = "LISTEN_ADDR"
	envDebug             = "DEBUG"
	envTemplateRoot      = "TEMPLATE_ROOT"
	envWorkers           = "INSTANTIATE_WORKERS"
	envFocalboardURL     = "FOCALBOARD_URL"
	envFocalboardToken   = "FOCALBOARD_TOKEN"
	envFocalboardTimeout = "FOCALBOARD_TIMEOUT"
	envFocalboardTeamID  = "FOCALBOARD_TEAM_ID"
	envAuthDomain        = "AUTH0_DOMAIN"
	envAuthAudience      = "AUTH0_AUDIENCE"
	envAuthTestMode      = "AUTH0_TEST_MODE"
	envTestJWTSecret     = "TEST_JWT_SECRET"
	envJWKSCacheTTL      = "JWKS_CACHE_TTL"
	envRedisConn         = "REDIS_CONNECTION_STRING"
	envDeduperTTL        = "DEDUPER_TTL"
)

// Focalboard configures the board backend client.
type Focalboard struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	TeamID  string        `yaml:"team_id"`
}

// Auth configures JWT validation. In test mode HS256 tokens signed with
// TestSecret are accepted instead of JWKS-backed RS256.
type Auth struct {
	Domain       string        `yaml:"domain"`
	Audience     string        `yaml:"audience"`
	TestMode     bool          `yaml:"test_mode"`
	TestSecret   string        `yaml:"test_secret"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
}

// JWKSURL returns the JWKS endpoint derived from the auth domain.
func (a Auth) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", a.Domain)
}

// Issuer returns the expected token issuer derived from the auth domain.
func (a Auth) Issuer() string {
	return "https://" + a.Domain + "/"
}

// Redis configures the idempotency deduper.
type Redis struct {
	URL       string        `yaml:"url"`
	DedupeTTL time.Duration `yaml:"dedupe_ttl"`
}

// Config is the full runtime configuration of the service.
type Config struct {
	ListenAddr   string     `yaml:"listen_addr"`
	Debug        bool       `yaml:"debug"`
	TemplateRoot string     `yaml:"template_root"`
	Workers      int        `yaml:"workers"`
	Focalboard   Focalboard `yaml:"focalboard"`
	Auth         Auth       `yaml:"auth"`
	Redis        Redis      `yaml:"redis"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	root := "templates"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".bacon-ai", "templates")
	}
	return Config{
		ListenAddr:   ":8080",
		TemplateRoot: root,
		Workers:      4,
		Focalboard: Focalboard{
			URL:     "http://localhost:8088",
			Timeout: 30 * time.Second,
			TeamID:  "0",
		},
		Auth: Auth{
			JWKSCacheTTL: 15 * time.Minute,
		},
		Redis: Redis{
			DedupeTTL: 24 * time.Hour,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (or
// BACON_CONFIG when path is empty; a missing file is not an error), then
// environment variable overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(envConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return cfg, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	envString(envListenAddr, &c.ListenAddr)
	if err = envBool(envDebug, &c.Debug); err != nil {
		return err
	}
	envString(envTemplateRoot, &c.TemplateRoot)
	if err = envInt(envWorkers, &c.Workers); err != nil {
		return err
	}

	envString(envFocalboardURL, &c.Focalboard.URL)
	envString(envFocalboardToken, &c.Focalboard.Token)
	if err = envDuration(envFocalboardTimeout, &c.Focalboard.Timeout); err != nil {
		return err
	}
	envString(envFocalboardTeamID, &c.Focalboard.TeamID)

	envString(envAuthDomain, &c.Auth.Domain)
	envString(envAuthAudience, &c.Auth.Audience)
	if v := os.Getenv(envAuthTestMode); v != "" {
		c.Auth.TestMode = v == "1"
	}
	envString(envTestJWTSecret, &c.Auth.TestSecret)
	if err = envDuration(envJWKSCacheTTL, &c.Auth.JWKSCacheTTL); err != nil {
		return err
	}

	envString(envRedisConn, &c.Redis.URL)
	if err = envDuration(envDeduperTTL, &c.Redis.DedupeTTL); err != nil {
		return err
	}
	return nil
}

func (c *Config) validate() error {
	if c.Focalboard.URL == "" {
		return fmt.Errorf("config: focalboard url is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be greater than zero")
	}
	if c.Focalboard.Timeout <= 0 {
		return fmt.Errorf("config: focalboard timeout must be positive")
	}
	if c.Auth.TestMode {
		if c.Auth.TestSecret == "" {
			return fmt.Errorf("config: test secret is required in auth test mode")
		}
	} else if c.Auth.Domain == "" || c.Auth.Audience == "" {
		return fmt.Errorf("config: auth domain and audience are required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("config: redis url is required")
	}
	if c.Redis.DedupeTTL <= 0 {
		return fmt.Errorf("config: dedupe ttl must be positive")
	}
	return nil
}

func envString(name string, out *string) {
	if v := os.Getenv(name); v != "" {
		*out = v
	}
}

func envBool(name string, out *bool) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", name, err)
	}
	*out = parsed
	return nil
}

func envInt(name string, out *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", name, err)
	}
	*out = parsed
	return nil
}

func envDuration(name string, out *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", name, err)
	}
	*out = parsed
	return nil
}
