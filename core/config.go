package core

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultAPIBaseURL      = "https://slack.com/api"
	DefaultAuthorizeURL    = "https://slack.com/oauth/authorize"
	DefaultHTTPAddr        = ":8080"
	DefaultStoreDriver     = "sqlite3"
	DefaultDedupeTTL       = 10 * time.Minute
	DefaultAPITimeout      = 10 * time.Second
	DefaultAPIMaxRetries   = 3
	DefaultTenantCacheTTL  = time.Minute
	defaultServiceName     = "turns"
	defaultStoreDSN        = "file:turns.db?cache=shared&_foreign_keys=on"
	defaultRequestBodySize = 1 << 20
)

type APIConfig struct {
	BaseURL    string        `koanf:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `koanf:"timeout" mapstructure:"timeout"`
	MaxRetries int           `koanf:"max_retries" mapstructure:"max_retries"`
}

type OAuthConfig struct {
	ClientID        string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret    string `koanf:"client_secret" mapstructure:"client_secret"`
	Scopes          string `koanf:"scopes" mapstructure:"scopes"`
	AuthorizeURL    string `koanf:"authorize_url" mapstructure:"authorize_url"`
	InstallRedirect string `koanf:"install_redirect" mapstructure:"install_redirect"`
}

type StoreConfig struct {
	Driver   string        `koanf:"driver" mapstructure:"driver"`
	DSN      string        `koanf:"dsn" mapstructure:"dsn"`
	CacheTTL time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
	Debug    bool          `koanf:"debug" mapstructure:"debug"`
	// SecretKey seals tenant auth at rest when set.
	SecretKey string `koanf:"secret_key" mapstructure:"secret_key"`
}

type HTTPConfig struct {
	Addr         string `koanf:"addr" mapstructure:"addr"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type DedupeConfig struct {
	TTL time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type Config struct {
	ServiceName       string       `koanf:"service_name" mapstructure:"service_name"`
	VerificationToken string       `koanf:"verification_token" mapstructure:"verification_token"`
	IgnoreBots        bool         `koanf:"ignore_bots" mapstructure:"ignore_bots"`
	API               APIConfig    `koanf:"api" mapstructure:"api"`
	OAuth             OAuthConfig  `koanf:"oauth" mapstructure:"oauth"`
	Store             StoreConfig  `koanf:"store" mapstructure:"store"`
	HTTP              HTTPConfig   `koanf:"http" mapstructure:"http"`
	Dedupe            DedupeConfig `koanf:"dedupe" mapstructure:"dedupe"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		IgnoreBots:  true,
		API: APIConfig{
			BaseURL:    DefaultAPIBaseURL,
			Timeout:    DefaultAPITimeout,
			MaxRetries: DefaultAPIMaxRetries,
		},
		OAuth: OAuthConfig{
			AuthorizeURL: DefaultAuthorizeURL,
		},
		Store: StoreConfig{
			Driver:   DefaultStoreDriver,
			DSN:      defaultStoreDSN,
			CacheTTL: DefaultTenantCacheTTL,
		},
		HTTP: HTTPConfig{
			Addr:         DefaultHTTPAddr,
			MaxBodyBytes: defaultRequestBodySize,
		},
		Dedupe: DedupeConfig{TTL: DefaultDedupeTTL},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if _, err := url.Parse(strings.TrimSpace(c.API.BaseURL)); err != nil || strings.TrimSpace(c.API.BaseURL) == "" {
		return fmt.Errorf("core: api.base_url is invalid")
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("core: api.timeout must not be negative")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("core: api.max_retries must not be negative")
	}
	switch strings.TrimSpace(strings.ToLower(c.Store.Driver)) {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("core: store.driver %q is invalid", c.Store.Driver)
	}
	if c.Dedupe.TTL < 0 {
		return fmt.Errorf("core: dedupe.ttl must not be negative")
	}
	return nil
}
