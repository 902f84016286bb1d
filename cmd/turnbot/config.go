package main

import (
	"context"
	"strings"

	"github.com/goliatone/go-turns/core"
	"github.com/spf13/viper"
)

const envPrefix = "TURNS"

// viperLoader feeds viper settings (file, TURNS_* env, defaults) into the
// cfgx config provider, typed through viper's getters so env strings arrive
// as durations and ints.
type viperLoader struct {
	v *viper.Viper
}

func (l viperLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.v == nil {
		return map[string]any{}, nil
	}
	v := l.v
	return map[string]any{
		"service_name":       v.GetString("service_name"),
		"verification_token": v.GetString("verification_token"),
		"ignore_bots":        v.GetBool("ignore_bots"),
		"api": map[string]any{
			"base_url":    v.GetString("api.base_url"),
			"timeout":     v.GetDuration("api.timeout"),
			"max_retries": v.GetInt("api.max_retries"),
		},
		"oauth": map[string]any{
			"client_id":        v.GetString("oauth.client_id"),
			"client_secret":    v.GetString("oauth.client_secret"),
			"scopes":           v.GetString("oauth.scopes"),
			"authorize_url":    v.GetString("oauth.authorize_url"),
			"install_redirect": v.GetString("oauth.install_redirect"),
		},
		"store": map[string]any{
			"driver":     v.GetString("store.driver"),
			"dsn":        v.GetString("store.dsn"),
			"cache_ttl":  v.GetDuration("store.cache_ttl"),
			"debug":      v.GetBool("store.debug"),
			"secret_key": v.GetString("store.secret_key"),
		},
		"http": map[string]any{
			"addr":           v.GetString("http.addr"),
			"max_body_bytes": v.GetInt64("http.max_body_bytes"),
		},
		"dedupe": map[string]any{
			"ttl": v.GetDuration("dedupe.ttl"),
		},
	}, nil
}

// newViper registers every config key so TURNS_* env vars reach
// AllSettings even when no config file sets them.
func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := core.DefaultConfig()
	v.SetDefault("service_name", defaults.ServiceName)
	v.SetDefault("verification_token", defaults.VerificationToken)
	v.SetDefault("ignore_bots", defaults.IgnoreBots)
	v.SetDefault("api.base_url", defaults.API.BaseURL)
	v.SetDefault("api.timeout", defaults.API.Timeout)
	v.SetDefault("api.max_retries", defaults.API.MaxRetries)
	v.SetDefault("oauth.client_id", defaults.OAuth.ClientID)
	v.SetDefault("oauth.client_secret", defaults.OAuth.ClientSecret)
	v.SetDefault("oauth.scopes", defaults.OAuth.Scopes)
	v.SetDefault("oauth.authorize_url", defaults.OAuth.AuthorizeURL)
	v.SetDefault("oauth.install_redirect", defaults.OAuth.InstallRedirect)
	v.SetDefault("store.driver", defaults.Store.Driver)
	v.SetDefault("store.dsn", defaults.Store.DSN)
	v.SetDefault("store.cache_ttl", defaults.Store.CacheTTL)
	v.SetDefault("store.debug", defaults.Store.Debug)
	v.SetDefault("store.secret_key", defaults.Store.SecretKey)
	v.SetDefault("http.addr", defaults.HTTP.Addr)
	v.SetDefault("http.max_body_bytes", defaults.HTTP.MaxBodyBytes)
	v.SetDefault("dedupe.ttl", defaults.Dedupe.TTL)

	if configFile = strings.TrimSpace(configFile); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// loadConfig resolves defaults < file/env < runtime flags.
func loadConfig(ctx context.Context, opts *rootOptions) (core.Config, error) {
	v, err := newViper(opts.configFile)
	if err != nil {
		return core.Config{}, err
	}
	runtime := core.Config{
		Store: core.StoreConfig{
			Driver: strings.TrimSpace(opts.driver),
			DSN:    strings.TrimSpace(opts.dsn),
		},
	}
	return core.ResolveConfig(ctx, core.NewCfgxConfigProvider(viperLoader{v: v}), core.GoOptionsResolver{}, runtime)
}
