// Package config loads the server's layered configuration: flags override
// environment variables, which override the embedded default YAML, following
// the precedence spf13/viper gives for free.
package config

import (
	"bytes"
	"embed"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

//go:embed defaults.yml
var defaultsFS embed.FS

// Config is the fully-resolved set of settings the server needs to start.
type Config struct {
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	Auth struct {
		JWKSURL      string `mapstructure:"jwks_url"`
		Issuer       string `mapstructure:"issuer"`
		Audience     string `mapstructure:"audience"`
		AudienceMode string `mapstructure:"audience_mode"` // "strict" or "permissive"
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
		TokenURL     string `mapstructure:"token_url"`
		AuthURL      string `mapstructure:"auth_url"`
	} `mapstructure:"auth"`

	Store struct {
		Driver string `mapstructure:"driver"` // "memory", "sqlite", "postgres"
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"store"`

	Broker struct {
		Backend    string `mapstructure:"backend"`     // "inproc" or "redis"
		PeerURL    string `mapstructure:"peer_url"`     // ws(s):// address of a peer relay to dial out to, backend "redis" only
		ListenAddr string `mapstructure:"listen_addr"`  // address this node accepts inbound relay connections on, backend "redis" only
	} `mapstructure:"broker"`

	Queue struct {
		LeaseTimeoutSeconds      int `mapstructure:"lease_timeout_s"`
		WatchPollIntervalSeconds int `mapstructure:"watch_poll_interval_s"`
		WorkerStaleAfterSeconds  int `mapstructure:"worker_stale_after_s"`
		HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_s"`
	} `mapstructure:"queue"`

	SSE struct {
		HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_s"`
	} `mapstructure:"sse"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// Load reads the embedded defaults, then layers in any config file at path
// (if non-empty) and environment variables prefixed A2A_, then unmarshals the
// result. Command-line flags are not read here: a caller applies any flag
// override to the returned Config itself (serve does so for --addr).
func Load(v *viper.Viper, path string) (*Config, error) {
	v.SetConfigType("yml")

	defaults, err := defaultsFS.ReadFile("defaults.yml")
	if err != nil {
		return nil, fmt.Errorf("config: reading embedded defaults: %w", err)
	}
	if err := v.MergeConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("config: merging embedded defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("config: merging %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("a2a")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	return &cfg, nil
}
