// Package config loads csrfclient.Config from the environment and optional config files.
//
// Keys and their environment variables:
//
//	origin          CSRF_ORIGIN          (required)
//	token_path      CSRF_TOKEN_PATH      default /api/v1/auth/csrf-token
//	header_name     CSRF_HEADER_NAME     default X-CSRF-Token
//	max_retries     CSRF_MAX_RETRIES     default 1
//	retry_on_error  CSRF_RETRY_ON_ERROR  default true
//	debug           CSRF_DEBUG           default false
//	config_file     CSRF_CONFIG_FILE     optional YAML, JSON or TOML file
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AmmannChristian/go-csrfx/csrfclient"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "CSRF"

// Keys understood by FromViper.
const (
	KeyOrigin       = "origin"
	KeyTokenPath    = "token_path"
	KeyHeaderName   = "header_name"
	KeyMaxRetries   = "max_retries"
	KeyRetryOnError = "retry_on_error"
	KeyDebug        = "debug"
	KeyConfigFile   = "config_file"
)

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyTokenPath, csrfclient.DefaultTokenPath)
	v.SetDefault(KeyHeaderName, csrfclient.DefaultHeaderName)
	v.SetDefault(KeyMaxRetries, csrfclient.DefaultMaxRetries)
	v.SetDefault(KeyRetryOnError, true)
	v.SetDefault(KeyDebug, false)
}

// New returns a viper instance with defaults and CSRF_* environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration from the environment and, if CSRF_CONFIG_FILE is set,
// from that file. Environment variables take precedence over the file.
func Load() (csrfclient.Config, error) {
	return FromViper(New())
}

// FromViper builds a validated csrfclient.Config from v.
// If v has a config_file value, the file is read first.
func FromViper(v *viper.Viper) (csrfclient.Config, error) {
	if file := v.GetString(KeyConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return csrfclient.Config{}, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg := csrfclient.Config{
		Origin:       strings.TrimSpace(v.GetString(KeyOrigin)),
		TokenPath:    v.GetString(KeyTokenPath),
		HeaderName:   v.GetString(KeyHeaderName),
		MaxRetries:   v.GetInt(KeyMaxRetries),
		RetryOnError: v.GetBool(KeyRetryOnError),
		Debug:        v.GetBool(KeyDebug),
	}

	if err := Validate(cfg); err != nil {
		return csrfclient.Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that csrfclient.New would otherwise silently adjust.
func Validate(cfg csrfclient.Config) error {
	if cfg.Origin == "" {
		return errors.New("config: origin is required (set CSRF_ORIGIN)")
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("config: max_retries must be >= 0, got %d", cfg.MaxRetries)
	}
	return nil
}
