// Package config loads the exapp command configuration from a YAML file,
// EXAPP_* environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/exceptionaljs/exapp"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. EXAPP_LOGGING_LEVEL=debug.
const EnvPrefix = "EXAPP"

// Config is the exapp command configuration.
//
// Sources in order of precedence:
//  1. Environment variables (EXAPP_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Name is reported in logs, metrics and traces.
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Modules lists the modules to start; "*" starts every registered module.
	Modules []string `mapstructure:"modules" yaml:"modules" validate:"min=1,dive,required"`

	// StopOnFail stops already started modules when a later one fails to start.
	StopOnFail bool `mapstructure:"stop_on_fail" yaml:"stop_on_fail"`

	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat" yaml:"heartbeat"`

	// Settings holds per-module sections handed to modules through the App.
	Settings map[string]map[string]any `mapstructure:"settings" yaml:"settings,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=trace silly debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// HTTPConfig configures the builtin http module.
type HTTPConfig struct {
	Address string `mapstructure:"address" yaml:"address" validate:"hostname_port"`
}

// HeartbeatConfig configures the builtin heartbeat module.
type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Name:    exapp.DefaultName,
		Modules: []string{exapp.Wildcard},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Address: "127.0.0.1:9090",
		},
		Heartbeat: HeartbeatConfig{
			Interval: 30 * time.Second,
		},
	}
}

// Load reads configuration from path, the environment and defaults, then
// validates it. An empty path or a missing file falls back to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	def := Default()
	v.SetDefault("name", def.Name)
	v.SetDefault("modules", def.Modules)
	v.SetDefault("stop_on_fail", def.StopOnFail)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("http.address", def.HTTP.Address)
	v.SetDefault("heartbeat.interval", def.Heartbeat.Interval)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			fields := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid fields: %s: %w", strings.Join(fields, ", "), err)
		}
		return err
	}
	return nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// AppConfig converts the module settings into the App's configuration.
func (c *Config) AppConfig() exapp.Config {
	out := make(exapp.Config, len(c.Settings))
	for name, section := range c.Settings {
		out[name] = section
	}
	return out
}
