package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "exapp", cfg.Name)
	assert.Equal(t, []string{"*"}, cfg.Modules)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Interval)
	assert.NoError(t, Validate(cfg))
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Name, cfg.Name)
	assert.Equal(t, Default().HTTP.Address, cfg.HTTP.Address)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, cfg.Modules)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exapp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: orders
modules: [http, heartbeat]
stop_on_fail: true
logging:
  level: DEBUG
  format: json
heartbeat:
  interval: 5s
settings:
  heartbeat:
    message: tick
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "orders", cfg.Name)
	assert.Equal(t, []string{"http", "heartbeat"}, cfg.Modules)
	assert.True(t, cfg.StopOnFail)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, "127.0.0.1:9090", cfg.HTTP.Address)
	assert.Equal(t, "tick", cfg.Settings["heartbeat"]["message"])
	assert.Equal(t, map[string]any{"message": "tick"}, cfg.AppConfig()["heartbeat"])
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("EXAPP_NAME", "from-env")
	t.Setenv("EXAPP_LOGGING_LEVEL", "warn")
	t.Setenv("EXAPP_HEARTBEAT_INTERVAL", "2m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2*time.Minute, cfg.Heartbeat.Interval)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Logging.Level (oneof)")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: [unterminated\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"missing name":   func(c *Config) { c.Name = "" },
		"no modules":     func(c *Config) { c.Modules = nil },
		"empty module":   func(c *Config) { c.Modules = []string{""} },
		"bad format":     func(c *Config) { c.Logging.Format = "xml" },
		"bad address":    func(c *Config) { c.HTTP.Address = "nowhere" },
		"zero heartbeat": func(c *Config) { c.Heartbeat.Interval = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
	assert.Error(t, Validate(nil))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "exapp.yaml")
	cfg := Default()
	cfg.Name = "saved"
	cfg.Modules = []string{"heartbeat"}

	require.NoError(t, Save(cfg, path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Name)
	assert.Equal(t, []string{"heartbeat"}, loaded.Modules)
	assert.Equal(t, cfg.Heartbeat.Interval, loaded.Heartbeat.Interval)
}
