// Package config implements fedsched's dotted-key configuration surface:
// a bundled read-only default (config/resources/config.yaml, embedded)
// merged with an optional user override file, applied in that precedence
// order. Viper's native dot-delimited key support covers the two-tier
// merge without any hand-rolled key-splitting.
package config

import (
	"bytes"
	"embed"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

//go:embed resources/config.yaml
var defaultConfigFS embed.FS

const defaultConfigPath = "resources/config.yaml"

// Config holds the merged defaults+overrides view used throughout the
// scheduler. It is an instance, not a package-level singleton —
// constructed once per Engine.
type Config struct {
	v *viper.Viper
}

// Load builds a Config from the bundled defaults, optionally merged with
// path (a user override file). An empty path loads defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaultBytes, err := defaultConfigFS.ReadFile(defaultConfigPath)
	if err != nil {
		return nil, errors.Wrap(err, "config: read bundled default config")
	}
	if err := v.ReadConfig(bytes.NewReader(defaultBytes)); err != nil {
		return nil, errors.Wrap(err, "config: parse bundled default config")
	}

	if path != "" {
		overrideBytes, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "config: read override file %s", path)
		}
		ov := viper.New()
		ov.SetConfigType("yaml")
		if err := ov.ReadConfig(bytes.NewReader(overrideBytes)); err != nil {
			return nil, errors.Wrapf(err, "config: parse override file %s", path)
		}
		for _, key := range ov.AllKeys() {
			v.Set(key, ov.Get(key))
		}
	}

	c := &Config{v: v}
	if wd := c.GetString("workdir"); wd != "" {
		abs, err := filepath.Abs(wd)
		if err == nil {
			c.Set("workdir", abs)
		}
	}
	return c, nil
}

// Get returns the raw value at a dotted key, or nil if unset.
func (c *Config) Get(key string) any { return c.v.Get(key) }

// GetString returns the string value at a dotted key.
func (c *Config) GetString(key string) string { return c.v.GetString(key) }

// GetInt returns the int value at a dotted key.
func (c *Config) GetInt(key string) int { return c.v.GetInt(key) }

// GetFloat64 returns the float64 value at a dotted key.
func (c *Config) GetFloat64(key string) float64 { return c.v.GetFloat64(key) }

// GetBool returns the bool value at a dotted key.
func (c *Config) GetBool(key string) bool { return c.v.GetBool(key) }

// Set overrides a key at run time, an escape hatch for test setup and
// dynamic tuning.
func (c *Config) Set(key string, value any) { c.v.Set(key, value) }

// GenerateConfig copies the bundled default config.yaml to path (or
// "config.yaml" if path is empty), mirroring Config.generate_config.
func GenerateConfig(path string) error {
	if path == "" {
		path = "config.yaml"
	}
	data, err := defaultConfigFS.ReadFile(defaultConfigPath)
	if err != nil {
		return errors.Wrap(err, "config: read bundled default config")
	}
	return os.WriteFile(path, data, 0o644)
}
