// Package config is used to load the configuration file
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Database drivers
const (
	DriverSqlite   = "sqlite"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type installer struct {
	UID int `json:"uid" yaml:"uid"`
	GID int `json:"gid" yaml:"gid"`
}

// Config is the configuration struct
type Config struct {
	Database    string        `json:"database" yaml:"database"`
	Driver      string        `json:"driver" yaml:"driver"`
	TeamID      string        `json:"team-id" yaml:"team-id" mapstructure:"team-id"`
	Substrate   string        `json:"substrate" yaml:"substrate,omitempty"`
	CTBypass    string        `json:"ct-bypass" yaml:"ct-bypass,omitempty" mapstructure:"ct-bypass"`
	MinOS       string        `json:"min-os" yaml:"min-os" mapstructure:"min-os"`
	KillTimeout time.Duration `json:"kill-timeout" yaml:"kill-timeout" mapstructure:"kill-timeout"`
	Installer   installer     `json:"installer" yaml:"installer"`
}

func (c *Config) verify() error {
	if c.Driver == DriverPostgres && c.Database == "" {
		return fmt.Errorf("config: the postgres driver needs a database url")
	}
	if c.Database == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: failed to get user home directory: %v", err)
		}
		c.Database = filepath.Join(home, ".config", "trollfools", "trollfools.db")
	}
	switch c.Driver {
	case "":
		c.Driver = DriverSqlite
	case DriverSqlite, DriverMemory, DriverPostgres:
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Driver)
	}
	if c.MinOS == "" {
		c.MinOS = DefaultMinOS
	}
	if c.KillTimeout == 0 {
		c.KillTimeout = 5 * time.Second
	} else if c.KillTimeout < 0 {
		return fmt.Errorf("config: kill-timeout must be positive")
	}
	if c.Installer.UID == 0 && c.Installer.GID == 0 {
		c.Installer.UID = InstallerUID
		c.Installer.GID = InstallerGID
	} else if c.Installer.UID < 0 || c.Installer.GID < 0 {
		return fmt.Errorf("config: installer uid/gid must not be negative")
	}
	if c.Substrate != "" {
		if info, err := os.Stat(c.Substrate); err != nil {
			return fmt.Errorf("config: substrate framework %s: %w", c.Substrate, err)
		} else if !info.IsDir() {
			return fmt.Errorf("config: substrate %s is not a framework directory", c.Substrate)
		}
	}
	return nil
}

// Default returns a verified configuration with every field at its default.
func Default() (*Config, error) {
	c := &Config{}
	if err := c.verify(); err != nil {
		return nil, err
	}
	return c, nil
}

// expandEnvHook expands $VAR and ${VAR} in string settings.
func expandEnvHook(from, to reflect.Kind, data any) (any, error) {
	if from != reflect.String || to != reflect.String {
		return data, nil
	}
	return os.ExpandEnv(data.(string)), nil
}

// LoadConfig loads the configuration file
func LoadConfig() (*Config, error) {
	var c *Config

	if err := viper.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.DecodeHookFuncKind(expandEnvHook),
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if c == nil {
		c = &Config{}
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return c, nil
}
