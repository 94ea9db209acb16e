// Package config loads launchcore's settings from a YAML file overlaid by
// LAUNCHCORE_-prefixed environment variables; environment values win over
// file values, and built-in defaults fill whatever neither sets.
package config

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds every setting launchcore's components need, independent of
// any single invocation's flags.
type Config struct {
	Root    RootConfig    `mapstructure:"root" yaml:"root"`
	Network NetworkConfig `mapstructure:"network" yaml:"network"`
	Java    JavaConfig    `mapstructure:"java" yaml:"java"`
	Launch  LaunchConfig  `mapstructure:"launch" yaml:"launch"`
}

// RootConfig locates the on-disk game directory tree.
type RootConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// NetworkConfig governs the manifest and download fetchers.
type NetworkConfig struct {
	ManifestURL string `mapstructure:"manifest_url" yaml:"manifest_url"`
	Workers     int    `mapstructure:"workers" yaml:"workers"`
	ProxyURL    string `mapstructure:"proxy_url" yaml:"proxy_url"`
}

// JavaConfig locates the JVM a launch should run under.
type JavaConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LaunchConfig sets the default heap sizes a launch uses when a CLI
// invocation doesn't override them.
type LaunchConfig struct {
	MinHeapMB int `mapstructure:"min_heap_mb" yaml:"min_heap_mb"`
	MaxHeapMB int `mapstructure:"max_heap_mb" yaml:"max_heap_mb"`
}

// Load reads launchcore.yaml from the working directory, $HOME, and
// /etc/launchcore, overlaying LAUNCHCORE_-prefixed environment variables.
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("launchcore")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath("/etc/launchcore")

	v.SetEnvPrefix("LAUNCHCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.Java.Path == "" {
		cfg.Java.Path = os.Getenv("LAUNCHCORE_JAVA_PATH")
	}

	return &cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as needed.
// It exists so `launchcore config init` can materialize the effective
// (defaults-plus-overrides) settings as a starting launchcore.yaml a user
// can then hand-edit.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root.dir", defaultRootDir())
	v.SetDefault("network.manifest_url", "https://launchermeta.mojang.com/mc/game/version_manifest_v2.json")
	v.SetDefault("network.workers", 8)
	v.SetDefault("network.proxy_url", "")
	v.SetDefault("java.path", "")
	v.SetDefault("launch.min_heap_mb", 0)
	v.SetDefault("launch.max_heap_mb", 2048)
}

func defaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".launchcore"
	}
	return home + string(os.PathSeparator) + ".launchcore"
}

// ProxyFunc returns the http.Transport.Proxy function to use: the
// explicitly configured URL when set, otherwise whatever HTTP_PROXY,
// HTTPS_PROXY, and NO_PROXY dictate.
func (c NetworkConfig) ProxyFunc() func(*http.Request) (*url.URL, error) {
	if c.ProxyURL == "" {
		return http.ProxyFromEnvironment
	}
	fixed, err := url.Parse(c.ProxyURL)
	if err != nil {
		return http.ProxyFromEnvironment
	}
	return http.ProxyURL(fixed)
}
