// Package config loads optional YAML defaults for the server and
// client binaries, in the style of wing.go's yaml.v3 struct with
// `omitempty` tags: a file that may not exist, in which case every
// field stays at its zero value and command-line flags fill the gaps.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds settings for vsock-shell-server, loaded from the
// file named by --config (if any) and overridable by flags.
type ServerConfig struct {
	Port        uint32 `yaml:"port,omitempty"`
	LogLevel    string `yaml:"log_level,omitempty"`
	Syslog      bool   `yaml:"syslog,omitempty"`
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// ClientConfig holds settings for vsock-shell-client.
type ClientConfig struct {
	CID       uint32 `yaml:"cid,omitempty"`
	Port      uint32 `yaml:"port,omitempty"`
	RemoteDir string `yaml:"remote_dir,omitempty"`
	LocalDir  string `yaml:"local_dir,omitempty"`
	LogLevel  string `yaml:"log_level,omitempty"`
}

// LoadServerConfig reads path into a ServerConfig. A missing file is
// not an error; the caller falls back to flag defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	var c ServerConfig
	err := loadYAML(path, &c)
	return c, err
}

// LoadClientConfig reads path into a ClientConfig. A missing file is
// not an error; the caller falls back to flag defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	var c ClientConfig
	err := loadYAML(path, &c)
	return c, err
}

func loadYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
