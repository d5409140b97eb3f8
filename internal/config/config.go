package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	Username       string `toml:"username"`
	DeviceName     string `toml:"device_name"`
	// GatewayAddr is the gRPC target of the chat backend.
	GatewayAddr string `toml:"gateway_addr"`
	// ConstrainedUI selects the smaller thread page sizes and turns desktop
	// notifications off.
	ConstrainedUI bool   `toml:"constrained_ui"`
	DownloadDir   string `toml:"download_dir"`
	// LogLevel is a zap level name; empty means info.
	LogLevel string `toml:"log_level"`
}

// DefaultGatewayAddr is used when gateway_addr is unset.
const DefaultGatewayAddr = "unix:///run/chatsync/gateway.sock"

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault is Load with a missing file treated as an empty config.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return cfg, err
}

// Gateway returns the configured backend target or the default one.
func (c *Config) Gateway() string {
	if c.GatewayAddr != "" {
		return c.GatewayAddr
	}
	return DefaultGatewayAddr
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
