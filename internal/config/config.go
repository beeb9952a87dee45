package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Caspar describes how to reach the playout engine's AMCP port.
type Caspar struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// Timeouts and intervals are in seconds.
	ConnectTimeout    int `toml:"connect_timeout"`
	RequestTimeout    int `toml:"request_timeout"`
	ReconnectInterval int `toml:"reconnect_interval"`
}

// Channel declares one engine output channel and its effect groups in
// bottom-to-top order.
type Channel struct {
	ID     int      `toml:"id"`
	Groups []string `toml:"groups"`
}

// Media contains configuration for the media database.
type Media struct {
	RefreshOnConnect bool `toml:"refresh_on_connect"`
	// RefreshInterval in seconds; zero disables periodic refreshes.
	RefreshInterval int `toml:"refresh_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// FileLevel gates the JSON log file independently of the console.
	FileLevel string `toml:"file_level"`
}

// Config encapsulates all configuration values for cgmanager.
//
// Configuration sections by subsystem:
//   - Paths: state directory, log directory and API bind address
//   - Caspar: engine address, timeouts and reconnect interval
//   - Channels: engine channels managed at startup and their groups
//   - Media: media database refresh behaviour
//   - Logging: log format and level
type Config struct {
	Paths    Paths     `toml:"paths"`
	Caspar   Caspar    `toml:"caspar"`
	Channels []Channel `toml:"channels"`
	Media    Media     `toml:"media"`
	Logging  Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		// Declared channels replace the default layout.
		cfg.Channels = nil
		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
		if len(cfg.Channels) == 0 {
			cfg.Channels = Default().Channels
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cgmanager.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// CasparAddress returns the engine's host:port.
func (c *Config) CasparAddress() string {
	return net.JoinHostPort(c.Caspar.Host, strconv.Itoa(c.Caspar.Port))
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Caspar.ConnectTimeout) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Caspar.RequestTimeout) * time.Second
}

func (c *Config) ReconnectInterval() time.Duration {
	return time.Duration(c.Caspar.ReconnectInterval) * time.Second
}

func (c *Config) MediaRefreshInterval() time.Duration {
	return time.Duration(c.Media.RefreshInterval) * time.Second
}

// File names created inside data_dir.
const (
	DatabaseFileName = "cgmanager.db"
	SocketFileName   = "cgmanager.sock"
	LockFileName     = "cgmanager.lock"
)

// DatabasePath is the sqlite file holding media metadata and routes.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, DatabaseFileName)
}

// SocketPath is the unix socket the daemon serves JSON-RPC on.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, SocketFileName)
}

// LockPath guards against a second daemon using the same data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, LockFileName)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
