package config

import (
	"errors"
	"fmt"
	"net"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCaspar(); err != nil {
		return err
	}
	if err := c.validateChannels(); err != nil {
		return err
	}
	if err := c.validateMedia(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind: %w", err)
	}
	return nil
}

func (c *Config) validateCaspar() error {
	if c.Caspar.Host == "" {
		return errors.New("caspar.host must be set")
	}
	if c.Caspar.Port < 1 || c.Caspar.Port > 65535 {
		return fmt.Errorf("caspar.port must be between 1 and 65535, got %d", c.Caspar.Port)
	}
	return ensurePositiveMap(map[string]int{
		"caspar.connect_timeout":    c.Caspar.ConnectTimeout,
		"caspar.request_timeout":    c.Caspar.RequestTimeout,
		"caspar.reconnect_interval": c.Caspar.ReconnectInterval,
	})
}

func (c *Config) validateChannels() error {
	if len(c.Channels) == 0 {
		return errors.New("at least one [[channels]] entry is required")
	}
	seen := make(map[int]struct{}, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.ID < 1 {
			return fmt.Errorf("channels.id must be >= 1, got %d", ch.ID)
		}
		if _, dup := seen[ch.ID]; dup {
			return fmt.Errorf("channels.id %d declared twice", ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	return nil
}

func (c *Config) validateMedia() error {
	if c.Media.RefreshInterval < 0 {
		return errors.New("media.refresh_interval must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	for key, level := range map[string]string{
		"logging.level":      c.Logging.Level,
		"logging.file_level": c.Logging.FileLevel,
	} {
		switch level {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("%s: unsupported value %q", key, level)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
