package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCaspar(); err != nil {
		return err
	}
	c.normalizeChannels()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeCaspar() error {
	if value, ok := os.LookupEnv("CASPAR_HOST"); ok && strings.TrimSpace(value) != "" {
		c.Caspar.Host = value
	}
	if value, ok := os.LookupEnv("CASPAR_PORT"); ok && strings.TrimSpace(value) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("CASPAR_PORT: %w", err)
		}
		c.Caspar.Port = port
	}
	c.Caspar.Host = strings.TrimSpace(c.Caspar.Host)
	if c.Caspar.Host == "" {
		c.Caspar.Host = defaultCasparHost
	}
	if c.Caspar.Port == 0 {
		c.Caspar.Port = defaultCasparPort
	}
	if c.Caspar.ConnectTimeout == 0 {
		c.Caspar.ConnectTimeout = defaultConnectTimeout
	}
	if c.Caspar.RequestTimeout == 0 {
		c.Caspar.RequestTimeout = defaultRequestTimeout
	}
	if c.Caspar.ReconnectInterval == 0 {
		c.Caspar.ReconnectInterval = defaultReconnectInterval
	}
	return nil
}

func (c *Config) normalizeChannels() {
	for i := range c.Channels {
		groups := make([]string, 0, len(c.Channels[i].Groups))
		seen := make(map[string]struct{}, len(c.Channels[i].Groups))
		for _, group := range c.Channels[i].Groups {
			name := strings.TrimSpace(group)
			if name == "" {
				continue
			}
			if _, exists := seen[name]; exists {
				continue
			}
			seen[name] = struct{}{}
			groups = append(groups, name)
		}
		if len(groups) == 0 {
			groups = append(groups, DefaultGroups...)
		}
		c.Channels[i].Groups = groups
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.FileLevel = strings.ToLower(strings.TrimSpace(c.Logging.FileLevel))
	if c.Logging.FileLevel == "" {
		c.Logging.FileLevel = c.Logging.Level
	}
}
