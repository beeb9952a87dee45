package testsupport

import (
	"net"
	"path/filepath"
	"strconv"
	"testing"

	"cgmanager/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Caspar.ConnectTimeout = 1
	cfgVal.Caspar.RequestTimeout = 2
	cfgVal.Caspar.ReconnectInterval = 1
	cfgVal.Media.RefreshOnConnect = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCaspar points the config at an engine listening on addr.
func WithCaspar(addr string) ConfigOption {
	return func(b *configBuilder) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			b.t.Fatalf("split engine address %q: %v", addr, err)
		}
		n, err := strconv.Atoi(port)
		if err != nil {
			b.t.Fatalf("engine port %q: %v", port, err)
		}
		b.cfg.Caspar.Host = host
		b.cfg.Caspar.Port = n
	}
}

// WithChannels replaces the configured channels.
func WithChannels(channels ...config.Channel) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channels = append([]config.Channel(nil), channels...)
	}
}

// WithMediaRefresh enables the media refresh on connect.
func WithMediaRefresh() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Media.RefreshOnConnect = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
