package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cgmanager/internal/amcp"
	"cgmanager/internal/config"
	"cgmanager/internal/daemon"
	"cgmanager/internal/ipc"
	"cgmanager/internal/logging"
	"cgmanager/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	engine     *amcp.MockServer
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
	cancel     context.CancelFunc
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	engine := testsupport.StartEngine(t)
	engine.SetMedia(
		`"AMB" MOVIE 6445960 20170413141407 268 1/25`,
		`"LOGOS/CG" STILL 1048576 20170413141407 0 0/1`,
	)
	cfg := testsupport.NewConfig(t,
		testsupport.WithCaspar(engine.Addr()),
		testsupport.WithChannels(
			config.Channel{ID: 1, Groups: []string{"background", "main"}},
			config.Channel{ID: 2, Groups: []string{"main"}},
		),
	)

	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	logger := logging.NewNop()
	d, err := daemon.New(cfg, logger)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}

	socketPath := filepath.Join(cfg.Paths.DataDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d.Service(), logger)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	env := &cliTestEnv{
		cfg:        cfg,
		engine:     engine,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
		cancel:     cancel,
	}

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	waitFor(t, 3*time.Second, func() bool { return d.Executor().Connected() })
	return env
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\n\n", cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Paths.APIBind)
	fmt.Fprintf(&b, "[caspar]\nhost = %q\nport = %d\n\n", cfg.Caspar.Host, cfg.Caspar.Port)
	for _, ch := range cfg.Channels {
		quoted := make([]string, 0, len(ch.Groups))
		for _, g := range ch.Groups {
			quoted = append(quoted, fmt.Sprintf("%q", g))
		}
		fmt.Fprintf(&b, "[[channels]]\nid = %d\ngroups = [%s]\n\n", ch.ID, strings.Join(quoted, ", "))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
