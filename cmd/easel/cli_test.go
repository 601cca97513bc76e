package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"easel/internal/config"
	"easel/internal/engine"
	"easel/internal/logging"
	"easel/internal/testsupport"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()

	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func requireContains(t *testing.T, output, want string) {
	t.Helper()
	if !strings.Contains(output, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, output)
	}
}

func TestConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, _, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, _, err := runCLI(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestAnswerRequiresTextOrDismiss(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIBind("127.0.0.1:1"))
	path := writeTestConfig(t, cfg)

	_, _, err := runCLI(t, "--config", path, "answer")
	if err == nil || !strings.Contains(err.Error(), "provide an answer") {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestStatusReportsEngineDown(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIBind("127.0.0.1:1"))
	path := writeTestConfig(t, cfg)

	_, _, err := runCLI(t, "--config", path, "status")
	if err == nil || !strings.Contains(err.Error(), "easel run") {
		t.Fatalf("expected connection hint, got %v", err)
	}
}

func TestStatusAgainstRunningEngine(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	bind := listener.Addr().String()
	listener.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithAPIBind(bind))
	eng, err := engine.New(cfg, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("engine.Start: %v", err)
	}
	defer eng.Close()

	path := writeTestConfig(t, cfg)

	out, _, err := runCLI(t, "--config", path, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, `"running": true`)
	requireContains(t, out, `"transcript_path"`)
}
