package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/wippyai/lua-runtime/bridge"
)

func parse(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "luau"}
	bindFlags(cmd)
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	return loadConfig(cmd)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %q, want warn", cfg.LogLevel)
	}
	libs, err := cfg.StdLib()
	if err != nil {
		t.Fatalf("StdLib failed: %v", err)
	}
	if libs != bridge.StdLibAllSafe {
		t.Errorf("libs = %v, want %v", libs, bridge.StdLibAllSafe)
	}
	if cfg.Sandbox || cfg.Wasm || cfg.Timeout != 0 || cfg.MemoryLimit != 0 {
		t.Errorf("unexpected non-default config: %+v", cfg)
	}
}

func TestLoadConfig_Flags(t *testing.T) {
	cfg, err := parse(t, "--libs", "string,table", "--timeout", "2s", "--sandbox", "--memory-limit", "4096")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	libs, _ := cfg.StdLib()
	if libs != bridge.StdLibString|bridge.StdLibTable {
		t.Errorf("libs = %v", libs)
	}
	if cfg.Timeout != 2*time.Second {
		t.Errorf("timeout = %v", cfg.Timeout)
	}
	if !cfg.Sandbox {
		t.Error("sandbox not set")
	}
	if cfg.MemoryLimit != 4096 {
		t.Errorf("memory limit = %d", cfg.MemoryLimit)
	}
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("LUAU_MEMORY_LIMIT", "1024")
	t.Setenv("LUAU_LOG_LEVEL", "debug")
	cfg, err := parse(t)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.MemoryLimit != 1024 {
		t.Errorf("memory limit = %d, want 1024", cfg.MemoryLimit)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q, want debug", cfg.LogLevel)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "luau.yaml")
	data := "timeout: 3s\nwasm: true\nlibs: [math]\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	cfg, err := parse(t, "--config", path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Timeout != 3*time.Second || !cfg.Wasm {
		t.Errorf("config = %+v", cfg)
	}
	if libs, _ := cfg.StdLib(); libs != bridge.StdLibMath {
		t.Errorf("libs = %v, want math", libs)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"log level", []string{"--log-level", "loud"}},
		{"unknown library", []string{"--libs", "io"}},
		{"negative timeout", []string{"--timeout", "-1s"}},
		{"missing file", []string{"--config", "/nonexistent/luau.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parse(t, tt.args...); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
