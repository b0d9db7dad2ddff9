package config

import (
	"errors"
	"runtime"
	"strings"
	"testing"

	ncerr "execgate/internal/errors"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg := Default()
	cfg.Root = t.TempDir()
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.ListenAddr != "0.0.0.0:4001" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Ext != ".exe" || cfg.ChunkSize != 4096 {
		t.Errorf("ext=%q chunk=%d", cfg.Ext, cfg.ChunkSize)
	}
	if cfg.MaxSessions != 0 {
		t.Errorf("MaxSessions = %d, want unlimited", cfg.MaxSessions)
	}
	if cfg.ServiceName != "ChallengeProxy" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	want := "."
	if runtime.GOOS == "windows" {
		want = `Y:\`
	}
	if cfg.Root != want {
		t.Errorf("Root = %q, want %q", cfg.Root, want)
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig(t).Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

// TestValidate_ErrorMessages verifies that Validate returns actionable
// ConfigErrors naming the offending flag.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantSub string
	}{
		{"no listen", func(c *Config) { c.ListenAddr = "" }, "listen", "hint:"},
		{"bad listen", func(c *Config) { c.ListenAddr = "localhost" }, "listen", "host:port"},
		{"missing root", func(c *Config) { c.Root = "/nonexistent/dir" }, "root", "directory does not exist"},
		{"bad ext", func(c *Config) { c.Ext = "exe" }, "ext", "start with a dot"},
		{"zero chunk", func(c *Config) { c.ChunkSize = 0 }, "chunk-size", "must be positive"},
		{"negative grace", func(c *Config) { c.KillGrace = -1 }, "kill-grace", "negative"},
		{"negative max", func(c *Config) { c.MaxSessions = -1 }, "max-sessions", "0 means unlimited"},
		{"bad mode", func(c *Config) { c.Mode = "daemon" }, "mode", "unknown run mode"},
		{"service without name", func(c *Config) {
			c.Mode = ModeService
			c.ServiceName = ""
		}, "service-name", "service name"},
		{"bad tunnel", func(c *Config) { c.Tunnel.Target = "gw.example.com" }, "tunnel", "user@host"},
		{"bad remote port", func(c *Config) {
			c.Tunnel.Target = "u@gw"
			c.Tunnel.RemotePort = 70000
		}, "remote-port", "between"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *ncerr.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("got %T, want *ConfigError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Field = %q, want %q", ce.Field, tt.field)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestValidate_TunnelNeedsNoListen(t *testing.T) {
	cfg := validConfig(t)
	cfg.ListenAddr = ""
	cfg.Tunnel.Target = "ops@gw.example.com"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestTunnelConfig_SSHConfig(t *testing.T) {
	tc := TunnelConfig{
		Target:    "ops@gw.example.com:2222",
		KeyPath:   "/k",
		UseAgent:  true,
		KeepAlive: DefaultKeepAlive,
	}
	sc, err := tc.SSHConfig()
	if err != nil {
		t.Fatal(err)
	}
	if sc.User != "ops" || sc.Host != "gw.example.com" || sc.Port != 2222 {
		t.Errorf("got %s@%s:%d", sc.User, sc.Host, sc.Port)
	}
	if sc.KeyPath != "/k" || !sc.UseAgent || sc.KeepAlive != DefaultKeepAlive {
		t.Errorf("fields not carried over: %+v", sc)
	}
	if !tc.Enabled() {
		t.Error("Enabled should be true")
	}
	if (&TunnelConfig{}).Enabled() {
		t.Error("empty target should be disabled")
	}
}
