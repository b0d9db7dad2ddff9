package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv_Listener(t *testing.T) {
	t.Setenv("EXECGATE_LISTEN", "127.0.0.1:5000")
	t.Setenv("EXECGATE_MAX_SESSIONS", "8")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.ListenAddr != "127.0.0.1:5000" {
		t.Errorf("ListenAddr = %q, want %q", cfg.ListenAddr, "127.0.0.1:5000")
	}
	if cfg.MaxSessions != 8 {
		t.Errorf("MaxSessions = %d, want 8", cfg.MaxSessions)
	}
}

func TestLoadFromEnv_Durations(t *testing.T) {
	t.Setenv("EXECGATE_KILL_GRACE", "1s")
	t.Setenv("EXECGATE_DRAIN_TIMEOUT", "75ms")
	t.Setenv("EXECGATE_GRACE_PERIOD", "bogus")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.KillGrace != time.Second {
		t.Errorf("KillGrace = %v, want 1s", cfg.KillGrace)
	}
	if cfg.DrainTimeout != 75*time.Millisecond {
		t.Errorf("DrainTimeout = %v, want 75ms", cfg.DrainTimeout)
	}
	if cfg.GracePeriod != DefaultGracePeriod {
		t.Errorf("GracePeriod = %v, invalid input should be ignored", cfg.GracePeriod)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "TRUE", "Yes"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("EXECGATE_SSH_AGENT", v)
			cfg := Default()
			LoadFromEnv(cfg)
			if !cfg.Tunnel.UseAgent {
				t.Error("UseAgent should be true")
			}
		})
	}

	t.Run("false overrides", func(t *testing.T) {
		t.Setenv("EXECGATE_STRICT_HOSTKEY", "no")
		cfg := Default()
		cfg.Tunnel.StrictHostKey = true
		LoadFromEnv(cfg)
		if cfg.Tunnel.StrictHostKey {
			t.Error("StrictHostKey should be false")
		}
	})
}

func TestLoadFromEnv_SSHFields(t *testing.T) {
	t.Setenv("EXECGATE_TUNNEL", "admin@bastion:2222")
	t.Setenv("EXECGATE_SSH_KEY", "/home/user/.ssh/id_ed25519")
	t.Setenv("EXECGATE_SSH_PASSWORD", "true")
	t.Setenv("EXECGATE_KNOWN_HOSTS", "/custom/known_hosts")
	t.Setenv("EXECGATE_REMOTE_PORT", "4001")
	t.Setenv("EXECGATE_REMOTE_BIND_ADDRESS", "0.0.0.0")
	t.Setenv("EXECGATE_KEEP_ALIVE", "1m")

	cfg := Default()
	LoadFromEnv(cfg)

	tc := cfg.Tunnel
	if tc.Target != "admin@bastion:2222" {
		t.Errorf("Target = %q", tc.Target)
	}
	if tc.KeyPath != "/home/user/.ssh/id_ed25519" {
		t.Errorf("KeyPath = %q", tc.KeyPath)
	}
	if !tc.Password {
		t.Error("Password should be true")
	}
	if tc.KnownHosts != "/custom/known_hosts" {
		t.Errorf("KnownHosts = %q", tc.KnownHosts)
	}
	if tc.RemotePort != 4001 || tc.BindAddr != "0.0.0.0" {
		t.Errorf("remote = %s:%d", tc.BindAddr, tc.RemotePort)
	}
	if tc.KeepAlive != time.Minute {
		t.Errorf("KeepAlive = %v", tc.KeepAlive)
	}
}

func TestLoadFromEnv_NoOverrideWhenEmpty(t *testing.T) {
	cfg := &Config{ListenAddr: "original", ChunkSize: 1234}
	LoadFromEnv(cfg)

	if cfg.ListenAddr != "original" {
		t.Errorf("ListenAddr was overridden: %q", cfg.ListenAddr)
	}
	if cfg.ChunkSize != 1234 {
		t.Errorf("ChunkSize was overridden: %d", cfg.ChunkSize)
	}
}

func TestLoadFromEnv_InvalidIntIgnored(t *testing.T) {
	t.Setenv("EXECGATE_CHUNK_SIZE", "not-a-number")
	cfg := Default()
	LoadFromEnv(cfg)
	if cfg.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize should stay %d for invalid input, got %d", DefaultChunkSize, cfg.ChunkSize)
	}
}

// ── Config file ──────────────────────────────────────────────────────

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "execgate.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_Merges(t *testing.T) {
	path := writeConfig(t, `
listen: 127.0.0.1:4100
root: /srv/challenge
kill_grace: 2s
max_sessions: 4
tunnel:
  target: ops@gw.example.com:2222
  remote_port: 4001
`)
	cfg := Default()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatal(err)
	}

	if cfg.ListenAddr != "127.0.0.1:4100" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Root != "/srv/challenge" {
		t.Errorf("Root = %q", cfg.Root)
	}
	if cfg.KillGrace != 2*time.Second {
		t.Errorf("KillGrace = %v", cfg.KillGrace)
	}
	if cfg.MaxSessions != 4 {
		t.Errorf("MaxSessions = %d", cfg.MaxSessions)
	}
	if cfg.Tunnel.Target != "ops@gw.example.com:2222" || cfg.Tunnel.RemotePort != 4001 {
		t.Errorf("Tunnel = %+v", cfg.Tunnel)
	}
	// Untouched keys keep their defaults.
	if cfg.Ext != DefaultExt || cfg.DrainTimeout != DefaultDrainTimeout {
		t.Errorf("defaults lost: ext=%q drain=%v", cfg.Ext, cfg.DrainTimeout)
	}
	if cfg.Tunnel.KeepAlive != DefaultKeepAlive {
		t.Errorf("nested default lost: keepalive=%v", cfg.Tunnel.KeepAlive)
	}
}

func TestLoadFile_UnknownKey(t *testing.T) {
	path := writeConfig(t, "listen: :4001\nlisten_port: 4001\n")
	err := LoadFile(Default(), path)
	if err == nil || !strings.Contains(err.Error(), "listen_port") {
		t.Errorf("expected unknown-key error, got %v", err)
	}
}

func TestLoadFile_Empty(t *testing.T) {
	path := writeConfig(t, "")
	cfg := Default()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("empty file: %v", err)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if err := LoadFile(Default(), "/nonexistent/execgate.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// TestPrecedence verifies defaults < file < env.  Flags sit on top and
// are covered in cmd.
func TestPrecedence(t *testing.T) {
	path := writeConfig(t, "listen: 127.0.0.1:4100\nchunk_size: 1024\n")
	t.Setenv("EXECGATE_LISTEN", "127.0.0.1:4200")

	cfg := Default()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatal(err)
	}
	LoadFromEnv(cfg)

	if cfg.ListenAddr != "127.0.0.1:4200" {
		t.Errorf("env should beat file: ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.ChunkSize != 1024 {
		t.Errorf("file should beat default: ChunkSize = %d", cfg.ChunkSize)
	}
	if cfg.KillGrace != DefaultKillGrace {
		t.Errorf("default should survive: KillGrace = %v", cfg.KillGrace)
	}
}
