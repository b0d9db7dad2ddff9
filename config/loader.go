package config

// loader.go - configuration loading from a YAML file and from
// environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. Config file  (LoadFile)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ── Config file ──────────────────────────────────────────────────────

// LoadFile merges the YAML file at path into cfg.  Keys absent from the
// file keep their current value; unknown keys are an error.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := parseYAML(cfg, data); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func parseYAML(cfg *Config, data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the EXECGATE_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive); durations use Go
// syntax ("250ms", "5s").  Unparseable values are ignored.

// EnvConfigFile names the config file when --config is not given.
const EnvConfigFile = "EXECGATE_CONFIG"

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flags are applied so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	envString("EXECGATE_LISTEN", &cfg.ListenAddr)
	envString("EXECGATE_ROOT", &cfg.Root)
	envString("EXECGATE_EXT", &cfg.Ext)
	envInt("EXECGATE_CHUNK_SIZE", &cfg.ChunkSize)
	envInt("EXECGATE_MAX_SESSIONS", &cfg.MaxSessions)
	envDuration("EXECGATE_KILL_GRACE", &cfg.KillGrace)
	envDuration("EXECGATE_DRAIN_TIMEOUT", &cfg.DrainTimeout)
	envDuration("EXECGATE_GRACE_PERIOD", &cfg.GracePeriod)
	envString("EXECGATE_MODE", &cfg.Mode)
	envString("EXECGATE_SERVICE_NAME", &cfg.ServiceName)
	envString("EXECGATE_STATUS_ADDR", &cfg.StatusAddr)
	envInt("EXECGATE_VERBOSE", &cfg.Verbose)

	// SSH gateway
	envString("EXECGATE_TUNNEL", &cfg.Tunnel.Target)
	envString("EXECGATE_REMOTE_BIND_ADDRESS", &cfg.Tunnel.BindAddr)
	envInt("EXECGATE_REMOTE_PORT", &cfg.Tunnel.RemotePort)
	envString("EXECGATE_SSH_KEY", &cfg.Tunnel.KeyPath)
	envBool("EXECGATE_SSH_PASSWORD", &cfg.Tunnel.Password)
	envBool("EXECGATE_SSH_AGENT", &cfg.Tunnel.UseAgent)
	envBool("EXECGATE_STRICT_HOSTKEY", &cfg.Tunnel.StrictHostKey)
	envString("EXECGATE_KNOWN_HOSTS", &cfg.Tunnel.KnownHosts)
	envDuration("EXECGATE_KEEP_ALIVE", &cfg.Tunnel.KeepAlive)
}

// ── helpers ──────────────────────────────────────────────────────────

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		*dst = true
	case "0", "false", "no":
		*dst = false
	}
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
