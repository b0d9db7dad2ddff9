package core

import (
	"fmt"

	"execgate/config"
	"execgate/internal/lifecycle"
	"execgate/internal/locator"
	"execgate/internal/metrics"
	"execgate/internal/session"
	"execgate/internal/status"
	"execgate/internal/transport"
	"execgate/util"
)

// isService detects a service-manager launch; tests replace it.
var isService = lifecycle.IsService

// Build constructs the Mode for cfg.  This is the single dispatch point
// between the CLI and the rest of the gateway.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	provider, err := buildProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	mc := metrics.New()
	runner := &Runner{
		Loop: &AcceptLoop{
			Provider:    provider,
			Stop:        NewStopSignal(),
			MaxSessions: cfg.MaxSessions,
			Session: session.Config{
				Locator:      &locator.DirLocator{Root: cfg.Root, Ext: cfg.Ext},
				ChunkSize:    cfg.ChunkSize,
				KillGrace:    cfg.KillGrace,
				DrainTimeout: cfg.DrainTimeout,
				Logger:       logger,
				Metrics:      mc,
			},
			Logger:  logger,
			Metrics: mc,
		},
		Grace:  cfg.GracePeriod,
		Logger: logger,
	}
	if cfg.StatusAddr != "" {
		runner.Status = &status.Server{
			Addr:    cfg.StatusAddr,
			Metrics: mc,
			Logger:  logger,
		}
	}

	mode, err := resolveMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if mode == config.ModeService {
		return &ServiceMode{Runner: runner, ServiceName: cfg.ServiceName}, nil
	}
	return &ForegroundMode{Runner: runner}, nil
}

// resolveMode turns "auto" into the concrete mode for this process.
func resolveMode(mode string) (string, error) {
	if mode != config.ModeAuto {
		return mode, nil
	}
	svc, err := isService()
	if err != nil {
		return "", fmt.Errorf("detecting service launch: %w", err)
	}
	if svc {
		return config.ModeService, nil
	}
	return config.ModeForeground, nil
}

func buildProvider(cfg *config.Config, logger *util.Logger) (transport.Provider, error) {
	if !cfg.Tunnel.Enabled() {
		return &transport.TCPProvider{Address: cfg.ListenAddr}, nil
	}
	sshCfg, err := cfg.Tunnel.SSHConfig()
	if err != nil {
		return nil, err
	}
	return transport.NewSSHProvider(sshCfg, cfg.Tunnel.BindAddr, cfg.Tunnel.RemotePort, logger), nil
}
