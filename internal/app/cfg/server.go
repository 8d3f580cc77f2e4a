package cfg

import (
	"time"

	"statesync/internal"
	"statesync/internal/app/apps"
)

// SnapshotCfg is configuration for the persistence of the server state.
type SnapshotCfg struct {
	url      string
	interval time.Duration
	seed     string
}

// NewSnapshotCfg creates a new SnapshotCfg.
func NewSnapshotCfg(url string, interval time.Duration, seed string) *SnapshotCfg {
	return &SnapshotCfg{url: url, interval: interval, seed: seed}
}

// SnapshotFromEnv creates a new SnapshotCfg from the current environment.
func SnapshotFromEnv() *SnapshotCfg {
	return &SnapshotCfg{
		url:      internal.SnapshotURL,
		interval: internal.SnapshotInterval,
		seed:     internal.SeedFile,
	}
}

// ApplyServerApp applies the SnapshotCfg to a ServerApp.
func (cfg SnapshotCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.SnapshotURL = cfg.url
	if cfg.interval > 0 {
		app.SnapshotInterval = cfg.interval
	}
	app.SeedFile = cfg.seed
	return nil
}

// ShutdownCfg is configuration for stopping the server.
type ShutdownCfg struct {
	timeout time.Duration
}

// NewShutdownCfg creates a new ShutdownCfg.
func NewShutdownCfg(timeout time.Duration) *ShutdownCfg {
	return &ShutdownCfg{timeout: timeout}
}

// ShutdownFromEnv creates a new ShutdownCfg from the current environment.
func ShutdownFromEnv() *ShutdownCfg {
	return &ShutdownCfg{timeout: internal.ShutdownTimeout}
}

// ApplyServerApp applies the ShutdownCfg to a ServerApp.
func (cfg ShutdownCfg) ApplyServerApp(app *apps.ServerApp) error {
	if cfg.timeout > 0 {
		app.ShutdownTimeout = cfg.timeout
	}
	return nil
}
