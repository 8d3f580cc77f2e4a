package cfg

import (
	"time"

	"statesync/internal"
	"statesync/internal/app/apps"
)

// AddressCfg is configuration for the address of the state server.
type AddressCfg struct {
	address string
}

// NewAddressCfg creates a new AddressCfg.
func NewAddressCfg(address string) *AddressCfg {
	return &AddressCfg{address: address}
}

// AddressFromEnv creates a new AddressCfg from the current environment.
func AddressFromEnv() *AddressCfg {
	return &AddressCfg{address: internal.ServerAddress}
}

// ApplyClientApp applies the AddressCfg to a ClientApp. An empty address
// leaves the app unchanged.
func (cfg AddressCfg) ApplyClientApp(app *apps.ClientApp) error {
	if cfg.address != "" {
		app.Address = cfg.address
	}
	return nil
}

// SessionCfg is configuration for the timing of a client session.
type SessionCfg struct {
	Name           string
	FlushInterval  time.Duration
	DrainInterval  time.Duration
	UpdateInterval time.Duration
	CloseTimeout   time.Duration
	ReportInterval time.Duration
}

// SessionFromEnv creates a new SessionCfg from the current environment.
func SessionFromEnv() *SessionCfg {
	return &SessionCfg{
		Name:           internal.ClientName,
		FlushInterval:  internal.FlushInterval,
		DrainInterval:  internal.DrainInterval,
		UpdateInterval: internal.UpdateInterval,
		CloseTimeout:   internal.CloseTimeout,
		ReportInterval: internal.ReportInterval,
	}
}

// ApplyClientApp applies the SessionCfg to a ClientApp.
func (cfg SessionCfg) ApplyClientApp(app *apps.ClientApp) error {
	app.Name = cfg.Name
	app.FlushInterval = cfg.FlushInterval
	app.DrainInterval = cfg.DrainInterval
	app.UpdateInterval = cfg.UpdateInterval
	app.CloseTimeout = cfg.CloseTimeout
	app.ReportInterval = cfg.ReportInterval
	return nil
}
