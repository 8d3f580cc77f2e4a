// Package cfg implements functionality to configure an app.
//
// The configuration objects defined here need only be implemented once,
// but can be applied to multiple types.
//
// In order to add support for a new type, the configuration
// need only implement an ApplyX method.
package cfg

import (
	"fmt"

	"statesync/internal"
	"statesync/internal/app/apps"
)

// PortCfg is configuration for the state server port.
type PortCfg struct {
	port uint16
}

// NewPortCfg creates a new PortCfg from the given config.
func NewPortCfg(port uint16) *PortCfg {
	return &PortCfg{
		port: port,
	}
}

// PortFromEnv creates a new PortCfg from the current environment.
func PortFromEnv() *PortCfg {
	return &PortCfg{
		port: uint16(internal.Port),
	}
}

// ApplyClientApp points a ClientApp at the server on localhost, unless it
// already has an address.
func (cfg PortCfg) ApplyClientApp(app *apps.ClientApp) error {
	if app.Address == "" {
		app.Address = fmt.Sprintf("localhost:%d", cfg.port)
	}
	return nil
}

// ApplyServerApp applies the PortCfg to a ServerApp.
func (cfg PortCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.Port = cfg.port
	return nil
}

// HTTPPortCfg is configuration for the inspection HTTP port.
type HTTPPortCfg struct {
	port uint16
}

// NewHTTPPortCfg creates a new HTTPPortCfg. Zero disables the HTTP surface.
func NewHTTPPortCfg(port uint16) *HTTPPortCfg {
	return &HTTPPortCfg{port: port}
}

// HTTPPortFromEnv creates a new HTTPPortCfg from the current environment.
func HTTPPortFromEnv() *HTTPPortCfg {
	return &HTTPPortCfg{port: uint16(internal.HTTPPort)}
}

// ApplyServerApp applies the HTTPPortCfg to a ServerApp.
func (cfg HTTPPortCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.HTTPPort = cfg.port
	return nil
}
