package app

import "go.trai.ch/compak/internal/core/ports"

// Components contains all the initialized application components.
type Components struct {
	App       *App
	Logger    ports.Logger
	Telemetry ports.Telemetry
}

// Close flushes telemetry. It is safe to call on partially built components.
func (c *Components) Close() error {
	if c == nil || c.Telemetry == nil {
		return nil
	}
	return c.Telemetry.Close()
}
