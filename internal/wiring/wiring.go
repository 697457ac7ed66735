// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/compak/internal/adapters/archive"
	_ "go.trai.ch/compak/internal/adapters/compose"
	_ "go.trai.ch/compak/internal/adapters/config"
	_ "go.trai.ch/compak/internal/adapters/fs"
	_ "go.trai.ch/compak/internal/adapters/lockfile"
	_ "go.trai.ch/compak/internal/adapters/logger"
	_ "go.trai.ch/compak/internal/adapters/project"
	_ "go.trai.ch/compak/internal/adapters/registry"
	_ "go.trai.ch/compak/internal/adapters/telemetry"
	_ "go.trai.ch/compak/internal/adapters/telemetry/progrock"
	// Register app and engine nodes.
	_ "go.trai.ch/compak/internal/app"
	_ "go.trai.ch/compak/internal/engine/transaction"
)
