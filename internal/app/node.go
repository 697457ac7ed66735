package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/compak/internal/adapters/archive"            //nolint:depguard // Wired in app layer
	"go.trai.ch/compak/internal/adapters/compose"            //nolint:depguard // Wired in app layer
	"go.trai.ch/compak/internal/adapters/config"             //nolint:depguard // Wired in app layer
	"go.trai.ch/compak/internal/adapters/fs"                 //nolint:depguard // Wired in app layer
	"go.trai.ch/compak/internal/adapters/lockfile"           //nolint:depguard // Wired in app layer
	"go.trai.ch/compak/internal/adapters/logger"             //nolint:depguard // Wired in app layer
	"go.trai.ch/compak/internal/adapters/registry"           //nolint:depguard // Wired in app layer
	"go.trai.ch/compak/internal/adapters/telemetry"          //nolint:depguard // Wired in app layer
	"go.trai.ch/compak/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in app layer
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/compak/internal/engine/transaction"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	// App Node
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			registry.NodeID,
			lockfile.NodeID,
			fs.VerifierNodeID,
			compose.NodeID,
			archive.NodeID,
			transaction.NodeFactoryID,
			telemetry.TracerNodeID,
			progrock.NodeID,
			logger.NodeID,
		},
		Run: runAppNode,
	})

	// Components Node
	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
			progrock.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	registries, err := graft.Dep[ports.RegistryFactory](ctx)
	if err != nil {
		return nil, err
	}

	store, err := graft.Dep[ports.LockfileStore](ctx)
	if err != nil {
		return nil, err
	}

	verifier, err := graft.Dep[ports.Verifier](ctx)
	if err != nil {
		return nil, err
	}

	merger, err := graft.Dep[ports.ComposeMerger](ctx)
	if err != nil {
		return nil, err
	}

	archiver, err := graft.Dep[ports.Archiver](ctx)
	if err != nil {
		return nil, err
	}

	engines, err := graft.Dep[*transaction.Factory](ctx)
	if err != nil {
		return nil, err
	}

	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}

	tel, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, registries, store, verifier, merger, archiver, engines, tracer, tel, log), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	app, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	tel, err := graft.Dep[ports.Telemetry](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{App: app, Logger: log, Telemetry: tel}, nil
}
