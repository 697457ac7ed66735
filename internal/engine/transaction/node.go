package transaction

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/compak/internal/adapters/archive"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/compak/internal/adapters/compose"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/compak/internal/adapters/fs"        //nolint:depguard // Wired in engine wiring
	"go.trai.ch/compak/internal/adapters/lockfile"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/compak/internal/adapters/logger"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/compak/internal/adapters/project"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/compak/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/compak/internal/core/ports"
)

// NodeFactoryID is the unique identifier for the engine factory Graft node.
const NodeFactoryID graft.ID = "engine.transaction_factory"

// Factory builds an Engine for the registry a project is configured with.
type Factory struct {
	store    ports.LockfileStore
	locker   ports.ProjectLocker
	archiver ports.Archiver
	merger   ports.ComposeMerger
	hasher   ports.Hasher
	tracer   ports.Tracer
	logger   ports.Logger
}

// NewFactory creates a Factory sharing the given adapters across engines.
func NewFactory(
	store ports.LockfileStore,
	locker ports.ProjectLocker,
	archiver ports.Archiver,
	merger ports.ComposeMerger,
	hasher ports.Hasher,
	tracer ports.Tracer,
	log ports.Logger,
) *Factory {
	return &Factory{
		store:    store,
		locker:   locker,
		archiver: archiver,
		merger:   merger,
		hasher:   hasher,
		tracer:   tracer,
		logger:   log,
	}
}

// New returns an Engine fetching content from registry.
func (f *Factory) New(registry ports.Registry) *Engine {
	return NewEngine(registry, f.store, f.locker, f.archiver, f.merger, f.hasher, f.tracer, f.logger)
}

func init() {
	graft.Register(graft.Node[*Factory]{
		ID:        NodeFactoryID,
		Cacheable: true,
		DependsOn: []graft.ID{
			lockfile.NodeID,
			project.NodeID,
			archive.NodeID,
			compose.NodeID,
			fs.HasherNodeID,
			telemetry.TracerNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Factory, error) {
			store, err := graft.Dep[ports.LockfileStore](ctx)
			if err != nil {
				return nil, err
			}

			locker, err := graft.Dep[ports.ProjectLocker](ctx)
			if err != nil {
				return nil, err
			}

			archiver, err := graft.Dep[ports.Archiver](ctx)
			if err != nil {
				return nil, err
			}

			merger, err := graft.Dep[ports.ComposeMerger](ctx)
			if err != nil {
				return nil, err
			}

			hasher, err := graft.Dep[ports.Hasher](ctx)
			if err != nil {
				return nil, err
			}

			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return NewFactory(store, locker, archiver, merger, hasher, tracer, log), nil
		},
	})
}
