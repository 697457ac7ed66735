package registry

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/compak/internal/adapters/archive"
	"go.trai.ch/compak/internal/core/ports"
)

const NodeID graft.ID = "adapter.registry_factory"

func init() {
	graft.Register(graft.Node[ports.RegistryFactory]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{archive.NodeID},
		Run: func(ctx context.Context) (ports.RegistryFactory, error) {
			archiver, err := graft.Dep[ports.Archiver](ctx)
			if err != nil {
				return nil, err
			}
			return NewFactory(archiver), nil
		},
	})
}
