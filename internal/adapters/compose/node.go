package compose

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/compak/internal/adapters/fs"
	"go.trai.ch/compak/internal/core/ports"
)

const NodeID graft.ID = "adapter.compose_merger"

func init() {
	graft.Register(graft.Node[ports.ComposeMerger]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{fs.HasherNodeID},
		Run: func(ctx context.Context) (ports.ComposeMerger, error) {
			hasher, err := graft.Dep[ports.Hasher](ctx)
			if err != nil {
				return nil, err
			}
			return NewMerger(hasher), nil
		},
	})
}
