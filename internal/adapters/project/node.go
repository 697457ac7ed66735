package project

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/compak/internal/core/ports"
)

const NodeID graft.ID = "adapter.project_locker"

func init() {
	graft.Register(graft.Node[ports.ProjectLocker]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(ctx context.Context) (ports.ProjectLocker, error) {
			return NewLocker(), nil
		},
	})
}
