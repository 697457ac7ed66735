package ports

import "context"

// ProjectLocker serializes transactions against one project.
//
//go:generate go run go.uber.org/mock/mockgen -source=project_lock.go -destination=mocks/mock_project_lock.go -package=mocks
type ProjectLocker interface {
	// Acquire takes the single-writer lock of root, waiting until ctx ends.
	// The returned release function must be called exactly once.
	Acquire(ctx context.Context, root, owner string) (release func() error, err error)
}
