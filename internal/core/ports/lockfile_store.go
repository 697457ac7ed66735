package ports

import "go.trai.ch/compak/internal/core/domain"

// LockfileStore persists the lockfile of a project.
//
//go:generate go run go.uber.org/mock/mockgen -source=lockfile_store.go -destination=mocks/mock_lockfile_store.go -package=mocks
type LockfileStore interface {
	// Load reads the lockfile below root. A missing file yields an empty
	// lockfile; an unreadable one fails with domain.ErrCorruptLockfile.
	Load(root string) (*domain.Lockfile, error)

	// Save writes the lockfile below root atomically.
	Save(root string, lock *domain.Lockfile) error
}
