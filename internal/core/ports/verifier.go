package ports

import "go.trai.ch/compak/internal/core/domain"

// Verifier detects drift between the lockfile and the project directory.
//
//go:generate go run go.uber.org/mock/mockgen -source=verifier.go -destination=mocks/mock_verifier.go -package=mocks
type Verifier interface {
	// Drift lists installed files that are missing or no longer match their recorded hash.
	// Files owned through a managed region are skipped.
	Drift(root string, lock *domain.Lockfile) ([]domain.Drift, error)
}
