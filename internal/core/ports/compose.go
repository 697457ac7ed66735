package ports

import "go.trai.ch/compak/internal/core/domain"

// ComposeMerger merges package fragments into the shared Compose override file.
// Every method is pure: it takes the current file content and returns the new one.
//
//go:generate go run go.uber.org/mock/mockgen -source=compose.go -destination=mocks/mock_compose.go -package=mocks
type ComposeMerger interface {
	// Merge replaces the managed region of id with the namespaced fragment and
	// returns the new file content and the region hash.
	Merge(current []byte, id domain.PackageID, fragment []byte) ([]byte, string, error)

	// Remove deletes the managed region of id and every key it owns.
	Remove(current []byte, id domain.PackageID) ([]byte, error)

	// RegionHash returns the hash of id's managed region, or false when absent.
	RegionHash(current []byte, id domain.PackageID) (string, bool, error)
}
