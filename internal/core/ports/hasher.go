package ports

// Hasher defines the interface for hashing installed files.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// HashFile returns the hex hash of a file's content.
	HashFile(path string) (string, error)

	// HashBytes returns the hex hash of data.
	HashBytes(data []byte) string
}
