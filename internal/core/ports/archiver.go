package ports

import "io"

// Archiver packs and unpacks package content archives.
//
//go:generate go run go.uber.org/mock/mockgen -source=archiver.go -destination=mocks/mock_archiver.go -package=mocks
type Archiver interface {
	// Pack writes the content of dir as an archive to w.
	Pack(dir string, w io.Writer) error

	// Extract unpacks an archive into dest and returns the slash separated
	// relative paths of the regular files written, sorted.
	Extract(r io.Reader, dest string) ([]string, error)
}
